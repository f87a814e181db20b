package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/ledger/codec"
	"medex/exchange-service/internal/models"
)

// EnrichedResponse is a response joined with its parent ticket at read time.
// Ticket is null when the parent is missing from the ledger.
type EnrichedResponse struct {
	models.Response
	Ticket *models.Ticket `json:"ticket"`
}

// EnrichedTicket is a ticket joined with its responses, plus the recomputed
// remaining amount.
type EnrichedTicket struct {
	models.Ticket
	RemainingAmount float64           `json:"remainingAmount"`
	Responses       []models.Response `json:"responses"`
}

// ParseStatusFilter accepts a single status or a JSON array of statuses.
// Malformed array input degrades to treating the raw string as one status.
func ParseStatusFilter(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var statuses []string
		if err := json.Unmarshal([]byte(trimmed), &statuses); err == nil {
			return statuses
		}
	}
	return []string{trimmed}
}

// QueryTicketsToHospital lists the responses addressed to a hospital and
// joins each to its parent ticket. Parents are fetched through a cache
// scoped to this call, so a ticket shared by many responses is read once.
func (s *Service) QueryTicketsToHospital(ctx context.Context, hospitalName, statusFilter, ticketKind string) ([]EnrichedResponse, error) {
	if hospitalName == "" {
		return nil, fmt.Errorf("%w: hospital name is required", ErrInvalidInput)
	}

	var results []EnrichedResponse
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		sel := ledger.Selector{
			Equals: map[string]string{"respondingHospitalNameEN": hospitalName},
			In:     map[string][]string{"status": ParseStatusFilter(statusFilter)},
		}
		if ticketKind != "" {
			sel.Equals["ticketType"] = ticketKind
		}
		iter, err := tx.Query(ctx, sel)
		if err != nil {
			return err
		}
		defer iter.Close()

		// per-call parent cache; an entry holding nil marks a known-missing
		// ticket so it is not re-fetched either
		cache := make(map[string]*models.Ticket)
		for iter.Next() {
			var response models.Response
			if err := codec.Unmarshal(iter.Doc(), &response); err != nil {
				return err
			}
			ticket, cached := cache[response.TicketID]
			if !cached {
				ticket, err = fetchTicket(ctx, tx, response.TicketID)
				if err != nil {
					return err
				}
				cache[response.TicketID] = ticket
			}
			results = append(results, EnrichedResponse{Response: response, Ticket: ticket})
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func fetchTicket(ctx context.Context, tx ledger.Tx, id string) (*models.Ticket, error) {
	doc, err := tx.Get(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ticket models.Ticket
	if err := codec.Unmarshal(doc, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// QueryTicketsByPostingHospital performs the symmetric join: tickets posted
// by a hospital, each carrying its remaining amount and its responses in
// chronological order.
func (s *Service) QueryTicketsByPostingHospital(ctx context.Context, hospitalName, statusFilter string) ([]EnrichedTicket, error) {
	if hospitalName == "" {
		return nil, fmt.Errorf("%w: hospital name is required", ErrInvalidInput)
	}

	var results []EnrichedTicket
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		sel := ledger.Selector{
			Equals: map[string]string{"postingHospitalNameEN": hospitalName},
			Exists: []string{"responseIds"},
		}
		if statusFilter != "" {
			sel.In = map[string][]string{"status": ParseStatusFilter(statusFilter)}
		}
		iter, err := tx.Query(ctx, sel)
		if err != nil {
			return err
		}
		defer iter.Close()

		var tickets []models.Ticket
		for iter.Next() {
			var ticket models.Ticket
			if err := codec.Unmarshal(iter.Doc(), &ticket); err != nil {
				return err
			}
			tickets = append(tickets, ticket)
		}
		if err := iter.Err(); err != nil {
			return err
		}

		for _, ticket := range tickets {
			remaining, err := remainingForTicket(ctx, tx, ticket)
			if err != nil {
				return err
			}
			responses := make([]models.Response, 0, len(ticket.ResponseIDs))
			for _, responseID := range ticket.ResponseIDs {
				doc, err := tx.Get(ctx, responseID)
				if errors.Is(err, ledger.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				var response models.Response
				if err := codec.Unmarshal(doc, &response); err != nil {
					return err
				}
				responses = append(responses, response)
			}
			sort.Slice(responses, func(i, j int) bool {
				if responses[i].CreatedAt.Equal(responses[j].CreatedAt) {
					return responses[i].ID < responses[j].ID
				}
				return responses[i].CreatedAt.Before(responses[j].CreatedAt)
			})
			results = append(results, EnrichedTicket{Ticket: ticket, RemainingAmount: remaining, Responses: responses})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListTickets returns the tickets of one kind, optionally filtered by status.
func (s *Service) ListTickets(ctx context.Context, ticketKind, statusFilter string) ([]models.Ticket, error) {
	if ticketKind != models.TicketTypeRequest && ticketKind != models.TicketTypeSharing {
		return nil, fmt.Errorf("%w: unknown ticket kind %q", ErrInvalidInput, ticketKind)
	}

	var tickets []models.Ticket
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		sel := ledger.Selector{
			Equals: map[string]string{"ticketType": ticketKind},
			Exists: []string{"responseIds"},
		}
		if statusFilter != "" {
			sel.In = map[string][]string{"status": ParseStatusFilter(statusFilter)}
		}
		iter, err := tx.Query(ctx, sel)
		if err != nil {
			return err
		}
		defer iter.Close()
		for iter.Next() {
			var ticket models.Ticket
			if err := codec.Unmarshal(iter.Doc(), &ticket); err != nil {
				return err
			}
			tickets = append(tickets, ticket)
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
