// Package exchange implements the inter-hospital medicine exchange workflow
// on top of the ledger contract: ticket issuing with response fan-out,
// response processing, transfer promotion, return recording, quantity
// reconciliation, and enriched queries. Every operation runs as one ledger
// transaction; conflicting concurrent invocations fail whole rather than
// losing updates.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/ledger/codec"
	"medex/exchange-service/internal/models"
)

type Service struct {
	store ledger.Store
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

type CreateTicketInput struct {
	LocalID           string
	TicketType        string
	PostingHospital   models.Hospital
	Urgent            bool
	CreatedAt         time.Time
	RequestMedicine   *models.RequestMedicine
	RequestTerm       *models.Term
	SharingMedicine   *models.SharingMedicine
	SharingReturnTerm *models.Term
	TargetHospitals   []models.Hospital
}

type CreateTicketResult struct {
	TicketID    string   `json:"ticketId"`
	ResponseIDs []string `json:"responseIds"`
}

// CreateTicket writes the ticket and one pending response per target
// hospital in a single invocation. The response id set is fixed here and
// never changes afterwards.
func (s *Service) CreateTicket(ctx context.Context, input CreateTicketInput) (CreateTicketResult, error) {
	if err := validateCreateTicket(input); err != nil {
		return CreateTicketResult{}, err
	}

	ticketID := TicketKey(input.TicketType, input.LocalID)
	responseIDs := make([]string, 0, len(input.TargetHospitals))
	for _, hospital := range input.TargetHospitals {
		responseIDs = append(responseIDs, ResponseKey(ticketID, hospital.ID))
	}

	ticket := models.Ticket{
		ID:                     ticketID,
		TicketType:             input.TicketType,
		PostingHospitalID:      input.PostingHospital.ID,
		PostingHospitalNameEN:  input.PostingHospital.NameEN,
		PostingHospitalNameTH:  input.PostingHospital.NameTH,
		PostingHospitalAddress: input.PostingHospital.Address,
		Status:                 models.TicketStatusOpen,
		Urgent:                 input.Urgent,
		CreatedAt:              input.CreatedAt,
		UpdatedAt:              input.CreatedAt,
		RequestMedicine:        input.RequestMedicine,
		RequestTerm:            input.RequestTerm,
		SharingMedicine:        input.SharingMedicine,
		SharingReturnTerm:      input.SharingReturnTerm,
		ResponseIDs:            responseIDs,
	}

	err := s.inTx(ctx, func(tx ledger.Tx) error {
		exists, err := tx.Exists(ctx, ticketID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("ticket %s: %w", ticketID, ledger.ErrAlreadyExists)
		}
		if err := putDoc(ctx, tx, ticketID, ticket); err != nil {
			return err
		}
		for i, hospital := range input.TargetHospitals {
			responseID := responseIDs[i]
			exists, err := tx.Exists(ctx, responseID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("response %s: %w", responseID, ledger.ErrAlreadyExists)
			}
			response := models.Response{
				ID:                        responseID,
				TicketID:                  ticketID,
				TicketType:                input.TicketType,
				RespondingHospitalID:      hospital.ID,
				RespondingHospitalNameEN:  hospital.NameEN,
				RespondingHospitalNameTH:  hospital.NameTH,
				RespondingHospitalAddress: hospital.Address,
				Status:                    models.ResponseStatusPending,
				CreatedAt:                 input.CreatedAt,
				UpdatedAt:                 input.CreatedAt,
			}
			if err := putDoc(ctx, tx, responseID, response); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CreateTicketResult{}, err
	}
	return CreateTicketResult{TicketID: ticketID, ResponseIDs: responseIDs}, nil
}

func validateCreateTicket(input CreateTicketInput) error {
	if input.LocalID == "" {
		return fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	if input.TicketType != models.TicketTypeRequest && input.TicketType != models.TicketTypeSharing {
		return fmt.Errorf("%w: unknown ticket type %q", ErrInvalidInput, input.TicketType)
	}
	if input.PostingHospital.ID == "" || input.PostingHospital.NameEN == "" {
		return fmt.Errorf("%w: posting hospital identity is required", ErrInvalidInput)
	}
	if len(input.TargetHospitals) == 0 {
		return fmt.Errorf("%w: hospital list is empty", ErrInvalidInput)
	}
	for _, hospital := range input.TargetHospitals {
		if hospital.ID == "" {
			return fmt.Errorf("%w: target hospital without id", ErrInvalidInput)
		}
	}
	switch input.TicketType {
	case models.TicketTypeRequest:
		if input.RequestMedicine == nil {
			return fmt.Errorf("%w: request ticket needs a medicine descriptor", ErrInvalidInput)
		}
	case models.TicketTypeSharing:
		if input.SharingMedicine == nil {
			return fmt.Errorf("%w: sharing ticket needs a medicine descriptor", ErrInvalidInput)
		}
	}
	return nil
}

type RespondInput struct {
	ResponseID      string
	Status          string
	OfferedMedicine *models.OfferedMedicine
	UpdatedAt       time.Time
}

type Ack struct {
	TicketID   string    `json:"ticketId"`
	ResponseID string    `json:"responseId,omitempty"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SetResponseOffer records a hospital's stance toward a request ticket:
// an offer, an acceptance, or a rejection.
func (s *Service) SetResponseOffer(ctx context.Context, input RespondInput) (Ack, error) {
	if !validRespondTarget(input.Status) {
		return Ack{}, fmt.Errorf("%w: cannot set response status %q", ErrInvalidInput, input.Status)
	}

	var ack Ack
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		response, err := getResponse(ctx, tx, input.ResponseID)
		if err != nil {
			return err
		}
		// correlation read only; the parent is never mutated here
		if _, err := getTicket(ctx, tx, response.TicketID); err != nil {
			return err
		}
		if !ValidTransition("respond", response.Status) {
			return fmt.Errorf("response %s is in status %q: %w", response.ID, response.Status, ErrInvalidState)
		}
		response.Status = input.Status
		response.UpdatedAt = input.UpdatedAt
		if input.OfferedMedicine != nil {
			response.OfferedMedicine = input.OfferedMedicine
		}
		if err := putDoc(ctx, tx, response.ID, response); err != nil {
			return err
		}
		ack = Ack{TicketID: response.TicketID, ResponseID: response.ID, Status: response.Status, UpdatedAt: response.UpdatedAt}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	return ack, nil
}

type AcceptSharingInput struct {
	ResponseID    string
	AcceptedOffer *models.AcceptedOffer
	ReturnTerm    *models.Term
	UpdatedAt     time.Time
}

// AcceptSharing is the sharing-side counterpart of SetResponseOffer: the
// responding hospital accepts (part of) a sharing ticket and commits to a
// return term.
func (s *Service) AcceptSharing(ctx context.Context, input AcceptSharingInput) (Ack, error) {
	if input.AcceptedOffer == nil {
		return Ack{}, fmt.Errorf("%w: accepted offer is required", ErrInvalidInput)
	}

	var ack Ack
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		response, err := getResponse(ctx, tx, input.ResponseID)
		if err != nil {
			return err
		}
		if response.TicketType != models.TicketTypeSharing {
			return fmt.Errorf("%w: response %s does not belong to a sharing ticket", ErrInvalidInput, response.ID)
		}
		if _, err := getTicket(ctx, tx, response.TicketID); err != nil {
			return err
		}
		if !ValidTransition("accept-sharing", response.Status) {
			return fmt.Errorf("response %s is in status %q: %w", response.ID, response.Status, ErrInvalidState)
		}
		response.Status = models.ResponseStatusAccepted
		response.AcceptedOffer = input.AcceptedOffer
		response.ReturnTerm = input.ReturnTerm
		response.UpdatedAt = input.UpdatedAt
		if err := putDoc(ctx, tx, response.ID, response); err != nil {
			return err
		}
		ack = Ack{TicketID: response.TicketID, ResponseID: response.ID, Status: response.Status, UpdatedAt: response.UpdatedAt}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	return ack, nil
}

// UpdateTicketStatus is a caller-driven setter; ticket status carries no
// transition rules of its own.
func (s *Service) UpdateTicketStatus(ctx context.Context, ticketID, status string, updatedAt time.Time) (Ack, error) {
	if status == "" {
		return Ack{}, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}

	var ack Ack
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		ticket, err := getTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		ticket.Status = status
		ticket.UpdatedAt = updatedAt
		if err := putDoc(ctx, tx, ticket.ID, ticket); err != nil {
			return err
		}
		ack = Ack{TicketID: ticket.ID, Status: ticket.Status, UpdatedAt: ticket.UpdatedAt}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	return ack, nil
}

// ReadById returns the stored document exactly as persisted.
func (s *Service) ReadById(ctx context.Context, id string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		raw, err := tx.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		doc = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func putDoc(ctx context.Context, tx ledger.Tx, id string, v interface{}) error {
	doc, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Put(ctx, id, doc)
}

func getTicket(ctx context.Context, tx ledger.Tx, id string) (models.Ticket, error) {
	doc, err := tx.Get(ctx, id)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("ticket %s: %w", id, err)
	}
	var ticket models.Ticket
	if err := codec.Unmarshal(doc, &ticket); err != nil {
		return models.Ticket{}, fmt.Errorf("ticket %s: %w", id, err)
	}
	return ticket, nil
}

func getResponse(ctx context.Context, tx ledger.Tx, id string) (models.Response, error) {
	doc, err := tx.Get(ctx, id)
	if err != nil {
		return models.Response{}, fmt.Errorf("response %s: %w", id, err)
	}
	var response models.Response
	if err := codec.Unmarshal(doc, &response); err != nil {
		return models.Response{}, fmt.Errorf("response %s: %w", id, err)
	}
	return response, nil
}

func getTransfer(ctx context.Context, tx ledger.Tx, id string) (models.Transfer, error) {
	doc, err := tx.Get(ctx, id)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("transfer %s: %w", id, err)
	}
	var transfer models.Transfer
	if err := codec.Unmarshal(doc, &transfer); err != nil {
		return models.Transfer{}, fmt.Errorf("transfer %s: %w", id, err)
	}
	return transfer, nil
}
