package exchange

import (
	"context"

	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/ledger/codec"
	"medex/exchange-service/internal/models"
)

// countedStatuses are the response states whose committed quantity reduces
// the ticket's remaining amount. Rejected and still-pending responses do not
// count; everything from acceptance onward does, including fully returned
// responses (a return hands medicine back, it does not reopen the ticket).
var countedStatuses = []string{
	models.ResponseStatusAccepted,
	models.ResponseStatusToTransfer,
	models.ResponseStatusInTransfer,
	models.ResponseStatusToConfirm,
	models.ResponseStatusInReturn,
	models.ResponseStatusToReturn,
	models.ResponseStatusConfirmReturn,
	models.ResponseStatusCompleted,
	models.ResponseStatusReturned,
}

// RemainingAmount recomputes the unfulfilled quantity of a ticket from its
// responses on every call. Nothing is materialized, so the value always
// reflects the latest committed response states.
func (s *Service) RemainingAmount(ctx context.Context, ticketID string) (float64, error) {
	var remaining float64
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		ticket, err := getTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		remaining, err = remainingForTicket(ctx, tx, ticket)
		return err
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func remainingForTicket(ctx context.Context, tx ledger.Tx, ticket models.Ticket) (float64, error) {
	iter, err := tx.Query(ctx, ledger.Selector{
		Equals: map[string]string{"ticketId": ticket.ID},
		In:     map[string][]string{"status": countedStatuses},
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var committed float64
	for iter.Next() {
		var response models.Response
		if err := codec.Unmarshal(iter.Doc(), &response); err != nil {
			return 0, err
		}
		committed += response.OfferedAmount()
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return ticket.OriginalAmount() - committed, nil
}
