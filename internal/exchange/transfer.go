package exchange

import (
	"context"
	"fmt"
	"time"

	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/models"

	"github.com/google/uuid"
)

type PromoteResult struct {
	TicketID   string    `json:"ticketId"`
	TransferID string    `json:"transferId"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PromoteToTransfer moves an accepted response into transit and mints the
// transfer record. The status guard is what prevents double promotion: a
// second call finds the response in-transfer, not accepted.
func (s *Service) PromoteToTransfer(ctx context.Context, responseID string, updatedAt time.Time) (PromoteResult, error) {
	var result PromoteResult
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		response, err := getResponse(ctx, tx, responseID)
		if err != nil {
			return err
		}
		ticket, err := getTicket(ctx, tx, response.TicketID)
		if err != nil {
			return err
		}
		if !ValidTransition("promote", response.Status) {
			return fmt.Errorf("response %s is not in accepted status: %w", response.ID, ErrInvalidState)
		}

		response.Status = models.ResponseStatusInTransfer
		response.UpdatedAt = updatedAt
		if err := putDoc(ctx, tx, response.ID, response); err != nil {
			return err
		}

		transferID := TransferKey(ticket.ID, ticket.PostingHospitalID)
		exists, err := tx.Exists(ctx, transferID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("transfer %s: %w", transferID, ledger.ErrAlreadyExists)
		}

		// shipping direction depends on who holds the medicine: the
		// responder fulfils a request, the poster fulfils a sharing
		from := models.Hospital{ID: response.RespondingHospitalID, NameEN: response.RespondingHospitalNameEN}
		to := models.Hospital{ID: ticket.PostingHospitalID, NameEN: ticket.PostingHospitalNameEN}
		if ticket.TicketType == models.TicketTypeSharing {
			from, to = to, from
		}

		transfer := models.Transfer{
			TransferID:         transferID,
			TransactionType:    models.TransactionTypeTransfer,
			TicketID:           ticket.ID,
			ResponseID:         response.ID,
			FromHospitalID:     from.ID,
			FromHospitalNameEN: from.NameEN,
			ToHospitalID:       to.ID,
			ToHospitalNameEN:   to.NameEN,
			Status:             models.ResponseStatusInTransfer,
			CreatedAt:          updatedAt,
			UpdatedAt:          updatedAt,
		}
		if err := putDoc(ctx, tx, transferID, transfer); err != nil {
			return err
		}

		result = PromoteResult{
			TicketID:   ticket.ID,
			TransferID: transferID,
			Status:     transfer.Status,
			UpdatedAt:  updatedAt,
		}
		return nil
	})
	if err != nil {
		return PromoteResult{}, err
	}
	return result, nil
}

// RecordReturn appends a return entry to the response and closes the loop
// once the cumulative returned quantity covers the offered amount. Partial
// returns keep the prior status, so the call can repeat until fully covered.
func (s *Service) RecordReturn(ctx context.Context, responseID string, entry models.ReturnRecord) (Ack, error) {
	if entry.ReturnAmount <= 0 {
		return Ack{}, fmt.Errorf("%w: return amount must be positive", ErrInvalidInput)
	}

	var ack Ack
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		response, err := getResponse(ctx, tx, responseID)
		if err != nil {
			return err
		}
		if !ValidTransition("record-return", response.Status) {
			return fmt.Errorf("response %s is in status %q: %w", response.ID, response.Status, ErrInvalidState)
		}

		response.ReturnMedicine = append(response.ReturnMedicine, entry)
		offered := response.OfferedAmount()
		if offered > 0 && response.ReturnedAmount() >= offered {
			response.Status = models.ResponseStatusConfirmReturn
		}
		response.UpdatedAt = entry.ReturnedAt
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

type ShipmentInput struct {
	TransferID     string
	ShipmentStatus string
	StatusDate     time.Time
	Details        *models.ShipmentDetails
}

// UpdateShipment appends a carrier status record to the transfer and fills
// in any shipment detail fields supplied with it.
func (s *Service) UpdateShipment(ctx context.Context, input ShipmentInput) (Ack, error) {
	if input.ShipmentStatus == "" {
		return Ack{}, fmt.Errorf("%w: shipment status is required", ErrInvalidInput)
	}

	var ack Ack
	err := s.inTx(ctx, func(tx ledger.Tx) error {
		transfer, err := getTransfer(ctx, tx, input.TransferID)
		if err != nil {
			return err
		}
		transfer.ShipmentUpdates = append(transfer.ShipmentUpdates, models.ShipmentUpdate{
			ShipmentID:     "SHIP-" + uuid.NewString(),
			ShipmentStatus: input.ShipmentStatus,
			StatusDate:     input.StatusDate,
		})
		if input.Details != nil {
			mergeShipmentDetails(&transfer.ShipmentDetails, *input.Details)
		}
		transfer.UpdatedAt = input.StatusDate
		if err := putDoc(ctx, tx, transfer.TransferID, transfer); err != nil {
			return err
		}
		ack = Ack{TicketID: transfer.TicketID, ResponseID: transfer.ResponseID, Status: transfer.Status, UpdatedAt: transfer.UpdatedAt}
		return nil
	})
	if err != nil {
		return Ack{}, err
	}
	return ack, nil
}

func mergeShipmentDetails(dst *models.ShipmentDetails, src models.ShipmentDetails) {
	if src.TrackingNumber != nil {
		dst.TrackingNumber = src.TrackingNumber
	}
	if src.Carrier != nil {
		dst.Carrier = src.Carrier
	}
	if src.ShippedFrom != nil {
		dst.ShippedFrom = src.ShippedFrom
	}
	if src.ShippedTo != nil {
		dst.ShippedTo = src.ShippedTo
	}
	if src.ShipmentDate != nil {
		dst.ShipmentDate = src.ShipmentDate
	}
}
