package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/ledger/codec"
	"medex/exchange-service/internal/models"
)

func acceptResponse(t *testing.T, svc *Service, responseID string, amount float64) {
	t.Helper()
	_, err := svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: responseID,
		Status:     models.ResponseStatusAccepted,
		OfferedMedicine: &models.OfferedMedicine{
			Medicine:    models.Medicine{Name: "Amoxicillin", Unit: "box"},
			OfferAmount: amount,
		},
		UpdatedAt: baseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("accept response: %v", err)
	}
}

func readTransfer(t *testing.T, svc *Service, id string) models.Transfer {
	t.Helper()
	doc, err := svc.ReadById(context.Background(), id)
	if err != nil {
		t.Fatalf("read transfer %s: %v", id, err)
	}
	var transfer models.Transfer
	if err := codec.Unmarshal(doc, &transfer); err != nil {
		t.Fatalf("decode transfer %s: %v", id, err)
	}
	return transfer
}

func TestPromoteToTransfer(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)
	responseID := result.ResponseIDs[0]
	acceptResponse(t, svc, responseID, 40)

	promoted, err := svc.PromoteToTransfer(context.Background(), responseID, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.TransferID != "TRANS-REQ-9001-H001" {
		t.Fatalf("transfer id = %q", promoted.TransferID)
	}
	if promoted.Status != models.ResponseStatusInTransfer {
		t.Fatalf("transfer status = %q", promoted.Status)
	}

	response := readResponse(t, svc, responseID)
	if response.Status != models.ResponseStatusInTransfer {
		t.Fatalf("response status = %q", response.Status)
	}

	// on a request ticket the responder ships to the poster
	transfer := readTransfer(t, svc, promoted.TransferID)
	if transfer.FromHospitalID != hospitalB.ID || transfer.ToHospitalID != hospitalA.ID {
		t.Fatalf("transfer direction = %s -> %s", transfer.FromHospitalID, transfer.ToHospitalID)
	}
	if transfer.ResponseID != responseID {
		t.Fatalf("transfer response id = %q", transfer.ResponseID)
	}
}

func TestPromoteToTransferSharingDirection(t *testing.T) {
	svc, _ := newTestService()
	result := createSharingTicket(t, svc, "7001", 100, hospitalB)
	responseID := result.ResponseIDs[0]

	_, err := svc.AcceptSharing(context.Background(), AcceptSharingInput{
		ResponseID:    responseID,
		AcceptedOffer: &models.AcceptedOffer{ResponseAmount: 45},
		UpdatedAt:     baseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("accept sharing: %v", err)
	}

	promoted, err := svc.PromoteToTransfer(context.Background(), responseID, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("promote: %v", err)
	}

	// on a sharing ticket the poster holds the medicine and ships it out
	transfer := readTransfer(t, svc, promoted.TransferID)
	if transfer.FromHospitalID != hospitalA.ID || transfer.ToHospitalID != hospitalB.ID {
		t.Fatalf("transfer direction = %s -> %s", transfer.FromHospitalID, transfer.ToHospitalID)
	}
}

func TestPromoteToTransferGuards(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)
	responseID := result.ResponseIDs[0]

	// pending responses cannot be promoted
	_, err := svc.PromoteToTransfer(context.Background(), responseID, baseTime)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	acceptResponse(t, svc, responseID, 40)
	if _, err := svc.PromoteToTransfer(context.Background(), responseID, baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("promote: %v", err)
	}

	// the status guard blocks a second promotion
	_, err = svc.PromoteToTransfer(context.Background(), responseID, baseTime.Add(3*time.Hour))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double promote, got %v", err)
	}
}

func TestRecordReturn(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)
	responseID := result.ResponseIDs[0]
	acceptResponse(t, svc, responseID, 40)
	if _, err := svc.PromoteToTransfer(context.Background(), responseID, baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("promote: %v", err)
	}

	ack, err := svc.RecordReturn(context.Background(), responseID, models.ReturnRecord{
		ReturnAmount: 15,
		ReturnedAt:   baseTime.Add(24 * time.Hour),
		BatchNumber:  "B-100",
	})
	if err != nil {
		t.Fatalf("first return: %v", err)
	}
	if ack.Status != models.ResponseStatusInTransfer {
		t.Fatalf("partial return should keep status, got %q", ack.Status)
	}

	ack, err = svc.RecordReturn(context.Background(), responseID, models.ReturnRecord{
		ReturnAmount: 25,
		ReturnedAt:   baseTime.Add(48 * time.Hour),
		BatchNumber:  "B-101",
	})
	if err != nil {
		t.Fatalf("second return: %v", err)
	}
	if ack.Status != models.ResponseStatusConfirmReturn {
		t.Fatalf("full return should flip to confirm-return, got %q", ack.Status)
	}

	response := readResponse(t, svc, responseID)
	if len(response.ReturnMedicine) != 2 {
		t.Fatalf("return entries = %d", len(response.ReturnMedicine))
	}
	if got := response.ReturnedAmount(); got != 40 {
		t.Fatalf("returned amount = %v", got)
	}
}

func TestRecordReturnGuards(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)
	responseID := result.ResponseIDs[0]

	_, err := svc.RecordReturn(context.Background(), responseID, models.ReturnRecord{ReturnAmount: 0, ReturnedAt: baseTime})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero amount, got %v", err)
	}

	// pending responses have nothing to return
	_, err = svc.RecordReturn(context.Background(), responseID, models.ReturnRecord{ReturnAmount: 5, ReturnedAt: baseTime})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestUpdateShipment(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)
	responseID := result.ResponseIDs[0]
	acceptResponse(t, svc, responseID, 40)
	promoted, err := svc.PromoteToTransfer(context.Background(), responseID, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("promote: %v", err)
	}

	tracking := "TRK-555"
	carrier := "MedExpress"
	_, err = svc.UpdateShipment(context.Background(), ShipmentInput{
		TransferID:     promoted.TransferID,
		ShipmentStatus: "picked-up",
		StatusDate:     baseTime.Add(3 * time.Hour),
		Details:        &models.ShipmentDetails{TrackingNumber: &tracking, Carrier: &carrier},
	})
	if err != nil {
		t.Fatalf("first shipment update: %v", err)
	}

	_, err = svc.UpdateShipment(context.Background(), ShipmentInput{
		TransferID:     promoted.TransferID,
		ShipmentStatus: "delivered",
		StatusDate:     baseTime.Add(5 * time.Hour),
	})
	if err != nil {
		t.Fatalf("second shipment update: %v", err)
	}

	transfer := readTransfer(t, svc, promoted.TransferID)
	if len(transfer.ShipmentUpdates) != 2 {
		t.Fatalf("shipment updates = %d", len(transfer.ShipmentUpdates))
	}
	for _, update := range transfer.ShipmentUpdates {
		if !strings.HasPrefix(update.ShipmentID, "SHIP-") {
			t.Fatalf("shipment id = %q", update.ShipmentID)
		}
	}
	if transfer.ShipmentUpdates[1].ShipmentStatus != "delivered" {
		t.Fatalf("latest shipment status = %q", transfer.ShipmentUpdates[1].ShipmentStatus)
	}
	// detail fields from the first update survive the second
	if transfer.ShipmentDetails.TrackingNumber == nil || *transfer.ShipmentDetails.TrackingNumber != tracking {
		t.Fatalf("tracking number not merged: %+v", transfer.ShipmentDetails)
	}

	_, err = svc.UpdateShipment(context.Background(), ShipmentInput{
		TransferID:     "TRANS-missing",
		ShipmentStatus: "picked-up",
		StatusDate:     baseTime,
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
