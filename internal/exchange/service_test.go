package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/ledger/codec"
	"medex/exchange-service/internal/ledger/memory"
	"medex/exchange-service/internal/models"
)

var (
	hospitalA = models.Hospital{ID: "H001", NameEN: "Central General"}
	hospitalB = models.Hospital{ID: "H002", NameEN: "North Clinic"}
	hospitalC = models.Hospital{ID: "H003", NameEN: "East Medical"}

	baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store), store
}

func createRequestTicket(t *testing.T, svc *Service, localID string, amount float64, targets ...models.Hospital) CreateTicketResult {
	t.Helper()
	result, err := svc.CreateTicket(context.Background(), CreateTicketInput{
		LocalID:         localID,
		TicketType:      models.TicketTypeRequest,
		PostingHospital: hospitalA,
		CreatedAt:       baseTime,
		RequestMedicine: &models.RequestMedicine{
			Medicine:      models.Medicine{Name: "Amoxicillin", Unit: "box"},
			RequestAmount: amount,
		},
		TargetHospitals: targets,
	})
	if err != nil {
		t.Fatalf("create request ticket: %v", err)
	}
	return result
}

func createSharingTicket(t *testing.T, svc *Service, localID string, amount float64, targets ...models.Hospital) CreateTicketResult {
	t.Helper()
	result, err := svc.CreateTicket(context.Background(), CreateTicketInput{
		LocalID:         localID,
		TicketType:      models.TicketTypeSharing,
		PostingHospital: hospitalA,
		CreatedAt:       baseTime,
		SharingMedicine: &models.SharingMedicine{
			Medicine:      models.Medicine{Name: "Insulin", Unit: "vial"},
			SharingAmount: amount,
		},
		TargetHospitals: targets,
	})
	if err != nil {
		t.Fatalf("create sharing ticket: %v", err)
	}
	return result
}

func readResponse(t *testing.T, svc *Service, id string) models.Response {
	t.Helper()
	doc, err := svc.ReadById(context.Background(), id)
	if err != nil {
		t.Fatalf("read response %s: %v", id, err)
	}
	var response models.Response
	if err := codec.Unmarshal(doc, &response); err != nil {
		t.Fatalf("decode response %s: %v", id, err)
	}
	return response
}

func TestCreateTicketFanOut(t *testing.T) {
	svc, _ := newTestService()

	result := createRequestTicket(t, svc, "9001", 100, hospitalB, hospitalC)
	if result.TicketID != "REQ-9001" {
		t.Fatalf("ticket id = %q", result.TicketID)
	}
	want := []string{"RESP-9001-H002", "RESP-9001-H003"}
	if len(result.ResponseIDs) != len(want) {
		t.Fatalf("response ids = %v", result.ResponseIDs)
	}
	for i, id := range want {
		if result.ResponseIDs[i] != id {
			t.Fatalf("response ids = %v, want %v", result.ResponseIDs, want)
		}
	}

	doc, err := svc.ReadById(context.Background(), "REQ-9001")
	if err != nil {
		t.Fatalf("read ticket: %v", err)
	}
	var ticket models.Ticket
	if err := codec.Unmarshal(doc, &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if ticket.Status != models.TicketStatusOpen {
		t.Fatalf("ticket status = %q", ticket.Status)
	}
	if len(ticket.ResponseIDs) != 2 {
		t.Fatalf("ticket response ids = %v", ticket.ResponseIDs)
	}

	for _, id := range result.ResponseIDs {
		response := readResponse(t, svc, id)
		if response.Status != models.ResponseStatusPending {
			t.Fatalf("response %s status = %q", id, response.Status)
		}
		if response.TicketID != "REQ-9001" {
			t.Fatalf("response %s ticket id = %q", id, response.TicketID)
		}
	}
}

func TestCreateTicketDuplicate(t *testing.T) {
	svc, _ := newTestService()
	createRequestTicket(t, svc, "9001", 100, hospitalB)

	_, err := svc.CreateTicket(context.Background(), CreateTicketInput{
		LocalID:         "9001",
		TicketType:      models.TicketTypeRequest,
		PostingHospital: hospitalA,
		CreatedAt:       baseTime,
		RequestMedicine: &models.RequestMedicine{RequestAmount: 10},
		TargetHospitals: []models.Hospital{hospitalB},
	})
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	svc, _ := newTestService()
	cases := []struct {
		name  string
		input CreateTicketInput
	}{
		{
			name: "missing local id",
			input: CreateTicketInput{
				TicketType:      models.TicketTypeRequest,
				PostingHospital: hospitalA,
				RequestMedicine: &models.RequestMedicine{RequestAmount: 1},
				TargetHospitals: []models.Hospital{hospitalB},
			},
		},
		{
			name: "unknown ticket type",
			input: CreateTicketInput{
				LocalID:         "9001",
				TicketType:      "loan",
				PostingHospital: hospitalA,
				TargetHospitals: []models.Hospital{hospitalB},
			},
		},
		{
			name: "no targets",
			input: CreateTicketInput{
				LocalID:         "9001",
				TicketType:      models.TicketTypeRequest,
				PostingHospital: hospitalA,
				RequestMedicine: &models.RequestMedicine{RequestAmount: 1},
			},
		},
		{
			name: "request without medicine",
			input: CreateTicketInput{
				LocalID:         "9001",
				TicketType:      models.TicketTypeRequest,
				PostingHospital: hospitalA,
				TargetHospitals: []models.Hospital{hospitalB},
			},
		},
		{
			name: "sharing without medicine",
			input: CreateTicketInput{
				LocalID:         "9001",
				TicketType:      models.TicketTypeSharing,
				PostingHospital: hospitalA,
				TargetHospitals: []models.Hospital{hospitalB},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTicket(context.Background(), tc.input)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSetResponseOffer(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)
	responseID := result.ResponseIDs[0]

	ack, err := svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: responseID,
		Status:     models.ResponseStatusOffered,
		OfferedMedicine: &models.OfferedMedicine{
			Medicine:    models.Medicine{Name: "Amoxicillin", Unit: "box"},
			OfferAmount: 40,
		},
		UpdatedAt: baseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if ack.Status != models.ResponseStatusOffered {
		t.Fatalf("ack status = %q", ack.Status)
	}

	// an offered response can still be accepted by the poster
	ack, err = svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: responseID,
		Status:     models.ResponseStatusAccepted,
		UpdatedAt:  baseTime.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ack.Status != models.ResponseStatusAccepted {
		t.Fatalf("ack status = %q", ack.Status)
	}

	response := readResponse(t, svc, responseID)
	if response.OfferedMedicine == nil || response.OfferedMedicine.OfferAmount != 40 {
		t.Fatalf("offered medicine not preserved: %+v", response.OfferedMedicine)
	}

	// accepted is terminal for the respond action
	_, err = svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: responseID,
		Status:     models.ResponseStatusRejected,
		UpdatedAt:  baseTime.Add(3 * time.Hour),
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSetResponseOfferInvalidTarget(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)

	_, err := svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: result.ResponseIDs[0],
		Status:     models.ResponseStatusInTransfer,
		UpdatedAt:  baseTime,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSetResponseOfferMissingResponse(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: "RESP-missing-H002",
		Status:     models.ResponseStatusOffered,
		UpdatedAt:  baseTime,
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "RESP-missing-H002") {
		t.Fatalf("error should name the response: %v", err)
	}
}

func TestSetResponseOfferOrphanedResponse(t *testing.T) {
	svc, store := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Delete(context.Background(), result.TicketID); err != nil {
		t.Fatalf("delete ticket: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	_, err = svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: result.ResponseIDs[0],
		Status:     models.ResponseStatusOffered,
		UpdatedAt:  baseTime,
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func TestAcceptSharing(t *testing.T) {
	svc, _ := newTestService()
	result := createSharingTicket(t, svc, "7001", 100, hospitalB)
	responseID := result.ResponseIDs[0]

	returnDate := baseTime.AddDate(0, 1, 0)
	ack, err := svc.AcceptSharing(context.Background(), AcceptSharingInput{
		ResponseID:    responseID,
		AcceptedOffer: &models.AcceptedOffer{ResponseAmount: 45, Unit: "vial"},
		ReturnTerm:    &models.Term{ExpectedReturnDate: &returnDate},
		UpdatedAt:     baseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("accept sharing: %v", err)
	}
	if ack.Status != models.ResponseStatusAccepted {
		t.Fatalf("ack status = %q", ack.Status)
	}

	response := readResponse(t, svc, responseID)
	if response.AcceptedOffer == nil || response.AcceptedOffer.ResponseAmount != 45 {
		t.Fatalf("accepted offer not stored: %+v", response.AcceptedOffer)
	}
	if response.ReturnTerm == nil || response.ReturnTerm.ExpectedReturnDate == nil {
		t.Fatalf("return term not stored: %+v", response.ReturnTerm)
	}
}

func TestAcceptSharingOnRequestTicket(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)

	_, err := svc.AcceptSharing(context.Background(), AcceptSharingInput{
		ResponseID:    result.ResponseIDs[0],
		AcceptedOffer: &models.AcceptedOffer{ResponseAmount: 10},
		UpdatedAt:     baseTime,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRemainingAmount(t *testing.T) {
	svc, _ := newTestService()
	result := createSharingTicket(t, svc, "7001", 100, hospitalB, hospitalC)

	remaining, err := svc.RemainingAmount(context.Background(), result.TicketID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 100 {
		t.Fatalf("remaining before any acceptance = %v", remaining)
	}

	_, err = svc.AcceptSharing(context.Background(), AcceptSharingInput{
		ResponseID:    result.ResponseIDs[0],
		AcceptedOffer: &models.AcceptedOffer{ResponseAmount: 45},
		UpdatedAt:     baseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("accept sharing: %v", err)
	}

	remaining, err = svc.RemainingAmount(context.Background(), result.TicketID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 55 {
		t.Fatalf("remaining after accepting 45 = %v, want 55", remaining)
	}

	// a rejection must not reduce the remaining amount
	_, err = svc.SetResponseOffer(context.Background(), RespondInput{
		ResponseID: result.ResponseIDs[1],
		Status:     models.ResponseStatusRejected,
		UpdatedAt:  baseTime.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	remaining, err = svc.RemainingAmount(context.Background(), result.TicketID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 55 {
		t.Fatalf("remaining after rejection = %v, want 55", remaining)
	}
}

func TestUpdateTicketStatus(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)

	ack, err := svc.UpdateTicketStatus(context.Background(), result.TicketID, models.TicketStatusClosed, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if ack.Status != models.TicketStatusClosed {
		t.Fatalf("ack status = %q", ack.Status)
	}

	_, err = svc.UpdateTicketStatus(context.Background(), "REQ-missing", models.TicketStatusClosed, baseTime)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = svc.UpdateTicketStatus(context.Background(), result.TicketID, "", baseTime)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReadByIdRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	result := createRequestTicket(t, svc, "9001", 100, hospitalB)

	first, err := svc.ReadById(context.Background(), result.TicketID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	second, err := svc.ReadById(context.Background(), result.TicketID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("stored document changed between reads:\n%s\n%s", first, second)
	}

	_, err = svc.ReadById(context.Background(), "REQ-missing")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
