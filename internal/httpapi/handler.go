package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"medex/exchange-service/internal/exchange"
	"medex/exchange-service/internal/hospitals"
	"medex/exchange-service/internal/ledger"
	"medex/exchange-service/internal/models"
)

type ExchangeService interface {
	CreateTicket(ctx context.Context, input exchange.CreateTicketInput) (exchange.CreateTicketResult, error)
	SetResponseOffer(ctx context.Context, input exchange.RespondInput) (exchange.Ack, error)
	AcceptSharing(ctx context.Context, input exchange.AcceptSharingInput) (exchange.Ack, error)
	PromoteToTransfer(ctx context.Context, responseID string, updatedAt time.Time) (exchange.PromoteResult, error)
	RecordReturn(ctx context.Context, responseID string, entry models.ReturnRecord) (exchange.Ack, error)
	UpdateShipment(ctx context.Context, input exchange.ShipmentInput) (exchange.Ack, error)
	UpdateTicketStatus(ctx context.Context, ticketID, status string, updatedAt time.Time) (exchange.Ack, error)
	RemainingAmount(ctx context.Context, ticketID string) (float64, error)
	QueryTicketsToHospital(ctx context.Context, hospitalName, statusFilter, ticketKind string) ([]exchange.EnrichedResponse, error)
	QueryTicketsByPostingHospital(ctx context.Context, hospitalName, statusFilter string) ([]exchange.EnrichedTicket, error)
	ListTickets(ctx context.Context, ticketKind, statusFilter string) ([]models.Ticket, error)
	ReadById(ctx context.Context, id string) (json.RawMessage, error)
}

type Handler struct {
	service   ExchangeService
	directory *hospitals.Directory
}

func NewHandler(service ExchangeService, directory *hospitals.Directory) *Handler {
	return &Handler{service: service, directory: directory}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubresource)
	mux.HandleFunc("/api/responses", h.handleResponseQuery)
	mux.HandleFunc("/api/responses/", h.handleResponseSubresource)
	mux.HandleFunc("/api/transfers/", h.handleTransferSubresource)
	mux.HandleFunc("/api/documents/", h.handleDocument)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTicketRequest struct {
	TicketID          string                  `json:"ticketId"`
	TicketType        string                  `json:"ticketType"`
	PostingHospitalID string                  `json:"postingHospitalId"`
	Urgent            bool                    `json:"urgent"`
	RequestMedicine   *models.RequestMedicine `json:"requestMedicine"`
	RequestTerm       *models.Term            `json:"requestTerm"`
	SharingMedicine   *models.SharingMedicine `json:"sharingMedicine"`
	SharingReturnTerm *models.Term            `json:"sharingReturnTerm"`
	TargetHospitalIDs []string                `json:"targetHospitalIds"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTicket(w, r)
	case http.MethodGet:
		h.listTickets(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createTicket(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)

	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.TicketID = strings.TrimSpace(req.TicketID)
	req.TicketType = strings.TrimSpace(req.TicketType)
	req.PostingHospitalID = strings.TrimSpace(req.PostingHospitalID)

	if req.TicketID == "" || req.TicketType == "" || req.PostingHospitalID == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "ticketId, ticketType, and postingHospitalId are required")
		return
	}
	if len(req.TargetHospitalIDs) == 0 {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "targetHospitalIds must not be empty")
		return
	}
	if !h.requireCaller(w, r, req.PostingHospitalID) {
		return
	}

	posting, ok := h.directory.Lookup(req.PostingHospitalID)
	if !ok {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "unknown posting hospital")
		return
	}
	targets, err := h.directory.Resolve(req.TargetHospitalIDs)
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	now := time.Now().UTC()
	result, err := h.service.CreateTicket(r.Context(), exchange.CreateTicketInput{
		LocalID:           req.TicketID,
		TicketType:        req.TicketType,
		PostingHospital:   posting.Hospital,
		Urgent:            req.Urgent,
		CreatedAt:         now,
		RequestMedicine:   req.RequestMedicine,
		RequestTerm:       req.RequestTerm,
		SharingMedicine:   req.SharingMedicine,
		SharingReturnTerm: req.SharingReturnTerm,
		TargetHospitals:   targets,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()
	hospitalName := strings.TrimSpace(query.Get("postingHospital"))
	statusFilter := strings.TrimSpace(query.Get("status"))
	ticketKind := strings.TrimSpace(query.Get("ticketType"))

	if hospitalName != "" {
		tickets, err := h.service.QueryTicketsByPostingHospital(r.Context(), hospitalName, statusFilter)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, tickets)
		return
	}

	if ticketKind == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "postingHospital or ticketType is required")
		return
	}
	tickets, err := h.service.ListTickets(r.Context(), ticketKind, statusFilter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleTicketSubresource(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	ticketID, action, ok := splitSubresource(r.URL.Path, "/api/tickets/")
	if !ok {
		writeError(w, requestID, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.readDocument(w, r, ticketID)
	case action == "remaining" && r.Method == http.MethodGet:
		remaining, err := h.service.RemainingAmount(r.Context(), ticketID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ticketId": ticketID, "remainingAmount": remaining})
	case action == "status" && r.Method == http.MethodPost:
		var req updateStatusRequest
		if !decodeBody(w, r, requestID, &req) {
			return
		}
		req.Status = strings.TrimSpace(req.Status)
		if req.Status == "" {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "status is required")
			return
		}
		ack, err := h.service.UpdateTicketStatus(r.Context(), ticketID, req.Status, time.Now().UTC())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleResponseQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()
	hospitalName := strings.TrimSpace(query.Get("hospital"))
	statusFilter := strings.TrimSpace(query.Get("status"))
	ticketKind := strings.TrimSpace(query.Get("ticketType"))
	if hospitalName == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "hospital is required")
		return
	}

	responses, err := h.service.QueryTicketsToHospital(r.Context(), hospitalName, statusFilter, ticketKind)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

type respondRequest struct {
	Status          string                  `json:"status"`
	OfferedMedicine *models.OfferedMedicine `json:"offeredMedicine"`
}

type acceptSharingRequest struct {
	AcceptedOffer *models.AcceptedOffer `json:"acceptedOffer"`
	ReturnTerm    *models.Term          `json:"returnTerm"`
}

type recordReturnRequest struct {
	ReturnAmount float64 `json:"returnAmount"`
	BatchNumber  string  `json:"batchNumber"`
	Notes        string  `json:"notes"`
}

func (h *Handler) handleResponseSubresource(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	responseID, action, ok := splitSubresource(r.URL.Path, "/api/responses/")
	if !ok {
		writeError(w, requestID, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	if action == "" && r.Method == http.MethodGet {
		h.readDocument(w, r, responseID)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now().UTC()
	switch action {
	case "offer":
		var req respondRequest
		if !decodeBody(w, r, requestID, &req) {
			return
		}
		ack, err := h.service.SetResponseOffer(r.Context(), exchange.RespondInput{
			ResponseID:      responseID,
			Status:          strings.TrimSpace(req.Status),
			OfferedMedicine: req.OfferedMedicine,
			UpdatedAt:       now,
		})
		h.writeAck(w, requestID, ack, err)
	case "accept":
		var req acceptSharingRequest
		if !decodeBody(w, r, requestID, &req) {
			return
		}
		ack, err := h.service.AcceptSharing(r.Context(), exchange.AcceptSharingInput{
			ResponseID:    responseID,
			AcceptedOffer: req.AcceptedOffer,
			ReturnTerm:    req.ReturnTerm,
			UpdatedAt:     now,
		})
		h.writeAck(w, requestID, ack, err)
	case "transfer":
		result, err := h.service.PromoteToTransfer(r.Context(), responseID, now)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "returns":
		var req recordReturnRequest
		if !decodeBody(w, r, requestID, &req) {
			return
		}
		ack, err := h.service.RecordReturn(r.Context(), responseID, models.ReturnRecord{
			ReturnAmount: req.ReturnAmount,
			ReturnedAt:   now,
			BatchNumber:  strings.TrimSpace(req.BatchNumber),
			Notes:        strings.TrimSpace(req.Notes),
		})
		h.writeAck(w, requestID, ack, err)
	default:
		writeError(w, requestID, http.StatusNotFound, "not_found", "unknown route")
	}
}

type shipmentRequest struct {
	ShipmentStatus string                  `json:"shipmentStatus"`
	Details        *models.ShipmentDetails `json:"details"`
}

func (h *Handler) handleTransferSubresource(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	transferID, action, ok := splitSubresource(r.URL.Path, "/api/transfers/")
	if !ok {
		writeError(w, requestID, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.readDocument(w, r, transferID)
	case action == "shipment" && r.Method == http.MethodPost:
		var req shipmentRequest
		if !decodeBody(w, r, requestID, &req) {
			return
		}
		req.ShipmentStatus = strings.TrimSpace(req.ShipmentStatus)
		if req.ShipmentStatus == "" {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "shipmentStatus is required")
			return
		}
		ack, err := h.service.UpdateShipment(r.Context(), exchange.ShipmentInput{
			TransferID:     transferID,
			ShipmentStatus: req.ShipmentStatus,
			StatusDate:     time.Now().UTC(),
			Details:        req.Details,
		})
		h.writeAck(w, requestID, ack, err)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "unknown route")
		return
	}
	h.readDocument(w, r, id)
}

func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request, id string) {
	requestID := requestIDFromRequest(r)
	doc, err := h.service.ReadById(r.Context(), id)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) writeAck(w http.ResponseWriter, requestID string, ack exchange.Ack, err error) {
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// requireCaller checks that an authenticated hospital only acts as itself.
// Unauthenticated deployments (no auth middleware) skip the check.
func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request, hospitalID string) bool {
	caller, ok := callerHospital(r.Context())
	if !ok {
		return true
	}
	if caller != hospitalID {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "hospital mismatch")
		return false
	}
	return true
}

func splitSubresource(path, prefix string) (id, action string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", parts[0] != ""
	case 2:
		return parts[0], parts[1], parts[0] != "" && parts[1] != ""
	default:
		return "", "", false
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, requestID string, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, ledger.ErrAlreadyExists):
		return http.StatusConflict, "already_exists", err.Error()
	case errors.Is(err, exchange.ErrInvalidState):
		return http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, exchange.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, "conflict", "document modified concurrently, retry the request"
	case errors.Is(err, ledger.ErrQueryUnsupported):
		return http.StatusNotImplemented, "query_unsupported", "store does not support selector queries"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
