package models

import (
	"bytes"
	"encoding/json"
	"time"
)

type Response struct {
	ID                        string           `json:"id"`
	TicketID                  string           `json:"ticketId"`
	TicketType                string           `json:"ticketType"`
	RespondingHospitalID      string           `json:"respondingHospitalId"`
	RespondingHospitalNameEN  string           `json:"respondingHospitalNameEN"`
	RespondingHospitalNameTH  string           `json:"respondingHospitalNameTH,omitempty"`
	RespondingHospitalAddress string           `json:"respondingHospitalAddress,omitempty"`
	Status                    string           `json:"status"`
	CreatedAt                 time.Time        `json:"createdAt"`
	UpdatedAt                 time.Time        `json:"updatedAt"`
	OfferedMedicine           *OfferedMedicine `json:"offeredMedicine,omitempty"`
	AcceptedOffer             *AcceptedOffer   `json:"acceptedOffer,omitempty"`
	ReturnTerm                *Term            `json:"returnTerm,omitempty"`
	ReturnMedicine            ReturnList       `json:"returnMedicine,omitempty"`
}

// OfferedMedicine is the responding hospital's offer against a request ticket.
type OfferedMedicine struct {
	Medicine
	OfferAmount float64 `json:"offerAmount"`
}

// AcceptedOffer is the responding hospital's acceptance of a sharing ticket.
type AcceptedOffer struct {
	ResponseAmount float64 `json:"responseAmount"`
	Unit           string  `json:"unit,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

type ReturnRecord struct {
	ReturnAmount float64   `json:"returnAmount"`
	ReturnedAt   time.Time `json:"returnedAt"`
	BatchNumber  string    `json:"batchNumber,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// ReturnList is an append-only list of return entries. Older documents stored
// a single object instead of a list; decoding normalizes both forms.
type ReturnList []ReturnRecord

func (l *ReturnList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '[' {
		var records []ReturnRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return err
		}
		*l = records
		return nil
	}
	var record ReturnRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return err
	}
	*l = ReturnList{record}
	return nil
}

func (r *ReturnRecord) UnmarshalJSON(data []byte) error {
	type plain ReturnRecord
	var record plain
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	*r = ReturnRecord(record)
	if r.ReturnAmount != 0 {
		return nil
	}
	// legacy nested form: {"returnMedicine": {"returnAmount": ...}}
	var nested struct {
		ReturnMedicine *struct {
			ReturnAmount float64 `json:"returnAmount"`
		} `json:"returnMedicine"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.ReturnMedicine != nil {
		r.ReturnAmount = nested.ReturnMedicine.ReturnAmount
	}
	return nil
}

const (
	ResponseStatusPending       = "pending"
	ResponseStatusOffered       = "offered"
	ResponseStatusAccepted      = "accepted"
	ResponseStatusRejected      = "rejected"
	ResponseStatusToTransfer    = "to-transfer"
	ResponseStatusInTransfer    = "in-transfer"
	ResponseStatusToConfirm     = "to-confirm"
	ResponseStatusInReturn      = "in-return"
	ResponseStatusToReturn      = "to-return"
	ResponseStatusConfirmReturn = "confirm-return"
	ResponseStatusCompleted     = "completed"
	ResponseStatusReturned      = "returned"
)

// OfferedAmount returns the quantity this response committed to, from
// whichever offer shape the ticket type uses. Missing offers count as zero.
func (r Response) OfferedAmount() float64 {
	if r.OfferedMedicine != nil {
		return r.OfferedMedicine.OfferAmount
	}
	if r.AcceptedOffer != nil {
		return r.AcceptedOffer.ResponseAmount
	}
	return 0
}

// ReturnedAmount sums the quantities across all recorded return entries.
func (r Response) ReturnedAmount() float64 {
	var total float64
	for _, record := range r.ReturnMedicine {
		total += record.ReturnAmount
	}
	return total
}
