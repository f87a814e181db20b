package models

import "time"

type Ticket struct {
	ID                     string           `json:"id"`
	TicketType             string           `json:"ticketType"`
	PostingHospitalID      string           `json:"postingHospitalId"`
	PostingHospitalNameEN  string           `json:"postingHospitalNameEN"`
	PostingHospitalNameTH  string           `json:"postingHospitalNameTH,omitempty"`
	PostingHospitalAddress string           `json:"postingHospitalAddress,omitempty"`
	Status                 string           `json:"status"`
	Urgent                 bool             `json:"urgent,omitempty"`
	CreatedAt              time.Time        `json:"createdAt"`
	UpdatedAt              time.Time        `json:"updatedAt"`
	RequestMedicine        *RequestMedicine `json:"requestMedicine,omitempty"`
	RequestTerm            *Term            `json:"requestTerm,omitempty"`
	SharingMedicine        *SharingMedicine `json:"sharingMedicine,omitempty"`
	SharingReturnTerm      *Term            `json:"sharingReturnTerm,omitempty"`
	ResponseIDs            []string         `json:"responseIds"`
}

type Medicine struct {
	Name            string     `json:"name"`
	Unit            string     `json:"unit"`
	BatchNumber     string     `json:"batchNumber,omitempty"`
	Manufacturer    string     `json:"manufacturer,omitempty"`
	ManufactureDate *time.Time `json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
	ImageRef        string     `json:"imageRef,omitempty"`
}

type RequestMedicine struct {
	Medicine
	RequestAmount float64 `json:"requestAmount"`
}

type SharingMedicine struct {
	Medicine
	SharingAmount float64 `json:"sharingAmount"`
}

type ReceiveConditions struct {
	ExactType  bool   `json:"exactType"`
	Subsidiary bool   `json:"subsidiary"`
	Other      bool   `json:"other"`
	Notes      string `json:"notes,omitempty"`
}

type Term struct {
	ExpectedReturnDate *time.Time         `json:"expectedReturnDate,omitempty"`
	ReceiveConditions  *ReceiveConditions `json:"receiveConditions,omitempty"`
	ReturnConditions   string             `json:"returnConditions,omitempty"`
}

const (
	TicketTypeRequest = "request"
	TicketTypeSharing = "sharing"
)

const (
	TicketStatusOpen   = "open"
	TicketStatusClosed = "closed"
)

// OriginalAmount returns the quantity the posting hospital asked for or
// offered, depending on the ticket type. Missing descriptors count as zero.
func (t Ticket) OriginalAmount() float64 {
	switch t.TicketType {
	case TicketTypeRequest:
		if t.RequestMedicine != nil {
			return t.RequestMedicine.RequestAmount
		}
	case TicketTypeSharing:
		if t.SharingMedicine != nil {
			return t.SharingMedicine.SharingAmount
		}
	}
	return 0
}
