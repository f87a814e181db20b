package models

import "time"

type Transfer struct {
	TransferID         string           `json:"transferId"`
	TransactionType    string           `json:"transactionType"`
	TicketID           string           `json:"ticketId"`
	ResponseID         string           `json:"responseId"`
	FromHospitalID     string           `json:"fromHospitalId"`
	FromHospitalNameEN string           `json:"fromHospitalNameEN"`
	ToHospitalID       string           `json:"toHospitalId"`
	ToHospitalNameEN   string           `json:"toHospitalNameEN"`
	Status             string           `json:"status"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	ShipmentDetails    ShipmentDetails  `json:"shipmentDetails"`
	ShipmentUpdates    []ShipmentUpdate `json:"shipmentUpdates,omitempty"`
}

// ShipmentDetails starts out empty at promotion time and is filled in by
// shipment updates as the carrier reports progress.
type ShipmentDetails struct {
	TrackingNumber *string    `json:"trackingNumber"`
	Carrier        *string    `json:"carrier"`
	ShippedFrom    *string    `json:"shippedFrom"`
	ShippedTo      *string    `json:"shippedTo"`
	ShipmentDate   *time.Time `json:"shipmentDate"`
}

type ShipmentUpdate struct {
	ShipmentID     string    `json:"shipmentId"`
	ShipmentStatus string    `json:"shipmentStatus"`
	StatusDate     time.Time `json:"statusDate"`
}

const TransactionTypeTransfer = "transfer"
