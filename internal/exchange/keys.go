package exchange

import (
	"strings"

	"medex/exchange-service/internal/models"
)

// Keys are derived, not allocated: every entity key is reconstructible from
// its parent identifiers, so the issuer can return the full fan-out key set
// without reading anything back.
const (
	requestKeyPrefix  = "REQ-"
	sharingKeyPrefix  = "SHAR-"
	responseKeyPrefix = "RESP-"
	transferKeyPrefix = "TRANS-"
)

func TicketKey(ticketType, localID string) string {
	switch ticketType {
	case models.TicketTypeSharing:
		return sharingKeyPrefix + localID
	default:
		return requestKeyPrefix + localID
	}
}

// TicketLocalID strips the type prefix from a ticket key.
func TicketLocalID(ticketID string) string {
	if rest, ok := strings.CutPrefix(ticketID, requestKeyPrefix); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(ticketID, sharingKeyPrefix); ok {
		return rest
	}
	return ticketID
}

func ResponseKey(ticketID, hospitalID string) string {
	return responseKeyPrefix + TicketLocalID(ticketID) + "-" + hospitalID
}

func TransferKey(ticketID, postingHospitalID string) string {
	return transferKeyPrefix + ticketID + "-" + postingHospitalID
}
