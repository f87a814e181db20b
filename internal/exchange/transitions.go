package exchange

import "medex/exchange-service/internal/models"

// The source of record for which response statuses each action may start
// from. The original contract only guarded transfer promotion; here every
// response mutation consults the table.
var transitionMap = map[string][]string{
	"respond":        {models.ResponseStatusPending, models.ResponseStatusOffered},
	"accept-sharing": {models.ResponseStatusPending, models.ResponseStatusOffered},
	"promote":        {models.ResponseStatusAccepted},
	"record-return":  {models.ResponseStatusInTransfer, models.ResponseStatusInReturn, models.ResponseStatusToReturn},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// respondTargets are the statuses a responding hospital may set directly.
var respondTargets = []string{
	models.ResponseStatusOffered,
	models.ResponseStatusAccepted,
	models.ResponseStatusRejected,
}

func validRespondTarget(status string) bool {
	for _, target := range respondTargets {
		if status == target {
			return true
		}
	}
	return false
}
