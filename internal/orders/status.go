package orders

import "github.com/diamonddulceria/storefront/pkg/models"

var transitions = map[string][]string{
	models.OrderStatusPending: {models.OrderStatusPaid, models.OrderStatusCancelled},
	models.OrderStatusPaid:    {models.OrderStatusReady, models.OrderStatusCancelled},
	models.OrderStatusReady:   {models.OrderStatusCompleted, models.OrderStatusCancelled},
}

func ValidStatus(status string) bool {
	switch status {
	case models.OrderStatusPending, models.OrderStatusPaid, models.OrderStatusReady,
		models.OrderStatusCompleted, models.OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to follows the forward lifecycle.
// Admin status edits bypass this; payment confirmation paths must honour it.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == models.OrderStatusCompleted || status == models.OrderStatusCancelled
}

func ValidQuoteStatus(status string) bool {
	switch status {
	case models.QuoteStatusQuoted, models.QuoteStatusAccepted, models.QuoteStatusDeclined:
		return true
	}
	return false
}
