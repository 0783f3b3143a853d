package models

import "time"

const (
	NotificationOperatorNewOrder     = "operator_new_order"
	NotificationCustomerConfirmation = "customer_confirmation"
	NotificationCustomerQuote        = "customer_quote"
	NotificationCustomerMessage      = "customer_message"
)

const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is one email waiting in (or delivered from) the outbox.
type Notification struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	Kind          string    `json:"kind"`
	Recipient     string    `json:"recipient"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
