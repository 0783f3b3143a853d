package models

import (
	"time"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusReady     = "ready"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	QuoteStatusQuoted   = "quoted"
	QuoteStatusAccepted = "accepted"
	QuoteStatusDeclined = "declined"
)

type Order struct {
	ID                  string     `json:"id"`
	CustomerName        string     `json:"customerName"`
	CustomerEmail       string     `json:"customerEmail"`
	CustomerPhone       string     `json:"customerPhone"`
	DeliveryAddress     string     `json:"deliveryAddress"`
	SpecialInstructions *string    `json:"specialInstructions"`
	Items               []LineItem `json:"items"`
	Total               int        `json:"total"`
	Status              string     `json:"status"`
	PaymentIntentID     *string    `json:"paymentIntentId"`
	AdminNotes          *string    `json:"adminNotes"`
	QuotedPrice         *int       `json:"quotedPrice"`
	QuoteStatus         *string    `json:"quoteStatus"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// LineItem prices are whole currency units resolved from the catalog.
type LineItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Quantity    int    `json:"quantity"`
	CustomNotes string `json:"customNotes,omitempty"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Order   *Order `json:"order,omitempty"`
}

// Confirmation is the customer-facing view of an order.
type Confirmation struct {
	ID           string     `json:"id"`
	CustomerName string     `json:"customerName"`
	Items        []LineItem `json:"items"`
	Total        int        `json:"total"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (o *Order) Confirmation() Confirmation {
	return Confirmation{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Items:        o.Items,
		Total:        o.Total,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
	}
}

func LineTotal(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Price * item.Quantity
	}
	return total
}
