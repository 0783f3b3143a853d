package payments

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventCheckoutComplete = "checkout.session.completed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is the part of a processor event the storefront acts on.
type Event struct {
	ID              string
	Type            string
	OrderID         string
	PaymentIntentID string
	Amount          int64
	FailureMessage  string
}

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the signature before decoding anything from payload.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (*Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data == nil {
		return event, nil
	}

	switch event.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		event.PaymentIntentID = pi.ID
		event.OrderID = pi.Metadata[MetaOrderID]
		event.Amount = pi.AmountReceived
		if event.Amount == 0 {
			event.Amount = pi.Amount
		}
		if pi.LastPaymentError != nil {
			event.FailureMessage = pi.LastPaymentError.Msg
		}
	case EventCheckoutComplete:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		event.OrderID = session.Metadata[MetaOrderID]
		if session.ClientReferenceID != "" && event.OrderID == "" {
			event.OrderID = session.ClientReferenceID
		}
		if session.PaymentIntent != nil {
			event.PaymentIntentID = session.PaymentIntent.ID
		}
		event.Amount = session.AmountTotal
	}

	return event, nil
}
