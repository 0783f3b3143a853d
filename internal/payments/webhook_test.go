package payments

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_storefront"

func signPayload(t *testing.T, payload []byte) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestVerifyPaymentSucceeded(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"api_version": %q,
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 8500,
			"amount_received": 8500,
			"status": "succeeded",
			"metadata": {"order_id": "0b7d4a5e-3c1f-4f2e-9a8b-1c2d3e4f5a6b"}
		}}
	}`, stripe.APIVersion))
	body, header := signPayload(t, payload)

	event, err := NewWebhookVerifier(testWebhookSecret).Verify(body, header)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if event.Type != EventPaymentSucceeded || event.PaymentIntentID != "pi_123" || event.Amount != 8500 {
		t.Errorf("Unexpected event: %+v", event)
	}
	if event.OrderID != "0b7d4a5e-3c1f-4f2e-9a8b-1c2d3e4f5a6b" {
		t.Errorf("Expected order id from metadata, got %q", event.OrderID)
	}
}

func TestVerifyCheckoutSessionCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "checkout.session.completed",
		"api_version": "2020-08-27",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"payment_intent": "pi_777",
			"amount_total": 2500,
			"metadata": {"order_id": "ord-1"}
		}}
	}`)
	body, header := signPayload(t, payload)

	event, err := NewWebhookVerifier(testWebhookSecret).Verify(body, header)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if event.OrderID != "ord-1" || event.PaymentIntentID != "pi_777" || event.Amount != 2500 {
		t.Errorf("Unexpected event: %+v", event)
	}
}

func TestVerifyRejectsBadSignatures(t *testing.T) {
	payload := []byte(`{"id":"evt_3","type":"payment_intent.succeeded","data":{"object":{}}}`)
	verifier := NewWebhookVerifier(testWebhookSecret)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage", "t=1234567890,v1=invalidsignaturevalue"},
		{"wrong_secret", webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload: payload, Secret: "whsec_other", Timestamp: time.Now(),
		}).Header},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(payload, tt.header)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsEmptySecret(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_4",
		"type": "payment_intent.succeeded",
		"api_version": %q,
		"data": {"object": {"id": "pi_forged", "object": "payment_intent", "amount": 100, "status": "succeeded",
			"metadata": {"order_id": "11111111-1111-4111-8111-111111111111"}}}
	}`, stripe.APIVersion))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload, Secret: "", Timestamp: time.Now(),
	})

	event, err := NewWebhookVerifier("").Verify(signed.Payload, signed.Header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Expected ErrInvalidSignature without a secret, got %v", err)
	}
	if event != nil {
		t.Errorf("No event may be decoded without a secret, got %+v", event)
	}
}
