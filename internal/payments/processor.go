package payments

import (
	"context"
	"errors"
	"strconv"
)

const StatusSucceeded = "succeeded"

// Metadata keys attached to every intent this service creates.
const (
	MetaFingerprint = "cart_fingerprint"
	MetaSubtotal    = "subtotal"
	MetaDiscount    = "discount"
	MetaPromoCode   = "promo_code"
	MetaOrderID     = "order_id"
)

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrUnavailable    = errors.New("payment processor unavailable")
	ErrDisabled       = errors.New("payments are disabled")
)

type Intent struct {
	ID           string
	ClientSecret string
	// Amount is in minor units.
	Amount   int64
	Currency string
	Status   string
	Metadata map[string]string
}

type IntentRequest struct {
	Amount         int64
	Currency       string
	ReceiptEmail   string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Processor is the narrow slice of the payment provider the storefront uses.
type Processor interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

// MinorUnits converts a whole-unit total into the processor's smallest unit.
func MinorUnits(total int) int64 {
	return int64(total) * 100
}

// MetaInt reads an integer metadata value, reporting false when absent or malformed.
func (i *Intent) MetaInt(key string) (int, bool) {
	v, ok := i.Metadata[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

type DisabledProcessor struct{}

func (DisabledProcessor) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	return nil, ErrDisabled
}

func (DisabledProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	return nil, ErrDisabled
}
