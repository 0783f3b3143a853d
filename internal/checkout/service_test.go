package checkout

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/diamonddulceria/storefront/internal/catalog"
	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/diamonddulceria/storefront/pkg/models"
)

func TestPreparePayment(t *testing.T) {
	tests := []struct {
		name         string
		lines        []catalog.CartLine
		promoCode    string
		wantSkip     bool
		wantTotal    int
		wantDiscount int
	}{
		{
			name:      "priced_cart",
			lines:     []catalog.CartLine{{ID: "dubai-chocolate", Quantity: 2}},
			wantTotal: 100,
		},
		{
			name:     "custom_request_skips_payment",
			lines:    []catalog.CartLine{{ID: "bespoke-diamond", Quantity: 1, CustomNotes: "pink diamond"}},
			wantSkip: true,
		},
		{
			name:         "percentage_promo",
			lines:        []catalog.CartLine{{ID: "dubai-chocolate", Quantity: 2}},
			promoCode:    "sweet10",
			wantTotal:    90,
			wantDiscount: 10,
		},
		{
			name:         "fixed_promo",
			lines:        []catalog.CartLine{{ID: "truffle-box", Quantity: 1}},
			promoCode:    "FIVEOFF",
			wantTotal:    20,
			wantDiscount: 5,
		},
		{
			name:         "oversized_promo_clamps_to_free",
			lines:        []catalog.CartLine{{ID: "dubai-chocolate", Quantity: 1}},
			promoCode:    "ALLFREE",
			wantSkip:     true,
			wantDiscount: 50,
		},
		{
			name:      "inactive_promo_ignored",
			lines:     []catalog.CartLine{{ID: "truffle-box", Quantity: 2}},
			promoCode: "RETIRED",
			wantTotal: 50,
		},
		{
			name:      "unknown_promo_ignored",
			lines:     []catalog.CartLine{{ID: "truffle-box", Quantity: 2}},
			promoCode: "NOPE",
			wantTotal: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			prep, err := f.service.PreparePayment(context.Background(), tt.lines, tt.promoCode)
			if err != nil {
				t.Fatalf("PreparePayment returned error: %v", err)
			}
			if prep.SkipPayment != tt.wantSkip {
				t.Errorf("SkipPayment = %v, want %v", prep.SkipPayment, tt.wantSkip)
			}
			if prep.Total != tt.wantTotal || prep.Discount != tt.wantDiscount {
				t.Errorf("Total/Discount = %d/%d, want %d/%d", prep.Total, prep.Discount, tt.wantTotal, tt.wantDiscount)
			}

			if tt.wantSkip {
				if len(f.processor.created) != 0 {
					t.Error("Skip-payment path must not create a payment intent")
				}
				return
			}

			if len(f.processor.created) != 1 {
				t.Fatalf("Expected one intent, got %d", len(f.processor.created))
			}
			req := f.processor.created[0]
			if req.Amount != int64(tt.wantTotal)*100 {
				t.Errorf("Intent amount = %d, want %d", req.Amount, tt.wantTotal*100)
			}
			if req.Metadata[payments.MetaFingerprint] != catalog.Fingerprint(prep.Items) {
				t.Errorf("Intent fingerprint = %q", req.Metadata[payments.MetaFingerprint])
			}
			if prep.ClientSecret == "" || prep.PaymentIntentID == "" {
				t.Error("Expected client secret and intent id")
			}
		})
	}
}

func TestPreparePaymentErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []catalog.CartLine
		code  Code
	}{
		{"empty_cart", nil, CodeValidation},
		{"zero_quantity", []catalog.CartLine{{ID: "fudge", Quantity: 0}}, CodeValidation},
		{"unknown_product", []catalog.CartLine{{ID: "ghost", Quantity: 1}}, CodeProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.service.PreparePayment(context.Background(), tt.lines, "")
			if !IsCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestPreparePaymentProcessorFailure(t *testing.T) {
	f := newFixture()
	f.processor.createErr = payments.ErrUnavailable

	_, err := f.service.PreparePayment(context.Background(), []catalog.CartLine{{ID: "fudge", Quantity: 1}}, "")

	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodePreparationFailed {
		t.Fatalf("Expected payment_preparation_failed, got %v", err)
	}
	if ce.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", ce.HTTPStatus())
	}
}

// prepareAndPay runs preparation and marks the resulting intent succeeded.
func prepareAndPay(t *testing.T, f *fixture, lines []catalog.CartLine, promoCode string) string {
	t.Helper()
	prep, err := f.service.PreparePayment(context.Background(), lines, promoCode)
	if err != nil {
		t.Fatalf("PreparePayment returned error: %v", err)
	}
	f.processor.succeed(prep.PaymentIntentID)
	return prep.PaymentIntentID
}

func TestCompleteOrderCreatesPaidOrder(t *testing.T) {
	f := newFixture()
	lines := []catalog.CartLine{{ID: "dubai-chocolate", Quantity: 2}}
	intentID := prepareAndPay(t, f, lines, "SWEET10")

	order, err := f.service.CompleteOrder(context.Background(), intentID, testCustomer, lines)
	if err != nil {
		t.Fatalf("CompleteOrder returned error: %v", err)
	}

	if order.Status != models.OrderStatusPaid {
		t.Errorf("Expected paid, got %s", order.Status)
	}
	if order.Total != 90 {
		t.Errorf("Expected total 90 after discount, got %d", order.Total)
	}
	if order.Items[0].Price != 50 {
		t.Errorf("Expected catalog price 50, got %d", order.Items[0].Price)
	}
	if order.PaymentIntentID == nil || *order.PaymentIntentID != intentID {
		t.Errorf("Expected payment intent %s on order", intentID)
	}
	if len(f.orders.notifications) != 2 {
		t.Errorf("Expected operator and customer notifications, got %d", len(f.orders.notifications))
	}
	if len(f.events.types) != 1 || f.events.types[0] != "order_created" {
		t.Errorf("Expected one order_created event, got %v", f.events.types)
	}
}

func TestCompleteOrderIsIdempotentPerIntent(t *testing.T) {
	f := newFixture()
	lines := []catalog.CartLine{{ID: "fudge", Quantity: 3}}
	intentID := prepareAndPay(t, f, lines, "")

	first, err := f.service.CompleteOrder(context.Background(), intentID, testCustomer, lines)
	if err != nil {
		t.Fatalf("first CompleteOrder: %v", err)
	}
	second, err := f.service.CompleteOrder(context.Background(), intentID, testCustomer, lines)
	if err != nil {
		t.Fatalf("second CompleteOrder: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Expected the same order back, got %s and %s", first.ID, second.ID)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected exactly one order, got %d", f.orders.count())
	}
	if len(f.orders.notifications) != 2 {
		t.Errorf("Duplicate completion must not enqueue more notifications, got %d", len(f.orders.notifications))
	}
}

func TestCompleteOrderRejections(t *testing.T) {
	paid := []catalog.CartLine{{ID: "truffle-box", Quantity: 2}}

	tests := []struct {
		name     string
		pay      bool
		complete []catalog.CartLine
		mutate   func(f *fixture, intentID string)
		code     Code
	}{
		{
			name:     "payment_not_succeeded",
			pay:      false,
			complete: paid,
			code:     CodePaymentNotCompleted,
		},
		{
			name:     "charged_amount_differs_by_one_cent",
			pay:      true,
			complete: paid,
			mutate: func(f *fixture, intentID string) {
				f.processor.intents[intentID].Amount--
			},
			code: CodeAmountMismatch,
		},
		{
			name:     "different_total",
			pay:      true,
			complete: []catalog.CartLine{{ID: "truffle-box", Quantity: 3}},
			code:     CodeAmountMismatch,
		},
		{
			name:     "same_total_different_items",
			pay:      true,
			complete: []catalog.CartLine{{ID: "truffle-box", Quantity: 1}, {ID: "fudge", Quantity: 1}},
			code:     CodeCartChanged,
		},
		{
			name:     "product_removed",
			pay:      true,
			complete: []catalog.CartLine{{ID: "ghost", Quantity: 1}},
			code:     CodeProductNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			prep, err := f.service.PreparePayment(context.Background(), paid, "")
			if err != nil {
				t.Fatalf("PreparePayment: %v", err)
			}
			if tt.pay {
				f.processor.succeed(prep.PaymentIntentID)
			}
			if tt.mutate != nil {
				tt.mutate(f, prep.PaymentIntentID)
			}

			_, err = f.service.CompleteOrder(context.Background(), prep.PaymentIntentID, testCustomer, tt.complete)
			if !IsCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
			if f.orders.count() != 0 {
				t.Errorf("No order may be created on rejection, found %d", f.orders.count())
			}
		})
	}
}

func TestCompleteOrderProcessorErrors(t *testing.T) {
	tests := []struct {
		name   string
		getErr error
		code   Code
	}{
		{"unknown_intent", payments.ErrIntentNotFound, CodePaymentNotCompleted},
		{"breaker_open", payments.ErrUnavailable, CodeProcessorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.processor.getErr = tt.getErr

			_, err := f.service.CompleteOrder(context.Background(), "pi_x", testCustomer,
				[]catalog.CartLine{{ID: "fudge", Quantity: 1}})
			if !IsCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCompleteOrderRequiresCustomer(t *testing.T) {
	f := newFixture()

	_, err := f.service.CompleteOrder(context.Background(), "pi_x", Customer{Email: "a@b.c"},
		[]catalog.CartLine{{ID: "fudge", Quantity: 1}})

	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeValidation || ce.Fields["customerName"] == "" {
		t.Errorf("Expected validation error naming customerName, got %v", err)
	}
}

func TestSubmitFreeOrder(t *testing.T) {
	f := newFixture()
	lines := []catalog.CartLine{{ID: "bespoke-diamond", Quantity: 1, CustomNotes: "emerald cut"}}

	order, err := f.service.SubmitFreeOrder(context.Background(), testCustomer, lines, "")
	if err != nil {
		t.Fatalf("SubmitFreeOrder returned error: %v", err)
	}
	if order.Status != models.OrderStatusPending || order.Total != 0 {
		t.Errorf("Expected pending zero-total order, got %s/%d", order.Status, order.Total)
	}
	if order.Items[0].CustomNotes != "emerald cut" {
		t.Errorf("Expected custom notes kept, got %q", order.Items[0].CustomNotes)
	}
	if len(f.orders.notifications) != 2 {
		t.Errorf("Expected 2 notifications, got %d", len(f.orders.notifications))
	}
}

func TestSubmitFreeOrderRejectsPricedCart(t *testing.T) {
	f := newFixture()
	lines := []catalog.CartLine{
		{ID: "bespoke-diamond", Quantity: 1},
		{ID: "truffle-box", Quantity: 1},
	}

	_, err := f.service.SubmitFreeOrder(context.Background(), testCustomer, lines, "")
	if !IsCode(err, CodePaymentRequired) {
		t.Fatalf("Expected payment_required, got %v", err)
	}
	if f.orders.count() != 0 {
		t.Error("No order may be created for a priced cart")
	}
}

func TestSubmitFreeOrderAcceptsFullyDiscountedCart(t *testing.T) {
	f := newFixture()
	lines := []catalog.CartLine{{ID: "dubai-chocolate", Quantity: 1}}

	prep, err := f.service.PreparePayment(context.Background(), lines, "ALLFREE")
	if err != nil {
		t.Fatalf("PreparePayment returned error: %v", err)
	}
	if !prep.SkipPayment || prep.Total != 0 {
		t.Fatalf("Expected skip-payment preparation, got skip=%v total=%d", prep.SkipPayment, prep.Total)
	}

	order, err := f.service.SubmitFreeOrder(context.Background(), testCustomer, lines, "ALLFREE")
	if err != nil {
		t.Fatalf("SubmitFreeOrder returned error: %v", err)
	}
	if order.Status != models.OrderStatusPending || order.Total != 0 {
		t.Errorf("Expected pending zero-total order, got %s/%d", order.Status, order.Total)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected 1 order, got %d", f.orders.count())
	}
}

func TestSubmitFreeOrderPartialDiscountStillRequiresPayment(t *testing.T) {
	tests := []struct {
		name  string
		promo string
	}{
		{"partial", "SWEET10"},
		{"inactive", "RETIRED"},
		{"unknown", "NOPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.service.SubmitFreeOrder(context.Background(), testCustomer,
				[]catalog.CartLine{{ID: "dubai-chocolate", Quantity: 1}}, tt.promo)
			if !IsCode(err, CodePaymentRequired) {
				t.Fatalf("Expected payment_required, got %v", err)
			}
			if f.orders.count() != 0 {
				t.Error("No order may be created for a priced cart")
			}
		})
	}
}

func quotedOrder(t *testing.T, f *fixture, price int) *models.Order {
	t.Helper()
	order, err := f.service.SubmitFreeOrder(context.Background(), testCustomer,
		[]catalog.CartLine{{ID: "bespoke-diamond", Quantity: 1}}, "")
	if err != nil {
		t.Fatalf("SubmitFreeOrder: %v", err)
	}
	status := models.QuoteStatusQuoted
	f.orders.byID[order.ID].QuotedPrice = &price
	f.orders.byID[order.ID].QuoteStatus = &status
	return order
}

func TestHandleEventMarksQuotedOrderPaidOnce(t *testing.T) {
	f := newFixture()
	order := quotedOrder(t, f, 85)

	prep, err := f.service.PrepareQuotePayment(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("PrepareQuotePayment: %v", err)
	}
	if f.processor.created[0].Metadata[payments.MetaOrderID] != order.ID {
		t.Fatal("Quote intent must carry the order id")
	}

	event := &payments.Event{
		ID:              "evt_1",
		Type:            payments.EventCheckoutComplete,
		OrderID:         order.ID,
		PaymentIntentID: prep.PaymentIntentID,
		Amount:          8500,
	}
	before := len(f.orders.notifications)

	for i := 0; i < 2; i++ {
		if err := f.service.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	stored, _ := f.orders.GetByID(context.Background(), order.ID)
	if stored.Status != models.OrderStatusPaid || stored.Total != 85 {
		t.Errorf("Expected paid order totalling 85, got %s/%d", stored.Status, stored.Total)
	}
	if f.orders.count() != 1 {
		t.Errorf("Expected exactly one order, got %d", f.orders.count())
	}
	if got := len(f.orders.notifications) - before; got != 2 {
		t.Errorf("Expected one pair of notifications across both deliveries, got %d", got)
	}
}

func TestHandleEventIgnoresUnrelatedEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	events := []*payments.Event{
		{Type: payments.EventPaymentSucceeded, PaymentIntentID: "pi_storefront"},
		{Type: payments.EventPaymentSucceeded, OrderID: "6e0f5c9a-0000-4000-8000-000000000000"},
		{Type: payments.EventPaymentFailed, PaymentIntentID: "pi_x", FailureMessage: "card declined"},
		{Type: "customer.created"},
	}
	for _, event := range events {
		if err := f.service.HandleEvent(ctx, event); err != nil {
			t.Errorf("HandleEvent(%s) returned error: %v", event.Type, err)
		}
	}
	if f.orders.count() != 0 {
		t.Error("Unrelated events must not create orders")
	}
}

func TestPrepareQuotePaymentRequiresQuote(t *testing.T) {
	f := newFixture()
	order, err := f.service.SubmitFreeOrder(context.Background(), testCustomer,
		[]catalog.CartLine{{ID: "bespoke-diamond", Quantity: 1}}, "")
	if err != nil {
		t.Fatalf("SubmitFreeOrder: %v", err)
	}

	_, err = f.service.PrepareQuotePayment(context.Background(), order.ID)
	if !IsCode(err, CodeQuoteNotPayable) {
		t.Errorf("Expected quote_not_payable, got %v", err)
	}
}

func TestCompleteOrderSettlesQuoteIntent(t *testing.T) {
	f := newFixture()
	order := quotedOrder(t, f, 40)

	prep, err := f.service.PrepareQuotePayment(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("PrepareQuotePayment: %v", err)
	}
	f.processor.succeed(prep.PaymentIntentID)

	paid, err := f.service.CompleteOrder(context.Background(), prep.PaymentIntentID, testCustomer,
		[]catalog.CartLine{{ID: "bespoke-diamond", Quantity: 1}})
	if err != nil {
		t.Fatalf("CompleteOrder: %v", err)
	}
	if paid.ID != order.ID || paid.Status != models.OrderStatusPaid || paid.Total != 40 {
		t.Errorf("Expected quoted order paid at 40, got %+v", paid)
	}
}
