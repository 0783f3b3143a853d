package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/diamonddulceria/storefront/internal/catalog"
	"github.com/diamonddulceria/storefront/internal/notify"
	"github.com/diamonddulceria/storefront/internal/orders"
	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/diamonddulceria/storefront/internal/promo"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OrderStore interface {
	Create(ctx context.Context, order *models.Order, notifications []models.Notification) (*models.Order, bool, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	MarkPaid(ctx context.Context, id, paymentIntentID string, total int, notifications []models.Notification) (bool, error)
}

type PromoSource interface {
	Active(ctx context.Context, code string) (*models.PromoCode, error)
}

type Revalidator interface {
	Revalidate(ctx context.Context, lines []catalog.CartLine) (*catalog.ValidatedCart, error)
}

// EventPublisher receives order changes for the admin live feed.
type EventPublisher interface {
	Broadcast(messageType string, data interface{}, source string)
}

type Customer struct {
	Name                string
	Email               string
	Phone               string
	DeliveryAddress     string
	SpecialInstructions string
}

type Preparation struct {
	SkipPayment     bool
	ClientSecret    string
	PaymentIntentID string
	Subtotal        int
	Discount        int
	PromoCode       string
	Total           int
	Items           []models.LineItem
}

type Config struct {
	Currency      string
	OperatorEmail string
}

type Service struct {
	revalidator Revalidator
	promos      PromoSource
	processor   payments.Processor
	orders      OrderStore
	events      EventPublisher
	config      Config
	logger      *logrus.Logger
}

func NewService(revalidator Revalidator, promos PromoSource, processor payments.Processor, store OrderStore, config Config, logger *logrus.Logger) *Service {
	if config.Currency == "" {
		config.Currency = "usd"
	}
	return &Service{
		revalidator: revalidator,
		promos:      promos,
		processor:   processor,
		orders:      store,
		config:      config,
		logger:      logger,
	}
}

func (s *Service) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// PreparePayment prices the cart from the catalog and, when anything is owed,
// opens a payment intent for it. Nothing is persisted.
func (s *Service) PreparePayment(ctx context.Context, lines []catalog.CartLine, promoCode string) (*Preparation, error) {
	cart, err := s.revalidate(ctx, lines)
	if err != nil {
		return nil, err
	}

	prep := &Preparation{Subtotal: cart.Subtotal, Items: cart.Items}
	prep.Discount, prep.PromoCode = s.applyPromo(ctx, cart.Subtotal, promoCode)
	prep.Total = prep.Subtotal - prep.Discount

	if prep.Total == 0 {
		prep.SkipPayment = true
		return prep, nil
	}

	intent, err := s.processor.CreateIntent(ctx, payments.IntentRequest{
		Amount:      payments.MinorUnits(prep.Total),
		Currency:    s.config.Currency,
		Description: describeItems(cart.Items),
		Metadata: map[string]string{
			payments.MetaSubtotal:    strconv.Itoa(prep.Subtotal),
			payments.MetaDiscount:    strconv.Itoa(prep.Discount),
			payments.MetaPromoCode:   prep.PromoCode,
			payments.MetaFingerprint: catalog.Fingerprint(cart.Items),
		},
	})
	if err != nil {
		s.logger.WithError(err).WithField("amount", prep.Total).Error("Failed to create payment intent")
		return nil, newError(CodePreparationFailed, payments.Message(err), err)
	}

	prep.ClientSecret = intent.ClientSecret
	prep.PaymentIntentID = intent.ID

	s.logger.WithFields(logrus.Fields{
		"payment_intent_id": intent.ID,
		"subtotal":          prep.Subtotal,
		"discount":          prep.Discount,
		"total":             prep.Total,
	}).Info("Payment prepared")

	return prep, nil
}

// CompleteOrder turns a succeeded payment intent into a paid order. Calling it
// again for the same intent returns the order created the first time.
func (s *Service) CompleteOrder(ctx context.Context, paymentIntentID string, customer Customer, lines []catalog.CartLine) (*models.Order, error) {
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, &Error{Code: CodeValidation, Message: "paymentIntentId is required",
			Fields: map[string]string{"paymentIntentId": "is required"}}
	}

	intent, err := s.processor.GetIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, s.processorError(err, paymentIntentID)
	}

	entry := s.logger.WithField("payment_intent_id", intent.ID)
	if intent.Status != payments.StatusSucceeded {
		entry.WithField("intent_status", intent.Status).Warn("Completion attempted before payment succeeded")
		return nil, newError(CodePaymentNotCompleted,
			fmt.Sprintf("payment has not completed (status %q)", intent.Status), nil)
	}

	if orderID := intent.Metadata[payments.MetaOrderID]; orderID != "" {
		return s.settleQuote(ctx, orderID, intent.ID, intent.Amount)
	}

	cart, err := s.revalidate(ctx, lines)
	if err != nil {
		return nil, err
	}

	discount, _ := intent.MetaInt(payments.MetaDiscount)
	total := cart.Subtotal - clamp(discount, 0, cart.Subtotal)

	if payments.MinorUnits(total) != intent.Amount {
		entry.WithFields(logrus.Fields{
			"expected_amount": payments.MinorUnits(total),
			"charged_amount":  intent.Amount,
		}).Warn("Charged amount does not match revalidated cart")
		return nil, newError(CodeAmountMismatch,
			fmt.Sprintf("charged amount %d does not match order total %d", intent.Amount, payments.MinorUnits(total)), nil)
	}

	if want, ok := intent.Metadata[payments.MetaFingerprint]; ok && want != catalog.Fingerprint(cart.Items) {
		entry.Warn("Cart changed after payment intent was created")
		return nil, newError(CodeCartChanged, "the cart changed after payment was started", nil)
	}

	order := newOrder(customer, cart.Items, total, models.OrderStatusPaid)
	order.PaymentIntentID = &intent.ID

	saved, created, err := s.orders.Create(ctx, order, notify.ForOrder(order, s.config.OperatorEmail))
	if err != nil {
		return nil, err
	}
	if created {
		s.publish("order_created", saved)
		entry.WithFields(logrus.Fields{"order_id": saved.ID, "total": saved.Total}).Info("Paid order created")
	}
	return saved, nil
}

// SubmitFreeOrder records an order that costs nothing: a custom request that
// needs a quote, or a cart a promo code discounts to zero. It refuses any cart
// that would cost money after the discount is recomputed.
func (s *Service) SubmitFreeOrder(ctx context.Context, customer Customer, lines []catalog.CartLine, promoCode string) (*models.Order, error) {
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}

	cart, err := s.revalidate(ctx, lines)
	if err != nil {
		return nil, err
	}
	discount, appliedCode := s.applyPromo(ctx, cart.Subtotal, promoCode)
	if total := cart.Subtotal - discount; total > 0 {
		s.logger.WithFields(logrus.Fields{"subtotal": cart.Subtotal, "discount": discount}).Warn("Free order rejected for priced cart")
		return nil, newError(CodePaymentRequired,
			fmt.Sprintf("this cart totals %d and must be paid for", total), nil)
	}
	if appliedCode != "" {
		s.logger.WithFields(logrus.Fields{"promo_code": appliedCode, "subtotal": cart.Subtotal}).Info("Promo code covers the whole cart")
	}

	order := newOrder(customer, cart.Items, 0, models.OrderStatusPending)
	saved, _, err := s.orders.Create(ctx, order, notify.ForOrder(order, s.config.OperatorEmail))
	if err != nil {
		return nil, err
	}

	s.publish("order_created", saved)
	s.logger.WithField("order_id", saved.ID).Info("Custom order request created")
	return saved, nil
}

// PrepareQuotePayment opens a payment intent for the quoted price of a pending
// custom order. The order id travels in the intent metadata.
func (s *Service) PrepareQuotePayment(ctx context.Context, orderID string) (*Preparation, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, newError(CodeOrderNotFound, "order not found", err)
	}
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusPending || order.QuotedPrice == nil || *order.QuotedPrice <= 0 ||
		order.QuoteStatus == nil || *order.QuoteStatus == models.QuoteStatusDeclined {
		return nil, newError(CodeQuoteNotPayable, "this order has no payable quote", nil)
	}

	total := *order.QuotedPrice
	intent, err := s.processor.CreateIntent(ctx, payments.IntentRequest{
		Amount:         payments.MinorUnits(total),
		Currency:       s.config.Currency,
		ReceiptEmail:   order.CustomerEmail,
		Description:    "Custom order " + order.ID,
		IdempotencyKey: "quote-" + order.ID + "-" + strconv.Itoa(total),
		Metadata:       map[string]string{payments.MetaOrderID: order.ID},
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to create quote payment intent")
		return nil, newError(CodePreparationFailed, payments.Message(err), err)
	}

	return &Preparation{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Subtotal:        total,
		Total:           total,
		Items:           order.Items,
	}, nil
}

// Confirmation is the customer-facing view of an order.
func (s *Service) Confirmation(ctx context.Context, orderID string) (*models.Confirmation, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, newError(CodeOrderNotFound, "order not found", err)
	}
	if err != nil {
		return nil, err
	}
	confirmation := order.Confirmation()
	return &confirmation, nil
}

// HandleEvent applies a verified processor event. Replays are no-ops.
func (s *Service) HandleEvent(ctx context.Context, event *payments.Event) error {
	entry := s.logger.WithFields(logrus.Fields{
		"event_id":          event.ID,
		"event_type":        event.Type,
		"order_id":          event.OrderID,
		"payment_intent_id": event.PaymentIntentID,
	})

	switch event.Type {
	case payments.EventPaymentSucceeded, payments.EventCheckoutComplete:
		if event.OrderID == "" {
			entry.Debug("Payment event without order reference, completion call owns it")
			return nil
		}
		_, err := s.settleQuote(ctx, event.OrderID, event.PaymentIntentID, event.Amount)
		var ce *Error
		if errors.As(err, &ce) && ce.Code == CodeOrderNotFound {
			entry.Warn("Payment event for unknown order")
			return nil
		}
		return err

	case payments.EventPaymentFailed:
		entry.WithField("failure", event.FailureMessage).Warn("Payment failed")
		return nil

	default:
		entry.Debug("Ignoring processor event")
		return nil
	}
}

// settleQuote marks a pending order paid for the amount actually charged.
func (s *Service) settleQuote(ctx context.Context, orderID, paymentIntentID string, amount int64) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, newError(CodeOrderNotFound, "order not found", err)
	}
	if err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{"order_id": order.ID, "payment_intent_id": paymentIntentID})
	if !orders.CanTransition(order.Status, models.OrderStatusPaid) {
		entry.WithField("status", order.Status).Info("Order already settled, ignoring payment confirmation")
		return order, nil
	}

	previous := order.Status
	paid := *order
	paid.Status = models.OrderStatusPaid
	paid.PaymentIntentID = &paymentIntentID
	paid.Total = int(amount / 100)
	if order.QuotedPrice != nil && payments.MinorUnits(*order.QuotedPrice) != amount {
		entry.WithFields(logrus.Fields{
			"quoted_price":   *order.QuotedPrice,
			"charged_amount": amount,
		}).Warn("Charged amount differs from quote, recording what was charged")
	}

	changed, err := s.orders.MarkPaid(ctx, order.ID, paymentIntentID, paid.Total, notify.ForOrder(&paid, s.config.OperatorEmail))
	if err != nil {
		return nil, err
	}
	if !changed {
		entry.Info("Order was settled concurrently")
		return s.orders.GetByID(ctx, order.ID)
	}

	s.publish("order_status_changed", map[string]interface{}{
		"order":           &paid,
		"previous_status": previous,
	})
	entry.Info("Order marked paid")
	return &paid, nil
}

// applyPromo returns the clamped discount for an active code. Unknown or
// inactive codes, and lookup failures, yield no discount.
func (s *Service) applyPromo(ctx context.Context, subtotal int, promoCode string) (int, string) {
	if promoCode == "" {
		return 0, ""
	}
	code, err := s.promos.Active(ctx, promoCode)
	switch {
	case err == nil:
		return promo.Discount(subtotal, code), code.Code
	case errors.Is(err, promo.ErrNotFound):
		s.logger.WithField("promo_code", promoCode).Info("Ignoring unknown or inactive promo code")
	default:
		s.logger.WithError(err).WithField("promo_code", promoCode).Warn("Promo lookup failed, continuing without discount")
	}
	return 0, ""
}

func (s *Service) revalidate(ctx context.Context, lines []catalog.CartLine) (*catalog.ValidatedCart, error) {
	cart, err := s.revalidator.Revalidate(ctx, lines)
	if err == nil {
		return cart, nil
	}

	var notFound *catalog.ProductNotFoundError
	switch {
	case errors.As(err, &notFound):
		return nil, newError(CodeProductNotFound, notFound.Error(), err)
	case errors.Is(err, catalog.ErrEmptyCart), errors.Is(err, catalog.ErrInvalidQuantity):
		return nil, newError(CodeValidation, err.Error(), err)
	default:
		return nil, fmt.Errorf("failed to revalidate cart: %w", err)
	}
}

func (s *Service) processorError(err error, paymentIntentID string) error {
	entry := s.logger.WithError(err).WithField("payment_intent_id", paymentIntentID)
	switch {
	case errors.Is(err, payments.ErrIntentNotFound):
		entry.Warn("Completion referenced unknown payment intent")
		return newError(CodePaymentNotCompleted, "payment not found", err)
	case errors.Is(err, payments.ErrUnavailable), errors.Is(err, payments.ErrDisabled):
		entry.Error("Payment processor unavailable during completion")
		return newError(CodeProcessorUnavailable, "payment processor is unavailable, please retry shortly", err)
	default:
		entry.Error("Failed to retrieve payment intent")
		return newError(CodeProcessorUnavailable, payments.Message(err), err)
	}
}

func (s *Service) publish(messageType string, data interface{}) {
	if s.events != nil {
		s.events.Broadcast(messageType, data, "checkout")
	}
}

func validateCustomer(c Customer) error {
	fields := map[string]string{}
	if strings.TrimSpace(c.Name) == "" {
		fields["customerName"] = "is required"
	}
	if strings.TrimSpace(c.Email) == "" {
		fields["customerEmail"] = "is required"
	}
	if len(fields) > 0 {
		return &Error{Code: CodeValidation, Message: "customer details are incomplete", Fields: fields}
	}
	return nil
}

func newOrder(c Customer, items []models.LineItem, total int, status string) *models.Order {
	order := &models.Order{
		ID:              uuid.NewString(),
		CustomerName:    strings.TrimSpace(c.Name),
		CustomerEmail:   strings.TrimSpace(c.Email),
		CustomerPhone:   strings.TrimSpace(c.Phone),
		DeliveryAddress: strings.TrimSpace(c.DeliveryAddress),
		Items:           items,
		Total:           total,
		Status:          status,
	}
	if instructions := strings.TrimSpace(c.SpecialInstructions); instructions != "" {
		order.SpecialInstructions = &instructions
	}
	return order
}

func describeItems(items []models.LineItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%dx %s", item.Quantity, item.Name)
	}
	return strings.Join(parts, ", ")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
