package checkout

import (
	"context"
	"strings"
	"sync"

	"github.com/diamonddulceria/storefront/internal/catalog"
	"github.com/diamonddulceria/storefront/internal/orders"
	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/diamonddulceria/storefront/internal/promo"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

type memoryProducts map[string]*models.Product

func (m memoryProducts) FindByID(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrProductNotFound
}

func (m memoryProducts) FindByName(ctx context.Context, name string) (*models.Product, error) {
	for _, p := range m {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func testProducts() memoryProducts {
	return memoryProducts{
		"dubai-chocolate": {ID: "dubai-chocolate", Name: "Dubai Chocolate", Price: 50, Active: true},
		"truffle-box":     {ID: "truffle-box", Name: "Truffle Box", Price: 25, Active: true},
		"fudge":           {ID: "fudge", Name: "Fudge", Price: 25, Active: true},
		"bespoke-diamond": {ID: "bespoke-diamond", Name: "Bespoke Diamond", Price: 0, Active: true, IsCustom: true},
	}
}

type memoryPromos map[string]*models.PromoCode

func (m memoryPromos) Active(ctx context.Context, code string) (*models.PromoCode, error) {
	p, ok := m[promo.Normalize(code)]
	if !ok || !p.Active {
		return nil, promo.ErrNotFound
	}
	return p, nil
}

// fakeProcessor records intents it creates and serves them back on GetIntent.
type fakeProcessor struct {
	mu        sync.Mutex
	intents   map[string]*payments.Intent
	createErr error
	getErr    error
	created   []payments.IntentRequest
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{intents: map[string]*payments.Intent{}}
}

func (p *fakeProcessor) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	id := "pi_" + string(rune('a'+len(p.created)-1))
	intent := &payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       "requires_payment_method",
		Metadata:     req.Metadata,
	}
	p.intents[id] = intent
	return intent, nil
}

func (p *fakeProcessor) GetIntent(ctx context.Context, id string) (*payments.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	intent, ok := p.intents[id]
	if !ok {
		return nil, payments.ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

func (p *fakeProcessor) succeed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[id].Status = payments.StatusSucceeded
}

type memoryOrders struct {
	mu            sync.Mutex
	byID          map[string]*models.Order
	byIntent      map[string]string
	notifications []models.Notification
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{byID: map[string]*models.Order{}, byIntent: map[string]string{}}
}

func (m *memoryOrders) Create(ctx context.Context, order *models.Order, notifications []models.Notification) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.PaymentIntentID != nil {
		if id, ok := m.byIntent[*order.PaymentIntentID]; ok {
			return m.byID[id], false, nil
		}
		m.byIntent[*order.PaymentIntentID] = order.ID
	}
	m.byID[order.ID] = order
	m.notifications = append(m.notifications, notifications...)
	return order, true, nil
}

func (m *memoryOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *memoryOrders) MarkPaid(ctx context.Context, id, paymentIntentID string, total int, notifications []models.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusPaid
	o.PaymentIntentID = &paymentIntentID
	o.Total = total
	m.notifications = append(m.notifications, notifications...)
	return true, nil
}

func (m *memoryOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (e *recordingEvents) Broadcast(messageType string, data interface{}, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, messageType)
}

type fixture struct {
	service   *Service
	processor *fakeProcessor
	orders    *memoryOrders
	events    *recordingEvents
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	f := &fixture{
		processor: newFakeProcessor(),
		orders:    newMemoryOrders(),
		events:    &recordingEvents{},
	}
	promos := memoryPromos{
		"SWEET10": {Code: "SWEET10", DiscountType: models.DiscountPercentage, DiscountValue: 10, Active: true},
		"FIVEOFF": {Code: "FIVEOFF", DiscountType: models.DiscountFixed, DiscountValue: 5, Active: true},
		"ALLFREE": {Code: "ALLFREE", DiscountType: models.DiscountPercentage, DiscountValue: 110, Active: true},
		"RETIRED": {Code: "RETIRED", DiscountType: models.DiscountFixed, DiscountValue: 20, Active: false},
	}
	f.service = NewService(catalog.NewRevalidator(testProducts()), promos, f.processor, f.orders,
		Config{Currency: "usd", OperatorEmail: "owner@example.com"}, logger)
	f.service.SetEventPublisher(f.events)
	return f
}

var testCustomer = Customer{Name: "Ana", Email: "ana@example.com", DeliveryAddress: "12 Main St"}
