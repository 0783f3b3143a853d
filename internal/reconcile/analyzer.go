package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/diamonddulceria/storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	FindingMatch          = "match"
	FindingStatusMismatch = "status_mismatch"
	FindingAmountMismatch = "amount_mismatch"
	FindingLookupFailed   = "lookup_failed"
)

// lookupConcurrency bounds parallel intent lookups so a large report does not
// trip the processor's rate limits or the circuit breaker.
const lookupConcurrency = 4

type OrderSource interface {
	List(ctx context.Context, statuses ...string) ([]*models.Order, error)
}

type IntentSource interface {
	GetIntent(ctx context.Context, id string) (*payments.Intent, error)
}

type Finding struct {
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Type            string `json:"type"`
	OrderStatus     string `json:"order_status"`
	OrderTotal      int    `json:"order_total"`
	IntentStatus    string `json:"intent_status,omitempty"`
	IntentAmount    int64  `json:"intent_amount,omitempty"`
	Description     string `json:"description"`
}

type Counts struct {
	Checked         int `json:"checked"`
	Matches         int `json:"matches"`
	StatusMismatch  int `json:"status_mismatch"`
	AmountMismatch  int `json:"amount_mismatch"`
	LookupFailed    int `json:"lookup_failed"`
	WithoutIntentID int `json:"without_intent_id"`
}

type Report struct {
	Counts                Counts        `json:"counts"`
	ConsistencyPercentage float64       `json:"consistency_percentage"`
	OverallStatus         string        `json:"overall_status"`
	Findings              []Finding     `json:"findings"`
	Recommendations       []string      `json:"recommendations"`
	Duration              time.Duration `json:"duration_ns"`
	Timestamp             time.Time     `json:"timestamp"`
}

// Analyzer compares settled orders with what the payment processor recorded.
type Analyzer struct {
	orders  OrderSource
	intents IntentSource
	logger  *logrus.Logger
	now     func() time.Time
}

func NewAnalyzer(orders OrderSource, intents IntentSource, logger *logrus.Logger) *Analyzer {
	return &Analyzer{orders: orders, intents: intents, logger: logger, now: time.Now}
}

func (a *Analyzer) Run(ctx context.Context) (*Report, error) {
	start := a.now()

	settled, err := a.orders.List(ctx, models.OrderStatusPaid, models.OrderStatusReady, models.OrderStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list settled orders: %w", err)
	}

	report := &Report{Findings: []Finding{}, Timestamp: start.UTC()}
	var candidates []*models.Order
	for _, o := range settled {
		if o.PaymentIntentID == nil || *o.PaymentIntentID == "" {
			report.Counts.WithoutIntentID++
			continue
		}
		candidates = append(candidates, o)
	}

	findings := make([]Finding, len(candidates))
	sem := make(chan struct{}, lookupConcurrency)
	var wg sync.WaitGroup
	for i, o := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, o *models.Order) {
			defer wg.Done()
			defer func() { <-sem }()
			findings[i] = a.check(ctx, o)
		}(i, o)
	}
	wg.Wait()

	for _, f := range findings {
		report.Counts.Checked++
		switch f.Type {
		case FindingMatch:
			report.Counts.Matches++
			continue
		case FindingStatusMismatch:
			report.Counts.StatusMismatch++
		case FindingAmountMismatch:
			report.Counts.AmountMismatch++
		case FindingLookupFailed:
			report.Counts.LookupFailed++
		}
		report.Findings = append(report.Findings, f)
	}
	sort.Slice(report.Findings, func(i, j int) bool { return report.Findings[i].OrderID < report.Findings[j].OrderID })

	report.ConsistencyPercentage = 100
	if report.Counts.Checked > 0 {
		report.ConsistencyPercentage = float64(report.Counts.Matches) / float64(report.Counts.Checked) * 100
	}
	report.OverallStatus = overallStatus(report.ConsistencyPercentage)
	report.Recommendations = recommendations(report)
	report.Duration = a.now().Sub(start)

	a.logger.WithFields(logrus.Fields{
		"checked":         report.Counts.Checked,
		"matches":         report.Counts.Matches,
		"findings":        len(report.Findings),
		"consistency_pct": report.ConsistencyPercentage,
	}).Info("Reconciliation completed")

	return report, nil
}

func (a *Analyzer) check(ctx context.Context, o *models.Order) Finding {
	f := Finding{
		OrderID:         o.ID,
		PaymentIntentID: *o.PaymentIntentID,
		OrderStatus:     o.Status,
		OrderTotal:      o.Total,
	}

	intent, err := a.intents.GetIntent(ctx, f.PaymentIntentID)
	if err != nil {
		a.logger.WithError(err).WithField("order_id", o.ID).Warn("Reconciliation lookup failed")
		f.Type = FindingLookupFailed
		f.Description = err.Error()
		return f
	}

	f.IntentStatus = intent.Status
	f.IntentAmount = intent.Amount
	switch {
	case intent.Status != payments.StatusSucceeded:
		f.Type = FindingStatusMismatch
		f.Description = fmt.Sprintf("order is %s but payment is %s", o.Status, intent.Status)
	case intent.Amount != payments.MinorUnits(o.Total):
		f.Type = FindingAmountMismatch
		f.Description = fmt.Sprintf("order total %d but payment captured %d minor units", o.Total, intent.Amount)
	default:
		f.Type = FindingMatch
	}
	return f
}

func overallStatus(pct float64) string {
	switch {
	case pct >= 99.99:
		return "excellent"
	case pct >= 95:
		return "good"
	case pct >= 85:
		return "fair"
	default:
		return "poor"
	}
}

func recommendations(r *Report) []string {
	var out []string
	if r.Counts.StatusMismatch > 0 {
		out = append(out, fmt.Sprintf("Review %d order(s) marked paid without a succeeded payment", r.Counts.StatusMismatch))
	}
	if r.Counts.AmountMismatch > 0 {
		out = append(out, fmt.Sprintf("Check %d order(s) whose total differs from the captured amount", r.Counts.AmountMismatch))
	}
	if r.Counts.LookupFailed > 0 {
		out = append(out, fmt.Sprintf("Re-run later: %d payment lookup(s) failed", r.Counts.LookupFailed))
	}
	if r.Counts.WithoutIntentID > 0 {
		out = append(out, fmt.Sprintf("%d settled order(s) carry no payment reference", r.Counts.WithoutIntentID))
	}
	if len(out) == 0 {
		out = append(out, "Orders and payments agree")
	}
	return out
}

// Summary renders the report as plain text for quick reading.
func Summary(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciliation %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Checked: %d  Matches: %d  Consistency: %.1f%% (%s)\n",
		r.Counts.Checked, r.Counts.Matches, r.ConsistencyPercentage, r.OverallStatus)
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "- %s %s: %s\n", f.Type, f.OrderID, f.Description)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "* %s\n", rec)
	}
	return b.String()
}
