package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jogardn/food-storefront/internal/store"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"

	TypeTotalMismatch = "total_mismatch"
	TypeNoLineItems   = "no_line_items"
	TypeNegativeFee   = "negative_delivery_fee"
	TypeStalePending  = "stale_pending"
)

type Store interface {
	ListOrderTotals(ctx context.Context, since time.Time) ([]store.OrderTotals, error)
}

type Inconsistency struct {
	OrderID     string `json:"order_id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Expected    int64  `json:"expected_cents,omitempty"`
	Actual      int64  `json:"actual_cents,omitempty"`
	Description string `json:"description"`
}

type Statistics struct {
	OrdersChecked    int            `json:"orders_checked"`
	CriticalIssues   int            `json:"critical_issues"`
	WarningIssues    int            `json:"warning_issues"`
	ConsistencyScore float64        `json:"consistency_score"`
	ByStatus         map[string]int `json:"by_status"`
}

type Report struct {
	Since           time.Time       `json:"since"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Statistics      Statistics      `json:"statistics"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Auditor checks persisted orders against the money invariant: the total
// equals the line items plus the delivery fee, and every order has items.
type Auditor struct {
	store      Store
	pendingTTL time.Duration
	now        func() time.Time
	logger     *logrus.Logger
}

// NewAuditor builds an Auditor. pendingTTL of zero disables the stale
// pending check.
func NewAuditor(store Store, pendingTTL time.Duration, logger *logrus.Logger) *Auditor {
	return &Auditor{store: store, pendingTTL: pendingTTL, now: time.Now, logger: logger}
}

func (a *Auditor) Audit(ctx context.Context, since time.Time) (*Report, error) {
	totals, err := a.store.ListOrderTotals(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load order totals: %w", err)
	}
	return a.Check(totals, since), nil
}

// Check evaluates already loaded totals.
func (a *Auditor) Check(totals []store.OrderTotals, since time.Time) *Report {
	report := &Report{
		Since:           since,
		Inconsistencies: []Inconsistency{},
		Timestamp:       a.now(),
		Statistics:      Statistics{ByStatus: map[string]int{}},
	}

	affected := make(map[string]bool)
	for _, t := range totals {
		report.Statistics.ByStatus[string(t.Status)]++
		for _, issue := range a.inspect(t) {
			report.Inconsistencies = append(report.Inconsistencies, issue)
			affected[issue.OrderID] = true
			switch issue.Severity {
			case SeverityCritical:
				report.Statistics.CriticalIssues++
			case SeverityWarning:
				report.Statistics.WarningIssues++
			}
		}
	}

	report.Statistics.OrdersChecked = len(totals)
	report.Statistics.ConsistencyScore = 100
	if len(totals) > 0 {
		report.Statistics.ConsistencyScore = math.Round(
			float64(len(totals)-len(affected))*10000/float64(len(totals))) / 100
	}

	a.logger.WithFields(logrus.Fields{
		"orders_checked":    len(totals),
		"inconsistencies":   len(report.Inconsistencies),
		"consistency_score": report.Statistics.ConsistencyScore,
	}).Info("Order audit completed")
	return report
}

func (a *Auditor) inspect(t store.OrderTotals) []Inconsistency {
	var issues []Inconsistency
	if t.ItemCount == 0 {
		issues = append(issues, Inconsistency{
			OrderID:     t.OrderID,
			Type:        TypeNoLineItems,
			Severity:    SeverityCritical,
			Description: "order has no line items",
		})
	}
	if expected := t.ItemsCents + t.DeliveryFeeCents; expected != t.TotalCents {
		issues = append(issues, Inconsistency{
			OrderID:     t.OrderID,
			Type:        TypeTotalMismatch,
			Severity:    SeverityCritical,
			Expected:    expected,
			Actual:      t.TotalCents,
			Description: fmt.Sprintf("total differs from items plus fee by %d cents", t.TotalCents-expected),
		})
	}
	if t.DeliveryFeeCents < 0 {
		issues = append(issues, Inconsistency{
			OrderID:     t.OrderID,
			Type:        TypeNegativeFee,
			Severity:    SeverityWarning,
			Actual:      t.DeliveryFeeCents,
			Description: "delivery fee is negative",
		})
	}
	if a.pendingTTL > 0 && t.Status == models.StatusPending && !t.CreatedAt.IsZero() && a.now().Sub(t.CreatedAt) > a.pendingTTL {
		issues = append(issues, Inconsistency{
			OrderID:     t.OrderID,
			Type:        TypeStalePending,
			Severity:    SeverityWarning,
			Description: "pending longer than the sweep cutoff, run reap",
		})
	}
	return issues
}

// Render formats a report as "json" or a plain text "summary".
func Render(report *Report, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return json.MarshalIndent(report, "", "  ")
	case "summary":
		var b strings.Builder
		fmt.Fprintf(&b, "ORDER AUDIT REPORT\n==================\nGenerated: %s\nSince: %s\n\n",
			report.Timestamp.Format(time.RFC3339), report.Since.Format(time.RFC3339))
		fmt.Fprintf(&b, "Orders checked: %d\nConsistency score: %.2f%%\nCritical issues: %d\nWarning issues: %d\n",
			report.Statistics.OrdersChecked, report.Statistics.ConsistencyScore,
			report.Statistics.CriticalIssues, report.Statistics.WarningIssues)
		for _, issue := range report.Inconsistencies {
			fmt.Fprintf(&b, "  [%s] %s %s: %s\n", issue.Severity, issue.OrderID, issue.Type, issue.Description)
		}
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
