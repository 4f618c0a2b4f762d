package compliance

import (
	"fmt"

	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Policy constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	// DefaultUpcomingWindowDays is the number of days before a due date during
	// which a service counts as upcoming rather than compliant.
	DefaultUpcomingWindowDays = 30

	// DefaultUpcomingCreditWeight is the partial credit an upcoming service
	// contributes to the overall scorecard percentage.
	DefaultUpcomingCreditWeight = 0.5

	// DefaultHighPriorityDays and DefaultMediumPriorityDays bound the
	// deadline priority buckets (inclusive).
	DefaultHighPriorityDays   = 7
	DefaultMediumPriorityDays = 30

	// DefaultHorizonMonths is how far ahead the deadline ranker looks.
	DefaultHorizonMonths = 12

	// DefaultOverdueRiskWeight is the risk points added per overdue service.
	DefaultOverdueRiskWeight = 10

	// DefaultRiskHighThreshold and DefaultRiskMediumThreshold are inclusive
	// lower bounds of the High and Medium risk levels.
	DefaultRiskHighThreshold   = 50
	DefaultRiskMediumThreshold = 25
)

// Productivity scoring. The score starts at productivityBase and each of the
// three tier tables contributes the bonus of the first tier whose threshold is
// met, or its floor penalty when none is.
const productivityBase = 50

type tier struct {
	threshold float64
	points    int
}

// Completion rate (%) tiers: >= 90 +20, >= 75 +10, >= 50 +0, else -10.
var completionTiers = []tier{{90, 20}, {75, 10}, {50, 0}}

const completionFloor = -10

// On-time rate (%) tiers: >= 90 +20, >= 75 +10, >= 50 +0, else -15.
var onTimeTiers = []tier{{90, 20}, {75, 10}, {50, 0}}

const onTimeFloor = -15

// Average completion days tiers (lower is better): <= 3 +10, <= 7 +5,
// <= 14 +0, else -10.
var speedTiers = []tier{{3, 10}, {7, 5}, {14, 0}}

const speedFloor = -10

// ─────────────────────────────────────────────────────────────────────────────
// Policy
// ─────────────────────────────────────────────────────────────────────────────

// Policy holds the tunable thresholds used by every report. All screens that
// show compliance figures share one Policy so their numbers cannot drift.
type Policy struct {
	// UpcomingWindowDays: due within this many days (inclusive) is upcoming.
	UpcomingWindowDays int `json:"upcoming_window_days" yaml:"upcoming_window_days"`

	// NoDeadlineStatus is assigned to subscribed services whose next due date
	// cannot be determined. Must be upcoming, overdue or compliant.
	NoDeadlineStatus Status `json:"no_deadline_status" yaml:"no_deadline_status"`

	// UpcomingCreditWeight in [0,1].
	UpcomingCreditWeight float64 `json:"upcoming_credit_weight" yaml:"upcoming_credit_weight"`

	HighPriorityDays   int `json:"high_priority_days" yaml:"high_priority_days"`
	MediumPriorityDays int `json:"medium_priority_days" yaml:"medium_priority_days"`
	HorizonMonths      int `json:"horizon_months" yaml:"horizon_months"`

	// DefaultToYearly makes unrecognised frequencies resolve as Yearly (and
	// flagged as defaulted) instead of failing with ErrCodeInvalidFrequency.
	DefaultToYearly bool `json:"default_to_yearly" yaml:"default_to_yearly"`

	OverdueRiskWeight   int `json:"overdue_risk_weight" yaml:"overdue_risk_weight"`
	RiskHighThreshold   int `json:"risk_high_threshold" yaml:"risk_high_threshold"`
	RiskMediumThreshold int `json:"risk_medium_threshold" yaml:"risk_medium_threshold"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		UpcomingWindowDays:   DefaultUpcomingWindowDays,
		NoDeadlineStatus:     StatusUpcoming,
		UpcomingCreditWeight: DefaultUpcomingCreditWeight,
		HighPriorityDays:     DefaultHighPriorityDays,
		MediumPriorityDays:   DefaultMediumPriorityDays,
		HorizonMonths:        DefaultHorizonMonths,
		DefaultToYearly:      true,
		OverdueRiskWeight:    DefaultOverdueRiskWeight,
		RiskHighThreshold:    DefaultRiskHighThreshold,
		RiskMediumThreshold:  DefaultRiskMediumThreshold,
	}
}

// Validate checks internal consistency of the thresholds.
func (p Policy) Validate() error {
	switch {
	case p.UpcomingWindowDays < 0:
		return policyError("upcoming_window_days must be >= 0, got %d", p.UpcomingWindowDays)
	case p.NoDeadlineStatus != StatusUpcoming && p.NoDeadlineStatus != StatusOverdue && p.NoDeadlineStatus != StatusCompliant:
		return policyError("no_deadline_status %q is not a subscribed status", p.NoDeadlineStatus)
	case p.UpcomingCreditWeight < 0 || p.UpcomingCreditWeight > 1:
		return policyError("upcoming_credit_weight must be within [0,1], got %v", p.UpcomingCreditWeight)
	case p.HighPriorityDays < 0 || p.MediumPriorityDays < p.HighPriorityDays:
		return policyError("priority days must satisfy 0 <= high (%d) <= medium (%d)", p.HighPriorityDays, p.MediumPriorityDays)
	case p.HorizonMonths <= 0:
		return policyError("horizon_months must be > 0, got %d", p.HorizonMonths)
	case p.OverdueRiskWeight < 0:
		return policyError("overdue_risk_weight must be >= 0, got %d", p.OverdueRiskWeight)
	case p.RiskMediumThreshold < 0 || p.RiskHighThreshold < p.RiskMediumThreshold || p.RiskHighThreshold > 100:
		return policyError("risk thresholds must satisfy 0 <= medium (%d) <= high (%d) <= 100", p.RiskMediumThreshold, p.RiskHighThreshold)
	}
	return nil
}

func policyError(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeValidation, "invalid compliance policy").WithDetail(fmt.Sprintf(format, args...))
}
