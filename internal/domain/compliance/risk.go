package compliance

import (
	"math"
	"sort"
	"strings"
	"time"
)

// UnassignedJurisdiction groups entities that have no jurisdiction.
const UnassignedJurisdiction = "Unassigned"

// RiskAssessment is the output of Scorer.RiskScore.
type RiskAssessment struct {
	Score int       `json:"score"`
	Level RiskLevel `json:"level"`
}

// Scorer computes risk and productivity scores. It is the single source of
// both formulas for every report.
type Scorer struct {
	policy Policy
}

// NewScorer builds a Scorer from p.
func NewScorer(p Policy) Scorer {
	return Scorer{policy: p}
}

// RiskScore computes
//
//	overdueCount*OverdueRiskWeight + (100 - complianceRatePct) + (100 - completionRatePct)
//
// clamped to [0,100]. Negative counts are treated as zero and rates are
// clamped to [0,100] first, so the result is in range for any input.
func (s Scorer) RiskScore(overdueCount int, complianceRatePct, completionRatePct float64) RiskAssessment {
	if overdueCount < 0 {
		overdueCount = 0
	}
	raw := float64(overdueCount)*float64(s.policy.OverdueRiskWeight) +
		(100 - clampPct(complianceRatePct)) +
		(100 - clampPct(completionRatePct))
	score := int(math.Round(math.Min(raw, 100)))

	level := RiskLow
	switch {
	case score >= s.policy.RiskHighThreshold:
		level = RiskHigh
	case score >= s.policy.RiskMediumThreshold:
		level = RiskMedium
	}
	return RiskAssessment{Score: score, Level: level}
}

// riskGroup accumulates the entities of one jurisdiction.
type riskGroup struct {
	name      string
	entities  int
	records   []ServiceComplianceRecord
	tasks     int
	completed int
}

// JurisdictionRisk builds one RiskProfile per jurisdiction found in snaps.
//
// For each group: OverdueCount counts overdue service records across all of
// its entities, ComplianceRatePct is the scorecard percentage of those
// records, CompletionRatePct is completed over total tasks of the configured
// services (0 with no such tasks),
// and ComplianceGapPct is 100 minus the compliance rate. Profiles are ordered
// by risk score descending, then name.
func (e *Engine) JurisdictionRisk(snaps []EntitySnapshot, now time.Time) ([]RiskProfile, error) {
	groups := make(map[string]*riskGroup)
	for _, snap := range snaps {
		name := strings.TrimSpace(snap.Entity.Jurisdiction)
		if name == "" {
			name = UnassignedJurisdiction
		}
		g, ok := groups[name]
		if !ok {
			g = &riskGroup{name: name}
			groups[name] = g
		}

		records, err := e.aggregator.Aggregate(snap.Subscriptions, snap.Tasks, now)
		if err != nil {
			return nil, err
		}
		g.entities++
		g.records = append(g.records, records...)
		configured := make(map[string]bool, len(snap.Subscriptions))
		for _, sub := range snap.Subscriptions {
			configured[sub.ServiceTypeID] = true
		}
		for _, t := range snap.Tasks {
			if !configured[t.ServiceTypeID] {
				continue
			}
			g.tasks++
			if t.StatusID == e.completedID {
				g.completed++
			}
		}
	}

	profiles := make([]RiskProfile, 0, len(groups))
	for _, g := range groups {
		sc := Summarize(g.records, e.policy)
		completion := 0.0
		if g.tasks > 0 {
			completion = float64(g.completed) / float64(g.tasks) * 100
		}
		risk := e.scorer.RiskScore(sc.OverdueServices, float64(sc.OverallScorePct), completion)
		profiles = append(profiles, RiskProfile{
			Name:              g.name,
			RiskScore:         risk.Score,
			RiskLevel:         risk.Level,
			OverdueCount:      sc.OverdueServices,
			ComplianceGapPct:  100 - sc.OverallScorePct,
			EntityCount:       g.entities,
			ComplianceRatePct: sc.OverallScorePct,
			CompletionRatePct: completion,
		})
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].RiskScore != profiles[j].RiskScore {
			return profiles[i].RiskScore > profiles[j].RiskScore
		}
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

func clampPct(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
