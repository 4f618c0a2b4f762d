package compliance

import "math"

// Summarize reduces records into a scorecard.
//
// OverallScorePct = round((compliant + upcoming*UpcomingCreditWeight) /
// subscribed * 100), and 0 when nothing is subscribed. Empty input yields a
// zero-valued scorecard with an empty (non-nil) breakdown.
func Summarize(records []ServiceComplianceRecord, p Policy) ComplianceScorecard {
	sc := ComplianceScorecard{
		TotalServices: len(records),
		Breakdown:     make([]ServiceComplianceRecord, len(records)),
	}
	copy(sc.Breakdown, records)

	for _, r := range records {
		if r.IsRequired {
			sc.RequiredServices++
		}
		if r.IsSubscribed {
			sc.SubscribedServices++
		}
		switch r.Status {
		case StatusCompliant:
			sc.CompliantServices++
		case StatusOverdue:
			sc.OverdueServices++
		case StatusUpcoming:
			sc.UpcomingCount++
		case StatusNotSubscribed:
			sc.NotSubscribedServices++
		}
	}

	if sc.SubscribedServices > 0 {
		credit := float64(sc.CompliantServices) + float64(sc.UpcomingCount)*p.UpcomingCreditWeight
		sc.OverallScorePct = int(math.Round(credit / float64(sc.SubscribedServices) * 100))
	}
	return sc
}
