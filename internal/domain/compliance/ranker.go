package compliance

import (
	"sort"
	"time"
)

// Rank returns the forward-looking deadlines of required and subscribed
// services due no later than horizonMonths calendar months after now
// (DefaultPolicy's HorizonMonths when horizonMonths <= 0). Deadlines already
// past are left out; they are reported as overdue services by the scorecard.
// The result is ordered by days until due, then service name, then id.
func Rank(records []ServiceComplianceRecord, now time.Time, horizonMonths int, p Policy) []UpcomingDeadline {
	if horizonMonths <= 0 {
		horizonMonths = p.HorizonMonths
	}
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	horizon := AddMonths(now, horizonMonths)

	out := make([]UpcomingDeadline, 0)
	for _, r := range records {
		if !r.IsRequired || !r.IsSubscribed || r.NextDueAt == nil {
			continue
		}
		if r.NextDueAt.After(horizon) {
			continue
		}
		days := DaysUntil(*r.NextDueAt, now)
		if days < 0 {
			continue
		}
		out = append(out, UpcomingDeadline{
			ServiceID:    r.ServiceID,
			ServiceName:  r.ServiceName,
			DueDate:      *r.NextDueAt,
			Frequency:    r.Frequency,
			Priority:     priorityFor(days, p),
			DaysUntilDue: days,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DaysUntilDue != b.DaysUntilDue {
			return a.DaysUntilDue < b.DaysUntilDue
		}
		if a.ServiceName != b.ServiceName {
			return a.ServiceName < b.ServiceName
		}
		return a.ServiceID < b.ServiceID
	})
	return out
}

func priorityFor(days int, p Policy) Priority {
	switch {
	case days <= p.HighPriorityDays:
		return PriorityHigh
	case days <= p.MediumPriorityDays:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
