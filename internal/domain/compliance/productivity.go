package compliance

import (
	"sort"
	"strings"
	"time"
)

// NoCompletions is passed as avgCompletionDays when nothing was completed;
// the speed tier is then skipped.
const NoCompletions = -1.0

// UnassignedMember groups tasks without an assignee.
const UnassignedMember = "unassigned"

// ProductivityScore starts from 50 and adds one bonus or penalty from each of
// the completion-rate, on-time-rate and completion-speed tier tables (see
// policy.go). A negative avgCompletionDays skips the speed tier. The result is
// clamped to [0,100].
func (s Scorer) ProductivityScore(completionRatePct, onTimeRatePct, avgCompletionDays float64) int {
	score := productivityBase
	score += atLeastTier(clampPct(completionRatePct), completionTiers, completionFloor)
	score += atLeastTier(clampPct(onTimeRatePct), onTimeTiers, onTimeFloor)
	if avgCompletionDays >= 0 {
		score += atMostTier(avgCompletionDays, speedTiers, speedFloor)
	}
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

func atLeastTier(v float64, tiers []tier, floor int) int {
	for _, t := range tiers {
		if v >= t.threshold {
			return t.points
		}
	}
	return floor
}

func atMostTier(v float64, tiers []tier, floor int) int {
	for _, t := range tiers {
		if v <= t.threshold {
			return t.points
		}
	}
	return floor
}

type memberStats struct {
	total, completed, overdue int
	withDeadline, onTime      int
	completionDays            float64
}

// TeamEfficiency builds the team-efficiency report from tasks, one row per
// assignee, ordered by productivity score descending then assignee.
//
// A completed task is on time when its completion date is on or before the
// deadline date (compliance deadline, else due date); the on-time rate is over
// completed tasks that have a deadline and is 0 when there are none. An open
// task whose deadline day has passed at now counts as overdue.
func (e *Engine) TeamEfficiency(tasks []ComplianceTask, now time.Time) []TeamMemberEfficiency {
	stats := make(map[string]*memberStats)
	for _, t := range tasks {
		who := strings.TrimSpace(t.AssigneeID)
		if who == "" {
			who = UnassignedMember
		}
		st, ok := stats[who]
		if !ok {
			st = &memberStats{}
			stats[who] = st
		}
		st.total++

		deadline := t.deadline()
		if t.StatusID != e.completedID {
			if deadline != nil && DaysUntil(*deadline, now) < 0 {
				st.overdue++
			}
			continue
		}

		st.completed++
		done := t.completionTime()
		if elapsed := done.Sub(t.CreatedAt); elapsed > 0 {
			st.completionDays += float64(elapsed) / float64(day)
		}
		if deadline != nil {
			st.withDeadline++
			if !dateOf(done, deadline.Location()).After(dateOf(*deadline, deadline.Location())) {
				st.onTime++
			}
		}
	}

	out := make([]TeamMemberEfficiency, 0, len(stats))
	for who, st := range stats {
		row := TeamMemberEfficiency{
			AssigneeID:        who,
			TotalTasks:        st.total,
			CompletedTasks:    st.completed,
			OverdueTasks:      st.overdue,
			CompletionRatePct: float64(st.completed) / float64(st.total) * 100,
		}
		avg := NoCompletions
		if st.completed > 0 {
			avg = st.completionDays / float64(st.completed)
			row.AvgCompletionDays = avg
		}
		if st.withDeadline > 0 {
			row.OnTimeRatePct = float64(st.onTime) / float64(st.withDeadline) * 100
		}
		row.ProductivityScore = e.scorer.ProductivityScore(row.CompletionRatePct, row.OnTimeRatePct, avg)
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductivityScore != out[j].ProductivityScore {
			return out[i].ProductivityScore > out[j].ProductivityScore
		}
		return out[i].AssigneeID < out[j].AssigneeID
	})
	return out
}

// dateOf truncates t to midnight of its calendar day in loc.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
