package compliance

import (
	"math"
	"time"
)

// Status is the compliance bucket of one service for one entity.
type Status string

const (
	StatusCompliant     Status = "compliant"
	StatusOverdue       Status = "overdue"
	StatusUpcoming      Status = "upcoming"
	StatusNotSubscribed Status = "not-subscribed"
)

const day = 24 * time.Hour

// DaysUntil returns ceil((due - now) / 24h). A due date later today yields 1,
// one that passed a few hours ago yields 0, and one that passed more than a
// full day ago is negative.
func DaysUntil(due, now time.Time) int {
	return int(math.Ceil(float64(due.Sub(now)) / float64(day)))
}

// Classifier assigns a Status from subscription state and next due date.
type Classifier struct {
	upcomingWindowDays int
	noDeadlineStatus   Status
}

// NewClassifier builds a Classifier from p, which must pass Validate.
func NewClassifier(p Policy) (Classifier, error) {
	if err := p.Validate(); err != nil {
		return Classifier{}, err
	}
	return Classifier{upcomingWindowDays: p.UpcomingWindowDays, noDeadlineStatus: p.NoDeadlineStatus}, nil
}

// Classify returns not-subscribed for unsubscribed services regardless of any
// due date. A subscribed service without a due date gets the policy's
// no-deadline status. Otherwise a negative DaysUntil is overdue, one within
// the upcoming window is upcoming, and anything later is compliant.
func (c Classifier) Classify(isSubscribed bool, nextDueAt *time.Time, now time.Time) Status {
	if !isSubscribed {
		return StatusNotSubscribed
	}
	if nextDueAt == nil {
		return c.noDeadlineStatus
	}
	days := DaysUntil(*nextDueAt, now)
	switch {
	case days < 0:
		return StatusOverdue
	case days <= c.upcomingWindowDays:
		return StatusUpcoming
	default:
		return StatusCompliant
	}
}
