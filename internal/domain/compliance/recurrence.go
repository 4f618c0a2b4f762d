package compliance

import (
	"strings"
	"time"
)

// AddMonths moves t by the given number of calendar months, clamping the
// day-of-month to the last day of the target month. Jan 31 + 1 month is
// Feb 28 (Feb 29 in leap years), never Mar 3. Clock time and location are
// preserved. Negative values move backwards with the same clamping.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	target := m + time.Month(months)
	if last := daysIn(y, target, t.Location()); d > last {
		d = last
	}
	return time.Date(y, target, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in month m of year y. Month values outside
// 1..12 are normalised by time.Date.
func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

// NextOccurrence returns the occurrence one frequency period after last.
// Unknown frequencies are treated as Yearly.
func NextOccurrence(last time.Time, f Frequency) time.Time {
	months := f.Months()
	if months == 0 {
		months = FrequencyYearly.Months()
	}
	return AddMonths(last, months)
}

// PreviousOccurrence steps one frequency period back from d. For any day of
// month up to 28 it exactly inverts NextOccurrence; for later days the result
// may land up to three days earlier because of clamping.
func PreviousOccurrence(d time.Time, f Frequency) time.Time {
	months := f.Months()
	if months == 0 {
		months = FrequencyYearly.Months()
	}
	return AddMonths(d, -months)
}

// Recurrence is a resolved next occurrence together with the frequency that
// produced it.
type Recurrence struct {
	Due       time.Time `json:"due"`
	Frequency Frequency `json:"frequency"`

	// Defaulted is true when the stored frequency was blank or unrecognised
	// and Yearly was assumed.
	Defaulted bool `json:"defaulted"`
}

// Resolver turns stored frequency strings into next-occurrence dates
// according to the policy's defaulting rule.
type Resolver struct {
	defaultToYearly bool
}

// NewResolver builds a Resolver from p.
func NewResolver(p Policy) *Resolver {
	return &Resolver{defaultToYearly: p.DefaultToYearly}
}

// Resolve computes the next occurrence after last for the raw frequency.
//
// A blank frequency always resolves as Yearly with Defaulted set. An
// unrecognised one does the same when the policy allows defaulting, and
// otherwise returns the ErrCodeInvalidFrequency error from ParseFrequency.
func (r *Resolver) Resolve(last time.Time, raw string) (Recurrence, error) {
	if strings.TrimSpace(raw) == "" {
		return Recurrence{Due: NextOccurrence(last, FrequencyYearly), Frequency: FrequencyYearly, Defaulted: true}, nil
	}
	f, err := ParseFrequency(raw)
	if err != nil {
		if !r.defaultToYearly {
			return Recurrence{}, err
		}
		return Recurrence{Due: NextOccurrence(last, FrequencyYearly), Frequency: FrequencyYearly, Defaulted: true}, nil
	}
	return Recurrence{Due: NextOccurrence(last, f), Frequency: f}, nil
}
