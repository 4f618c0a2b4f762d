// Package compliance is the compliance and performance derivation engine. It
// turns raw service subscriptions and compliance tasks into per-service
// compliance records, entity scorecards, ranked upcoming deadlines,
// jurisdiction risk profiles and team productivity scores.
//
// Every function in this package is pure: inputs are in-memory snapshots and
// the evaluation instant is always passed explicitly as now. Nothing here
// performs I/O or reads the wall clock, so an Engine may be shared freely
// between goroutines.
package compliance

import (
	"strings"

	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Frequency enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Frequency is how often a service obligation recurs.
type Frequency string

const (
	// FrequencyMonthly recurs every calendar month.
	FrequencyMonthly Frequency = "Monthly"

	// FrequencyQuarterly recurs every three calendar months.
	FrequencyQuarterly Frequency = "Quarterly"

	// FrequencySemiAnnually recurs every six calendar months.
	FrequencySemiAnnually Frequency = "Semi-Annually"

	// FrequencyYearly recurs every twelve calendar months. It is also the
	// frequency assumed when a task carries none.
	FrequencyYearly Frequency = "Yearly"
)

// FrequencyNotApplicable is the display label used when neither the task nor
// the subscription carries any frequency information.
const FrequencyNotApplicable = "N/A"

// frequencyAliases maps normalised spellings to canonical frequencies. Keys
// are lower-case with spaces, hyphens and underscores removed.
var frequencyAliases = map[string]Frequency{
	"monthly":      FrequencyMonthly,
	"month":        FrequencyMonthly,
	"quarterly":    FrequencyQuarterly,
	"quarter":      FrequencyQuarterly,
	"semiannually": FrequencySemiAnnually,
	"semiannual":   FrequencySemiAnnually,
	"halfyearly":   FrequencySemiAnnually,
	"biannual":     FrequencySemiAnnually,
	"biannually":   FrequencySemiAnnually,
	"yearly":       FrequencyYearly,
	"annual":       FrequencyYearly,
	"annually":     FrequencyYearly,
}

// Months returns the number of calendar months between two occurrences, or 0
// for an unknown value.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiAnnually:
		return 6
	case FrequencyYearly:
		return 12
	default:
		return 0
	}
}

// IsValid reports whether f is one of the four canonical frequencies.
func (f Frequency) IsValid() bool {
	return f.Months() > 0
}

func (f Frequency) String() string {
	return string(f)
}

// AllFrequencies lists the canonical frequencies in ascending period order.
func AllFrequencies() []Frequency {
	return []Frequency{FrequencyMonthly, FrequencyQuarterly, FrequencySemiAnnually, FrequencyYearly}
}

// ParseFrequency converts a stored frequency string into a Frequency. Matching
// ignores case, surrounding whitespace, hyphens and underscores, so
// "Semi-Annually", "semi annual" and "SEMIANNUALLY" are all accepted.
// Unknown or blank values produce an ErrCodeInvalidFrequency error.
func ParseFrequency(raw string) (Frequency, error) {
	key := normaliseFrequency(raw)
	if f, ok := frequencyAliases[key]; ok {
		return f, nil
	}
	return "", errors.New(errors.ErrCodeInvalidFrequency, "unrecognized compliance frequency").
		WithDetail(raw)
}

// IsInvalidFrequency reports whether err was produced by ParseFrequency.
func IsInvalidFrequency(err error) bool {
	return errors.IsCode(err, errors.ErrCodeInvalidFrequency)
}

func normaliseFrequency(raw string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(raw)))
}

// displayFrequency renders a raw frequency for reports: canonical spelling
// when recognised, the trimmed raw value otherwise.
func displayFrequency(raw string) string {
	if f, err := ParseFrequency(raw); err == nil {
		return f.String()
	}
	return strings.TrimSpace(raw)
}
