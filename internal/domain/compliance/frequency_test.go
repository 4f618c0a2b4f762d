package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	cases := map[string]Frequency{
		"Monthly":       FrequencyMonthly,
		" monthly ":     FrequencyMonthly,
		"QUARTERLY":     FrequencyQuarterly,
		"Semi-Annually": FrequencySemiAnnually,
		"semi annual":   FrequencySemiAnnually,
		"half_yearly":   FrequencySemiAnnually,
		"Yearly":        FrequencyYearly,
		"Annual":        FrequencyYearly,
		"annually":      FrequencyYearly,
	}
	for raw, want := range cases {
		got, err := ParseFrequency(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseFrequency_Invalid(t *testing.T) {
	for _, raw := range []string{"", "Fortnightly", "weekly", "12"} {
		_, err := ParseFrequency(raw)
		require.Error(t, err, raw)
		assert.True(t, IsInvalidFrequency(err), raw)
	}
}

func TestFrequency_Months(t *testing.T) {
	assert.Equal(t, 1, FrequencyMonthly.Months())
	assert.Equal(t, 3, FrequencyQuarterly.Months())
	assert.Equal(t, 6, FrequencySemiAnnually.Months())
	assert.Equal(t, 12, FrequencyYearly.Months())
	assert.Equal(t, 0, Frequency("Weekly").Months())
	assert.False(t, Frequency("Weekly").IsValid())
	assert.Len(t, AllFrequencies(), 4)
}

func TestDisplayFrequency(t *testing.T) {
	assert.Equal(t, "Semi-Annually", displayFrequency("semiannually"))
	assert.Equal(t, "Per filing", displayFrequency(" Per filing "))
	assert.Equal(t, "", displayFrequency("  "))
}
