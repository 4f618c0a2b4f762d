package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const maxOccurrences = 60

// NextDueResult is the output of apexctl next-due.
type NextDueResult struct {
	Last         time.Time            `json:"last"`
	Input        string               `json:"input_frequency"`
	Frequency    compliance.Frequency `json:"frequency"`
	Defaulted    bool                 `json:"defaulted"`
	Occurrences  []time.Time          `json:"occurrences"`
	DaysUntilDue int                  `json:"days_until_due"`
}

func (r NextDueResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Frequency: %s", r.Frequency)
	if r.Defaulted {
		fmt.Fprintf(&sb, " (defaulted from %q)", r.Input)
	}
	sb.WriteString("\n")
	for i, d := range r.Occurrences {
		if i == 0 {
			fmt.Fprintf(&sb, "Next due:  %s (%d days)\n", d.Format("2006-01-02"), r.DaysUntilDue)
			continue
		}
		fmt.Fprintf(&sb, "           %s\n", d.Format("2006-01-02"))
	}
	return sb.String()
}

// NewNextDueCmd creates "apexctl next-due".
func NewNextDueCmd() *cobra.Command {
	var (
		last      string
		frequency string
		count     int
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "next-due",
		Short: "Compute the next occurrences of a recurring deadline",
		Example: "  apexctl next-due --last 2024-01-31 --frequency Monthly --count 3\n" +
			"  apexctl next-due --last 2024-03-31T00:00:00Z --frequency semi-annual",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(last) == "" {
				return errors.InvalidParam("--last is required")
			}
			if count < 1 || count > maxOccurrences {
				return errors.InvalidParam(fmt.Sprintf("--count must be between 1 and %d", maxOccurrences))
			}
			lastAt, err := parseInstant(last, time.Time{})
			if err != nil {
				return err
			}

			policy := cliCtx.Policy
			if strict {
				policy.DefaultToYearly = false
			}
			res, err := nextDue(compliance.NewResolver(policy), lastAt, frequency, count, cliCtx.Now)
			if err != nil {
				return err
			}
			return PrintResult(cmd, res)
		},
	}

	cmd.Flags().StringVar(&last, "last", "", "last completion, RFC 3339 or YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&frequency, "frequency", "", "Monthly, Quarterly, Semi-Annually or Yearly")
	cmd.Flags().IntVar(&count, "count", 1, "number of successive occurrences to list")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject unrecognised frequencies instead of assuming Yearly")
	return cmd
}

// nextDue chains occurrences from last. Each step advances from the previous
// occurrence, matching how a completed period rolls into the next.
func nextDue(r *compliance.Resolver, last time.Time, frequency string, count int, now time.Time) (NextDueResult, error) {
	rec, err := r.Resolve(last, frequency)
	if err != nil {
		return NextDueResult{}, err
	}

	res := NextDueResult{
		Last:         last,
		Input:        frequency,
		Frequency:    rec.Frequency,
		Defaulted:    rec.Defaulted,
		Occurrences:  []time.Time{rec.Due},
		DaysUntilDue: compliance.DaysUntil(rec.Due, now),
	}
	for len(res.Occurrences) < count {
		prev := res.Occurrences[len(res.Occurrences)-1]
		res.Occurrences = append(res.Occurrences, compliance.NextOccurrence(prev, rec.Frequency))
	}
	return res, nil
}
