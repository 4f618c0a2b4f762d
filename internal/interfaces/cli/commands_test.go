package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const testNow = "2024-06-15T12:00:00Z"

const snapshotYAML = `
statuses:
  - {id: 1, name: Open}
  - {id: 2, name: Completed}
entities:
  - entity: {id: ent-1, name: Acme GmbH, jurisdiction: DE}
    subscriptions:
      - {entity_id: ent-1, service_type_id: VAT, service_name: VAT Return, is_required: true, is_subscribed: true}
    tasks:
      - id: t1
        entity_id: ent-1
        service_type_id: VAT
        status_id: 1
        assignee_id: alice
        created_at: 2024-06-01T00:00:00Z
        updated_at: 2024-06-01T00:00:00Z
        compliance_deadline: 2024-06-25T12:00:00Z
        compliance_frequency: Monthly
  - entity: {id: ent-2, name: Acme SARL, jurisdiction: FR}
    subscriptions:
      - {entity_id: ent-2, service_type_id: AUDIT, service_name: Annual Audit, is_required: true, is_subscribed: true}
    tasks:
      - id: t2
        entity_id: ent-2
        service_type_id: AUDIT
        status_id: 2
        assignee_id: bob
        created_at: 2024-01-01T00:00:00Z
        updated_at: 2024-02-01T00:00:00Z
        completed_at: 2024-02-01T00:00:00Z
        compliance_frequency: Yearly
`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes apexctl with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(snapshotYAML))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "apexctl", cmd.Use)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"report", "risk", "team", "next-due"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	for _, flag := range []string{"config", "output", "now", "log-level", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestRootCommand_RejectsBadGlobals(t *testing.T) {
	_, err := run(t, "report", "-f", "-", "--output", "xml")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = run(t, "report", "-f", "-", "--now", "yesterday")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestReport_JSON(t *testing.T) {
	out, err := run(t, "report", "--file", writeSnapshot(t, snapshotYAML), "--now", testNow, "-o", "json")
	require.NoError(t, err)

	var res ReportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Reports, 2)

	ent1 := res.Reports[0]
	assert.Equal(t, "ent-1", ent1.EntityID)
	assert.Equal(t, 50, ent1.Scorecard.OverallScorePct)
	assert.Equal(t, 1, ent1.Scorecard.UpcomingCount)
	require.Len(t, ent1.Deadlines, 1)
	assert.Equal(t, 10, ent1.Deadlines[0].DaysUntilDue)
	assert.Equal(t, compliance.PriorityMedium, ent1.Deadlines[0].Priority)

	ent2 := res.Reports[1]
	assert.Equal(t, 100, ent2.Scorecard.OverallScorePct)
	require.NotNil(t, ent2.Scorecard.Breakdown[0].NextDueAt)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), ent2.Scorecard.Breakdown[0].NextDueAt.UTC())
}

func TestReport_TextForOneEntityFromStdin(t *testing.T) {
	out, err := run(t, "report", "-f", "-", "--entity", "ent-1", "--now", testNow)
	require.NoError(t, err)

	assert.Contains(t, out, "Entity ent-1: overall 50% (compliant 0, overdue 0, upcoming 1, not subscribed 0 of 1)")
	assert.Contains(t, out, "VAT Return")
	assert.Contains(t, out, "2024-06-25  10")
	assert.NotContains(t, out, "ent-2")
}

func TestReport_Errors(t *testing.T) {
	_, err := run(t, "report", "--now", testNow)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), "missing --file")

	_, err = run(t, "report", "-f", "-", "--entity", "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeEntityNotFound))

	_, err = run(t, "report", "-f", "-", "--horizon", "500")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	noCompleted := strings.Replace(snapshotYAML, "name: Completed", "name: Closed", 1)
	_, err = run(t, "report", "-f", writeSnapshot(t, noCompleted))
	assert.True(t, compliance.IsInconsistentTaxonomy(err))

	_, err = run(t, "report", "-f", writeSnapshot(t, "entities: [{bogus: 1}]"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
}

func TestReport_CompletedStatusOverrideInSnapshot(t *testing.T) {
	renamed := "completed_status_name: Closed\n" + strings.Replace(snapshotYAML, "name: Completed", "name: Closed", 1)
	out, err := run(t, "report", "-f", writeSnapshot(t, renamed), "--entity", "ent-2", "--now", testNow, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"overall_score_pct": 100`)
}

func TestRisk_OrdersByScore(t *testing.T) {
	out, err := run(t, "risk", "-f", "-", "--now", testNow, "-o", "json")
	require.NoError(t, err)

	var res RiskResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Jurisdictions, 2)
	assert.Equal(t, "DE", res.Jurisdictions[0].Name)
	assert.Equal(t, "FR", res.Jurisdictions[1].Name)
	assert.Equal(t, compliance.RiskLow, res.Jurisdictions[1].RiskLevel)

	text, err := run(t, "risk", "-f", "-", "--now", testNow)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "JURISDICTION"))
}

func TestTeam_Table(t *testing.T) {
	out, err := run(t, "team", "-f", "-", "--now", testNow, "-o", "json")
	require.NoError(t, err)

	var res TeamResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Members, 2)
	assert.Equal(t, "bob", res.Members[0].AssigneeID)
	assert.Equal(t, float64(100), res.Members[0].CompletionRatePct)
	assert.InDelta(t, 31, res.Members[0].AvgCompletionDays, 0.001)

	rows := res.TableRows()
	assert.Equal(t, "-", rows[1][7], "no completions renders no average")
}

func TestNextDue(t *testing.T) {
	out, err := run(t, "next-due", "--last", "2024-01-31", "--frequency", "Monthly", "--count", "3", "--now", "2024-02-01", "-o", "json")
	require.NoError(t, err)

	var res NextDueResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, compliance.FrequencyMonthly, res.Frequency)
	assert.False(t, res.Defaulted)
	require.Len(t, res.Occurrences, 3)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), res.Occurrences[0])
	assert.Equal(t, 28, res.DaysUntilDue)
}

func TestNextDue_Defaulting(t *testing.T) {
	out, err := run(t, "next-due", "--last", "2024-03-31", "--frequency", "Fortnightly")
	require.NoError(t, err)
	assert.Contains(t, out, `Frequency: Yearly (defaulted from "Fortnightly")`)
	assert.Contains(t, out, "2025-03-31")

	_, err = run(t, "next-due", "--last", "2024-03-31", "--frequency", "Fortnightly", "--strict")
	assert.True(t, compliance.IsInvalidFrequency(err))

	_, err = run(t, "next-due", "--frequency", "Monthly")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = run(t, "next-due", "--last", "2024-03-31", "--count", "0")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"A", "LONGER"}, [][]string{{"value", "x"}, {"v"}})
	want := "A      LONGER\n" +
		"-----  ------\n" +
		"value  x\n" +
		"v      \n"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatTable(nil, nil))
}
