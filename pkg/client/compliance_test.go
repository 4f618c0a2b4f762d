package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

func TestCompliance_Scorecard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/entities/ent%2F1/compliance/scorecard", r.URL.EscapedPath())
		w.Write([]byte(`{
			"entity_id": "ent/1",
			"generated_at": "2024-06-15T12:00:00Z",
			"scorecard": {"overall_score_pct": 75, "subscribed_services": 2, "compliant_services": 1, "upcoming_count": 1,
				"breakdown": [{"service_id": "VAT", "service_name": "VAT Return", "status": "Compliant", "frequency": "Monthly"}]}
		}`))
	})

	sc, err := c.Compliance().Scorecard(context.Background(), "ent/1")
	require.NoError(t, err)
	assert.Equal(t, "ent/1", sc.EntityID)
	assert.Equal(t, time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC), sc.GeneratedAt.UTC())
	assert.Equal(t, 75, sc.Scorecard.OverallScorePct)
	require.Len(t, sc.Scorecard.Breakdown, 1)
	assert.Equal(t, "VAT Return", sc.Scorecard.Breakdown[0].ServiceName)
}

func TestCompliance_Deadlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "24", r.URL.Query().Get("horizon_months"))
		w.Write([]byte(`{"entity_id":"ent-1","horizon_months":24,"deadlines":[
			{"service_id":"VAT","service_name":"VAT Return","due_date":"2024-06-25T12:00:00Z","priority":"medium","days_until_due":10}]}`))
	})

	dl, err := c.Compliance().Deadlines(context.Background(), "ent-1", 24)
	require.NoError(t, err)
	assert.Equal(t, 24, dl.HorizonMonths)
	require.Len(t, dl.Deadlines, 1)
	assert.Equal(t, domain.PriorityMedium, dl.Deadlines[0].Priority)
	assert.Equal(t, 10, dl.Deadlines[0].DaysUntilDue)
}

func TestCompliance_DeadlinesDefaultHorizon(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"entity_id":"ent-1","deadlines":[]}`))
	})

	dl, err := c.Compliance().Deadlines(context.Background(), "ent-1", 0)
	require.NoError(t, err)
	assert.Empty(t, dl.Deadlines)
}

func TestCompliance_EvaluateAlerts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/entities/ent-1/compliance/alerts", r.URL.Path)
		w.Write([]byte(`{"entity_id":"ent-1","published":false,"alerts":[{"id":"a1","trigger_id":"tr-1","service_id":"VAT","days_until_due":3}]}`))
	})

	res, err := c.Compliance().EvaluateAlerts(context.Background(), "ent-1")
	require.NoError(t, err)
	assert.False(t, res.Published)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "tr-1", res.Alerts[0].TriggerID)
}

func TestCompliance_Snapshots(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"entity_id":"ent-1","snapshots":[{"key":"t/ent-1/1.json","size":42}]}`))
	})

	res, err := c.Compliance().Snapshots(context.Background(), "ent-1", 5)
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, int64(42), res.Snapshots[0].Size)
}

func TestCompliance_ValidatesArguments(t *testing.T) {
	c, err := NewClient("http://unused.invalid")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Compliance().Scorecard(ctx, "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Compliance().Deadlines(ctx, "ent-1", -1)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Compliance().EvaluateAlerts(ctx, "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = c.Compliance().Snapshots(ctx, "", 1)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestReports(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reports/jurisdiction-risk":
			w.Write([]byte(`{"jurisdictions":[{"name":"DE","risk_score":60,"risk_level":"High"},{"name":"FR","risk_score":0,"risk_level":"Low"}]}`))
		case "/api/v1/reports/team-efficiency":
			w.Write([]byte(`{"members":[{"assignee_id":"bob","completed_tasks":1,"avg_completion_days":31}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, WithTenant("t-1"))

	risk, err := c.Reports().JurisdictionRisk(context.Background())
	require.NoError(t, err)
	require.Len(t, risk, 2)
	assert.Equal(t, domain.RiskHigh, risk[0].RiskLevel)

	team, err := c.Reports().TeamEfficiency(context.Background())
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, float64(31), team[0].AvgCompletionDays)
}
