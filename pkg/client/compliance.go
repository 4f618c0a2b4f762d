package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// ComplianceClient wraps /api/v1/entities/{id}/compliance.
type ComplianceClient struct {
	client *Client
}

type Scorecard struct {
	EntityID    string                     `json:"entity_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Scorecard   domain.ComplianceScorecard `json:"scorecard"`
}

type Deadlines struct {
	EntityID      string                    `json:"entity_id"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	HorizonMonths int                       `json:"horizon_months,omitempty"`
	Deadlines     []domain.UpcomingDeadline `json:"deadlines"`
}

// AlertResult lists the alerts that fired. Published is false when the
// server could not deliver them.
type AlertResult struct {
	EntityID  string              `json:"entity_id"`
	Alerts    []domain.AlertEvent `json:"alerts"`
	Published bool                `json:"published"`
}

type Snapshot struct {
	Key          string    `json:"key"`
	TenantID     string    `json:"tenant_id"`
	EntityID     string    `json:"entity_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type Snapshots struct {
	EntityID  string     `json:"entity_id"`
	Snapshots []Snapshot `json:"snapshots"`
}

func entityPath(entityID, suffix string) (string, error) {
	if entityID == "" {
		return "", errors.InvalidParam("client: entityID is required")
	}
	return "/api/v1/entities/" + url.PathEscape(entityID) + "/compliance/" + suffix, nil
}

// Scorecard fetches the per-service breakdown and overall score.
func (c *ComplianceClient) Scorecard(ctx context.Context, entityID string) (*Scorecard, error) {
	path, err := entityPath(entityID, "scorecard")
	if err != nil {
		return nil, err
	}
	var out Scorecard
	if err := c.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deadlines fetches upcoming deadlines. A zero horizon uses the server
// default.
func (c *ComplianceClient) Deadlines(ctx context.Context, entityID string, horizonMonths int) (*Deadlines, error) {
	path, err := entityPath(entityID, "deadlines")
	if err != nil {
		return nil, err
	}
	if horizonMonths < 0 {
		return nil, errors.InvalidParam("client: horizonMonths must not be negative")
	}
	if horizonMonths > 0 {
		path += "?horizon_months=" + strconv.Itoa(horizonMonths)
	}
	var out Deadlines
	if err := c.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateAlerts asks the server to evaluate and publish threshold alerts.
func (c *ComplianceClient) EvaluateAlerts(ctx context.Context, entityID string) (*AlertResult, error) {
	path, err := entityPath(entityID, "alerts")
	if err != nil {
		return nil, err
	}
	var out AlertResult
	if err := c.client.post(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshots lists archived reports, newest first. A zero limit uses the
// server default.
func (c *ComplianceClient) Snapshots(ctx context.Context, entityID string, limit int) (*Snapshots, error) {
	path, err := entityPath(entityID, "snapshots")
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out Snapshots
	if err := c.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportsClient wraps /api/v1/reports.
type ReportsClient struct {
	client *Client
}

// JurisdictionRisk returns the tenant's jurisdictions, riskiest first.
func (r *ReportsClient) JurisdictionRisk(ctx context.Context) ([]domain.RiskProfile, error) {
	var out struct {
		Jurisdictions []domain.RiskProfile `json:"jurisdictions"`
	}
	if err := r.client.get(ctx, "/api/v1/reports/jurisdiction-risk", &out); err != nil {
		return nil, err
	}
	return out.Jurisdictions, nil
}

// TeamEfficiency returns one row per assignee.
func (r *ReportsClient) TeamEfficiency(ctx context.Context) ([]domain.TeamMemberEfficiency, error) {
	var out struct {
		Members []domain.TeamMemberEfficiency `json:"members"`
	}
	if err := r.client.get(ctx, "/api/v1/reports/team-efficiency", &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}
