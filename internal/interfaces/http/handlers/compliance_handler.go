package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
)

// ComplianceService is the part of the application service the entity
// endpoints use.
type ComplianceService interface {
	GetEntityReport(ctx context.Context, tenantID, entityID string, horizonMonths int) (*domain.EntityReport, error)
	EvaluateAlerts(ctx context.Context, tenantID, entityID string) ([]domain.AlertEvent, error)
	ListSnapshots(ctx context.Context, tenantID, entityID string, limit int) ([]minio.SnapshotInfo, error)
}

// ComplianceHandler serves the per-entity compliance endpoints.
type ComplianceHandler struct {
	svc ComplianceService
}

func NewComplianceHandler(svc ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{svc: svc}
}

// ScorecardResponse is the body of GET .../compliance/scorecard.
type ScorecardResponse struct {
	EntityID    string                     `json:"entity_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Scorecard   domain.ComplianceScorecard `json:"scorecard"`
}

// DeadlinesResponse is the body of GET .../compliance/deadlines.
type DeadlinesResponse struct {
	EntityID      string                    `json:"entity_id"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	HorizonMonths int                       `json:"horizon_months,omitempty"`
	Deadlines     []domain.UpcomingDeadline `json:"deadlines"`
}

// AlertsResponse is the body of POST .../compliance/alerts.
// Published is false when the alerts fired but could not be delivered.
type AlertsResponse struct {
	EntityID  string              `json:"entity_id"`
	Alerts    []domain.AlertEvent `json:"alerts"`
	Published bool                `json:"published"`
}

// SnapshotsResponse is the body of GET .../compliance/snapshots.
type SnapshotsResponse struct {
	EntityID  string               `json:"entity_id"`
	Snapshots []minio.SnapshotInfo `json:"snapshots"`
}

// RegisterRoutes mounts the handler under an /entities group.
func (h *ComplianceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/entities/:entityId/compliance")
	g.GET("/scorecard", h.GetScorecard)
	g.GET("/deadlines", h.GetDeadlines)
	g.POST("/alerts", h.EvaluateAlerts)
	g.GET("/snapshots", h.ListSnapshots)
}

// GetScorecard handles GET /api/v1/entities/:entityId/compliance/scorecard
func (h *ComplianceHandler) GetScorecard(c *gin.Context) {
	report, err := h.svc.GetEntityReport(c.Request.Context(), tenantOf(c), c.Param("entityId"), 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ScorecardResponse{
		EntityID:    report.EntityID,
		GeneratedAt: report.GeneratedAt,
		Scorecard:   report.Scorecard,
	})
}

// GetDeadlines handles GET /api/v1/entities/:entityId/compliance/deadlines
// with an optional horizon_months query parameter.
func (h *ComplianceHandler) GetDeadlines(c *gin.Context) {
	horizon, ok := intQuery(c, "horizon_months", 0, maxHorizonMonths)
	if !ok {
		return
	}
	report, err := h.svc.GetEntityReport(c.Request.Context(), tenantOf(c), c.Param("entityId"), horizon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DeadlinesResponse{
		EntityID:      report.EntityID,
		GeneratedAt:   report.GeneratedAt,
		HorizonMonths: horizon,
		Deadlines:     report.Deadlines,
	})
}

// EvaluateAlerts handles POST /api/v1/entities/:entityId/compliance/alerts
func (h *ComplianceHandler) EvaluateAlerts(c *gin.Context) {
	entityID := c.Param("entityId")
	alerts, err := h.svc.EvaluateAlerts(c.Request.Context(), tenantOf(c), entityID)
	if err != nil && alerts == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, AlertsResponse{EntityID: entityID, Alerts: alerts, Published: err == nil})
}

// ListSnapshots handles GET /api/v1/entities/:entityId/compliance/snapshots
func (h *ComplianceHandler) ListSnapshots(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 20, 500)
	if !ok {
		return
	}
	entityID := c.Param("entityId")
	snaps, err := h.svc.ListSnapshots(c.Request.Context(), tenantOf(c), entityID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SnapshotsResponse{EntityID: entityID, Snapshots: snaps})
}
