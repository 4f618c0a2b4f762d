package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
)

// ReportService produces the tenant-wide reports.
type ReportService interface {
	GetJurisdictionRisk(ctx context.Context, tenantID string) ([]domain.RiskProfile, error)
	GetTeamEfficiency(ctx context.Context, tenantID string) ([]domain.TeamMemberEfficiency, error)
}

// ReportHandler serves /reports.
type ReportHandler struct {
	svc ReportService
}

func NewReportHandler(svc ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// RegisterRoutes mounts the handler under a /reports group.
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/reports")
	g.GET("/jurisdiction-risk", h.JurisdictionRisk)
	g.GET("/team-efficiency", h.TeamEfficiency)
}

// JurisdictionRisk handles GET /api/v1/reports/jurisdiction-risk
func (h *ReportHandler) JurisdictionRisk(c *gin.Context) {
	profiles, err := h.svc.GetJurisdictionRisk(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jurisdictions": profiles})
}

// TeamEfficiency handles GET /api/v1/reports/team-efficiency
func (h *ReportHandler) TeamEfficiency(c *gin.Context) {
	rows, err := h.svc.GetTeamEfficiency(c.Request.Context(), tenantOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": rows})
}
