// Package http assembles the gin engine and server of the compliance API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/http/handlers"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/http/middleware"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the HTTP route tree. Nil handlers are not mounted.
type RouterConfig struct {
	ComplianceHandler *handlers.ComplianceHandler
	ReportHandler     *handlers.ReportHandler
	HealthHandler     *handlers.HealthHandler

	Tenant  middleware.TenantConfig
	Logging middleware.LoggingConfig

	Logger         logging.Logger
	Metrics        *prometheus.AppMetrics
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter builds the engine: global middleware, public probes and metrics,
// then the tenant-scoped /api/v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(cfg.Logger),
		middleware.RequestLogging(cfg.Logger, cfg.Logging),
		middleware.Metrics(cfg.Metrics),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1", middleware.Tenant(cfg.Tenant, cfg.Logger))
	if cfg.ComplianceHandler != nil {
		cfg.ComplianceHandler.RegisterRoutes(api)
	}
	if cfg.ReportHandler != nil {
		cfg.ReportHandler.RegisterRoutes(api)
	}

	return r
}
