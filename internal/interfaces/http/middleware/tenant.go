// Package middleware holds the gin middleware of the compliance HTTP API.
package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const (
	// TenantHeader carries the tenant id on requests and is echoed on responses.
	TenantHeader = "X-Tenant-ID"

	tenantQueryParam = "tenant_id"
	tenantContextKey = "apex.tenant_id"
)

// TenantConfig controls tenant resolution.
type TenantConfig struct {
	// DefaultTenantID is used when the request names no tenant.
	DefaultTenantID string

	// Required rejects requests that resolve to no tenant with 400.
	Required bool

	// AllowedTenants, when non-empty, is the only set of accepted ids.
	AllowedTenants []string
}

// tenantIDPattern: alphanumeric, underscore and hyphen, 1-64 characters.
var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ErrorBody is the JSON error envelope shared by middleware and handlers.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Tenant resolves the tenant id from the X-Tenant-ID header, then the
// tenant_id query parameter, then cfg.DefaultTenantID, and stores it on the
// gin context.
func Tenant(cfg TenantConfig, logger logging.Logger) gin.HandlerFunc {
	var allowed map[string]struct{}
	if len(cfg.AllowedTenants) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedTenants))
		for _, t := range cfg.AllowedTenants {
			allowed[strings.TrimSpace(t)] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			tenantID = strings.TrimSpace(c.Query(tenantQueryParam))
		}
		if tenantID == "" {
			tenantID = cfg.DefaultTenantID
		}

		if tenantID == "" {
			if cfg.Required {
				logger.Warn("tenant ID missing in required mode",
					logging.String("method", c.Request.Method),
					logging.String("path", c.Request.URL.Path))
				abort(c, http.StatusBadRequest, errors.ErrCodeValidation,
					"tenant ID is required: provide via header or query parameter")
				return
			}
			c.Next()
			return
		}

		if !tenantIDPattern.MatchString(tenantID) {
			logger.Warn("invalid tenant ID format", logging.TenantID(tenantID))
			abort(c, http.StatusBadRequest, errors.ErrCodeValidation,
				fmt.Sprintf("invalid tenant ID format: must match [a-zA-Z0-9_-]{1,64}, got %q", tenantID))
			return
		}
		if allowed != nil {
			if _, ok := allowed[tenantID]; !ok {
				logger.Warn("tenant ID not in allowed list", logging.TenantID(tenantID))
				abort(c, http.StatusForbidden, errors.ErrCodeForbidden,
					fmt.Sprintf("tenant %q is not permitted", tenantID))
				return
			}
		}

		c.Set(tenantContextKey, tenantID)
		c.Header(TenantHeader, tenantID)
		c.Next()
	}
}

// TenantFromContext returns the tenant resolved by Tenant, or "".
func TenantFromContext(c *gin.Context) string {
	return c.GetString(tenantContextKey)
}

func abort(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Code: string(code), Message: message}})
}
