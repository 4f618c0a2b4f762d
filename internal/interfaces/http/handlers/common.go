// Package handlers implements the gin handlers of the compliance HTTP API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/digirix/Apexsaas-sub009/internal/interfaces/http/middleware"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const maxHorizonMonths = 120

// respondError maps err to its HTTP status. Internal errors are masked.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	body := middleware.ErrorBody{Error: middleware.ErrorDetail{Code: string(code)}}
	var ae *errors.AppError
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		body.Error.Message = "internal server error"
	case errors.As(err, &ae):
		body.Error.Message = ae.Message
		body.Error.Detail = ae.Detail
	default:
		body.Error.Message = err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, errors.InvalidParam(msg))
}

// tenantOf returns the tenant resolved by the tenant middleware.
func tenantOf(c *gin.Context) string {
	return middleware.TenantFromContext(c)
}

// intQuery parses an optional positive integer query parameter. def is
// returned when the parameter is absent.
func intQuery(c *gin.Context, name string, def, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > max {
		badRequest(c, name+" must be an integer between 1 and "+strconv.Itoa(max))
		return 0, false
	}
	return v, true
}
