package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authdomain "github.com/smallbiznis/bizboard/internal/auth/domain"
	"github.com/smallbiznis/bizboard/internal/authorization"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/billing/gateway"
	obscontext "github.com/smallbiznis/bizboard/internal/observability/context"
	"github.com/smallbiznis/bizboard/internal/observability/logger"
	organizationdomain "github.com/smallbiznis/bizboard/internal/organization/domain"
)

// apiError is the wire shape for every non-2xx response.
type apiError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *apiError) Error() string { return e.Code }

var (
	ErrUnauthorized       = &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "authentication required"}
	ErrForbidden          = &apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "you do not have access to this resource"}
	ErrNotFound           = &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
	ErrServiceUnavailable = &apiError{Status: http.StatusServiceUnavailable, Code: "service_unavailable", Message: "service temporarily unavailable"}
)

func newValidationError(field, code, message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

func invalidRequestError() *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

// AbortWithError translates domain errors into HTTP responses.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.Status, api)
		return
	}

	switch {
	case errors.Is(err, billingdomain.ErrAlreadySubscribed),
		errors.Is(err, billingdomain.ErrPlanUnchanged):
		c.AbortWithStatusJSON(http.StatusConflict, &apiError{
			Code: "no_op", Message: "the requested plan is already in effect",
		})
	case errors.Is(err, billingdomain.ErrInvalidPlan),
		errors.Is(err, billingdomain.ErrInvalidBillingPeriod),
		errors.Is(err, billingdomain.ErrInvalidPlanStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, &apiError{
			Code: "invalid_request", Message: err.Error(),
		})
	case errors.Is(err, billingdomain.ErrOrganizationNotFound),
		errors.Is(err, billingdomain.ErrSubscriptionNotFound),
		errors.Is(err, organizationdomain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, &apiError{
			Code: "not_found", Message: err.Error(),
		})
	case errors.Is(err, billingdomain.ErrPriceNotConfigured):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, &apiError{
			Code: "price_not_configured", Message: "no price is configured for the requested plan and period",
		})
	case errors.Is(err, billingdomain.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, &apiError{
			Code: "conflict", Message: "billing state changed concurrently, retry the request",
		})
	case errors.Is(err, gateway.ErrStaleReference):
		c.AbortWithStatusJSON(http.StatusConflict, &apiError{
			Code: "stale_reference", Message: "the payment provider no longer recognizes this account",
		})
	case gateway.IsTransient(err):
		c.AbortWithStatusJSON(http.StatusBadGateway, &apiError{
			Code: "payment_provider_unavailable", Message: "the payment provider could not be reached, try again",
		})
	case errors.Is(err, authorization.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, ErrForbidden)
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, &apiError{
			Code: "invalid_credentials", Message: "email or password is incorrect",
		})
	case errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrUnauthorized)
	case errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidUser):
		c.AbortWithStatusJSON(http.StatusBadRequest, &apiError{
			Code: "invalid_request", Message: err.Error(),
		})
	default:
		logger.FromContext(c.Request.Context()).Error("unhandled request error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, &apiError{
			Code:      "internal",
			Message:   "internal server error",
			RequestID: obscontext.RequestIDFromGin(c),
		})
	}
}
