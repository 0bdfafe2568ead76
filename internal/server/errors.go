package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	addondomain "github.com/smallbiznis/hireboard/internal/addon/domain"
	auditdomain "github.com/smallbiznis/hireboard/internal/audit/domain"
	"github.com/smallbiznis/hireboard/internal/authorization"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	creditdomain "github.com/smallbiznis/hireboard/internal/credit/domain"
	fulfillmentdomain "github.com/smallbiznis/hireboard/internal/fulfillment/domain"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
	paymentdomain "github.com/smallbiznis/hireboard/internal/payment/domain"
	"github.com/smallbiznis/hireboard/internal/providers/pdf"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
	reportdomain "github.com/smallbiznis/hireboard/internal/report/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Errors     []ValidationError `json:"errors,omitempty"`
	UpgradeURL string            `json:"upgrade_url,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
)

// contentionRetryAfter is the Retry-After value, in seconds, sent with
// consume_contention responses.
const contentionRetryAfter = "1"

// ErrorHandlingMiddleware renders the last handler error. upgradeURL is
// attached to subscription_required responses.
func ErrorHandlingMiddleware(upgradeURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		switch payload.Type {
		case "subscription_required":
			payload.UpgradeURL = upgradeURL
		case "consume_contention":
			c.Header("Retry-After", contentionRetryAfter)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "request body too large",
		}
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Message: "no usable credit for this action",
		}
	case errors.Is(err, creditdomain.ErrConsumeContention):
		return http.StatusConflict, errorPayload{
			Type:    "consume_contention",
			Message: "credits are being spent concurrently, retry the request",
		}
	case errors.Is(err, purchasedomain.ErrSubscriptionRequired):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "subscription_required",
			Message: "an active subscription is required for this pack",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, jobdomain.ErrOwnershipMismatch):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, jobdomain.ErrJobStillActive),
		errors.Is(err, jobdomain.ErrJobNotActive),
		errors.Is(err, addondomain.ErrAddonAlreadyApplied),
		errors.Is(err, addondomain.ErrGrantInactive),
		errors.Is(err, addondomain.ErrGrantExpired),
		errors.Is(err, fulfillmentdomain.ErrSessionNotPaid),
		errors.Is(err, pdf.ErrReceiptUnavailable):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, purchasedomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many checkout attempts",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, catalogdomain.ErrInvalidSelection),
		errors.Is(err, purchasedomain.ErrInvalidUser),
		errors.Is(err, purchasedomain.ErrInvalidRedirect),
		errors.Is(err, creditdomain.ErrInvalidCreditType),
		errors.Is(err, creditdomain.ErrInvalidUser),
		errors.Is(err, creditdomain.ErrInvalidState),
		errors.Is(err, jobdomain.ErrInvalidTitle),
		errors.Is(err, jobdomain.ErrInvalidSource),
		errors.Is(err, reportdomain.ErrInvalidRange),
		errors.Is(err, reportdomain.ErrInvalidUser),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, fulfillmentdomain.ErrInvalidConfirmation),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, jobdomain.ErrJobNotFound),
		errors.Is(err, addondomain.ErrGrantNotFound),
		errors.Is(err, purchasedomain.ErrPurchaseNotFound),
		errors.Is(err, fulfillmentdomain.ErrUnknownPurchase),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrSessionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_selection":
		return "unknown or inactive catalog item"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger with the mapped type and the
// raw sentinel text.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	if errors.Is(err, creditdomain.ErrInsufficientCredits) {
		return "insufficient_credits", err.Error()
	}
	return payload.Type, err.Error()
}
