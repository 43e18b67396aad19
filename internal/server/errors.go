package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/portalsync/internal/authorization"
	customerdomain "github.com/smallbiznis/portalsync/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/portalsync/internal/invoice/domain"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/notification/liveevents"
	subscriptiondomain "github.com/smallbiznis/portalsync/internal/subscription/domain"
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
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Recovery string            `json:"recovery,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
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
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
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

	// checked before the validation set: it also unwraps to the store error
	var writeErr *subscriptiondomain.LocalWriteError
	if errors.As(err, &writeErr) {
		return http.StatusInternalServerError, errorPayload{
			Type:     "local_write_failed",
			Message:  "the billing workflow was notified but the new status could not be saved",
			Recovery: "Reload the subscription before retrying; the billing side may already show the change.",
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
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:     "invalid_transition",
			Message:  "the subscription cannot move to the requested status",
			Recovery: "Reload the subscription to see its current status.",
		}
	case errors.Is(err, subscriptiondomain.ErrExternalReferenceImmutable):
		return http.StatusConflict, errorPayload{
			Type:    "external_reference_immutable",
			Message: "the subscription is already linked to another billing reference",
		}
	case errors.Is(err, notificationdomain.ErrOptimisticRollback):
		return http.StatusInternalServerError, errorPayload{
			Type:     "update_rolled_back",
			Message:  "the change could not be saved and was undone",
			Recovery: "Refresh the notifications and try again.",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, notificationdomain.ErrCenterUnavailable),
		errors.Is(err, liveevents.ErrHubUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:     "service_unavailable",
			Message:  "service unavailable",
			Recovery: "Retry in a few seconds.",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the same type the
// client receives.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status == http.StatusBadRequest && len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	subscriptiondomain.ErrInvalidTenant,
	subscriptiondomain.ErrInvalidSubscription,
	subscriptiondomain.ErrInvalidServiceName,
	subscriptiondomain.ErrInvalidAmount,
	subscriptiondomain.ErrInvalidCurrency,
	subscriptiondomain.ErrInvalidBillingCycle,
	subscriptiondomain.ErrInvalidTaxRate,
	subscriptiondomain.ErrInvalidStatus,
	subscriptiondomain.ErrInvalidTargetStatus,
	subscriptiondomain.ErrInvalidExternalReference,
	notificationdomain.ErrInvalidTenant,
	notificationdomain.ErrInvalidTitle,
	notificationdomain.ErrInvalidSeverity,
	notificationdomain.ErrInvalidID,
	customerdomain.ErrInvalidTenant,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidEmail,
	invoicedomain.ErrInvalidTenant,
	invoicedomain.ErrInvalidStatus,
	authorization.ErrInvalidTenant,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
}

func isValidationError(err error) bool {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, notificationdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "invalid_request"
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
	default:
		return "invalid value"
	}
}
