package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	embeddomain "github.com/smallbiznis/partnerpay/internal/embedtoken/domain"
	folderdomain "github.com/smallbiznis/partnerpay/internal/folder/domain"
	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
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

func mapError(err error) (int, errorPayload) {
	status, errType, message := classify(err)

	var pub *embeddomain.PublicError
	if errors.As(err, &pub) && pub.Message != "" {
		message = pub.Message
	}
	return status, errorPayload{Type: errType, Message: message}
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, embeddomain.ErrInvalidRequest),
		errors.Is(err, embeddomain.ErrMissingTarget),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, "bad_request", "invalid request"
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, workspacedomain.ErrMissingWorkspace),
		errors.Is(err, workspacedomain.ErrWorkspaceNotFound),
		errors.Is(err, embeddomain.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, ErrForbidden),
		errors.Is(err, embeddomain.ErrPlanNotAllowed),
		errors.Is(err, folderdomain.ErrFoldersUnavailable):
		return http.StatusForbidden, "forbidden", "forbidden"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, embeddomain.ErrProgramNotFound),
		errors.Is(err, embeddomain.ErrPartnerNotEnrolled),
		errors.Is(err, folderdomain.ErrFolderNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large", "payload too large"
	case errors.Is(err, embeddomain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests"
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrInvalidConfig):
		return http.StatusServiceUnavailable, "service_unavailable", "service unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, errType, _ := classify(err)
	return errType, errorCode(err)
}

// errorCode is the innermost error text, which for domain sentinels is a
// stable snake_case code.
func errorCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
