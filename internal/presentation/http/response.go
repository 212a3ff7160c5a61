package http

import (
	"net/http"

	"whatsam/internal/application/dto"
	"whatsam/internal/domain/errors"
	"whatsam/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
)

// respondWithSuccess sends a successful JSON response
func respondWithSuccess(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, dto.NewSuccessResponse(data))
}

// respondWithError sends an error JSON response
func respondWithError(c *gin.Context, statusCode int, code, message string, details map[string]string) {
	c.JSON(statusCode, dto.NewErrorResponse[any](code, message, details))
}

// handleDomainError converts domain errors to HTTP responses
func handleDomainError(c *gin.Context, err error, log logger.Logger) {
	domainErr := errors.GetDomainError(err)
	if domainErr == nil {
		requestID, _ := c.Get(RequestIDKey)
		log.Error("unexpected error",
			logger.Any("request_id", requestID),
			logger.Err(err))
		respondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", nil)
		return
	}

	statusCode := mapErrorToHTTPStatus(domainErr.Code)

	if statusCode == http.StatusInternalServerError {
		requestID, _ := c.Get(RequestIDKey)
		log.Error("domain error",
			logger.Any("request_id", requestID),
			logger.String("code", domainErr.Code),
			logger.Err(err))
	}

	respondWithError(c, statusCode, domainErr.Code, domainErr.Message, nil)
}

// mapErrorToHTTPStatus maps domain error codes to HTTP status codes
func mapErrorToHTTPStatus(code string) int {
	switch code {
	// Not Found errors (404)
	case "SESSION_NOT_FOUND", "NOT_FOUND", "QR_NOT_AVAILABLE":
		return http.StatusNotFound

	// Conflict errors (409)
	case "SESSION_EXISTS":
		return http.StatusConflict

	// Gone (410)
	case "QR_EXPIRED":
		return http.StatusGone

	// Bad Request errors (400)
	case "VALIDATION_FAILED", "INVALID_SESSION_ID", "INVALID_PHONE",
		"INVALID_MESSAGE_TYPE", "EMPTY_CONTENT":
		return http.StatusBadRequest

	// Precondition failures (409): the session is not in a sendable state
	case "NOT_CONNECTED", "NOT_AUTHENTICATED":
		return http.StatusConflict

	// Service Unavailable errors (503)
	case "TRANSIENT", "BACKEND_UNAVAILABLE":
		return http.StatusServiceUnavailable

	// Permanent protocol-side failures (502)
	case "PERMANENT", "MESSAGE_SEND_FAILED":
		return http.StatusBadGateway

	// Internal Server errors (500)
	case "INTERNAL_ERROR", "AUTH_STORE_FAILED", "REGISTRATION_FAILED",
		"CONFIG_MISSING", "CONFIG_INVALID":
		return http.StatusInternalServerError

	// Default to Internal Server Error for unknown codes
	default:
		return http.StatusInternalServerError
	}
}
