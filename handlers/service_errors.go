package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/upb/auth-service/services"
	"github.com/upb/auth-service/utils"
	"go.uber.org/zap"
)

// retryAfter is advertised on 503 responses caused by a dependency outage
const retryAfter = 5 * time.Second

// HandleServiceError maps domain errors to HTTP responses.
// Only the domain message reaches the client; wrapped causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := publicMessage(err)
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthenticatedError(err):
		logger.Debug("request unauthenticated", zap.Error(err))
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsConflictError(err):
		logger.Warn("request conflicted", zap.Error(err))
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsUpstreamUnavailableError(err):
		logger.Error("dependency unavailable", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, message, retryAfter)

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()

	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		details = verr.Details()
		message = "Validation failed"
	}

	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
