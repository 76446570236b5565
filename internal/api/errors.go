package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
)

// StatusFor maps an error to the HTTP status and the message shown to the client.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, apperrors.ErrShortCodeGenerationFailed):
		return http.StatusServiceUnavailable, "Unable to generate unique short code. Please try again later."
	case errors.Is(err, apperrors.ErrDuplicateName):
		return http.StatusConflict, "Campaign name already exists"
	case errors.Is(err, apperrors.ErrDuplicateUsername):
		return http.StatusConflict, "Username already exists"
	case errors.Is(err, apperrors.ErrInvalidURL):
		return http.StatusBadRequest, "Invalid URL format"
	case errors.Is(err, apperrors.ErrShortCodeNotFound):
		return http.StatusNotFound, "Short URL not found"
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	}

	switch apperrors.KindOf(err) {
	case apperrors.Validation:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Msg != "" {
			return http.StatusBadRequest, appErr.Msg
		}
		var cause error = err
		if appErr != nil && appErr.Err != nil {
			cause = appErr.Err
		}
		return http.StatusBadRequest, cause.Error()
	case apperrors.NotFound:
		return http.StatusNotFound, "Not found"
	case apperrors.Conflict:
		return http.StatusConflict, "Conflict"
	case apperrors.Transient:
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError writes the mapped status and logs anything that is the server's fault.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
