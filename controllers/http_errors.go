package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/princinho/lmsbackend/logger"
	"github.com/princinho/lmsbackend/services"
)

// respondError maps domain errors onto HTTP statuses. Anything
// unrecognized is logged and reported as a bare 500 so storage details
// never leak to clients.
func respondError(c *gin.Context, err error) {
	var credErr *services.CredentialsError
	if errors.As(err, &credErr) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid credentials",
			"attemptsRemaining": credErr.AttemptsRemaining,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, services.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case errors.Is(err, services.ErrAccountLocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "account temporarily locked, try again later"})
	case errors.Is(err, services.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
	case errors.Is(err, services.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "email not verified"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrDuplicate),
		errors.Is(err, services.ErrLicenseLimit),
		errors.Is(err, services.ErrLastSuperAdmin),
		errors.Is(err, services.ErrLastOrgAdmin):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromContext(c).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
