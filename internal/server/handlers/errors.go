package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/service/coffee"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coffee.ErrBagNotFound), errors.Is(err, coffee.ErrUseNotFound):
		return http.StatusNotFound
	case errors.Is(err, coffee.ErrInvalidState),
		errors.Is(err, coffee.ErrInvalidArgument),
		errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error response for err. Server errors are logged
// and their details are not exposed.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, logger *zap.Logger, msg string, err error) {
	logger.Debug(msg, zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": msg + ": " + err.Error()})
}
