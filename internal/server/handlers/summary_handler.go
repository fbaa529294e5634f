package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/service/reporting"
)

// SummaryBuilder produces the weekly usage summary.
type SummaryBuilder interface {
	WeeklySummary(ctx context.Context, now time.Time) (reporting.Summary, error)
}

// SummaryHandler serves the on-demand weekly summary.
type SummaryHandler struct {
	builder SummaryBuilder
	logger  *zap.Logger
	now     func() time.Time
}

// NewSummaryHandler constructs the summary handler.
func NewSummaryHandler(builder SummaryBuilder, logger *zap.Logger) *SummaryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryHandler{builder: builder, logger: logger, now: time.Now}
}

// Weekly returns the summary for the last seven days.
func (h *SummaryHandler) Weekly(c *gin.Context) {
	summary, err := h.builder.WeeklySummary(c.Request.Context(), h.now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "text": summary.Text()})
}
