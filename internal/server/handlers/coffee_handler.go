package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/coffee-counter/internal/domain/models"
	"github.com/mamadbah2/coffee-counter/internal/service/coffee"
)

// CoffeeService is the bag and use surface exposed over HTTP.
type CoffeeService interface {
	CreateBag(ctx context.Context, req coffee.NewBag) (models.CoffeeBag, error)
	GetBag(ctx context.Context, key string) (models.CoffeeBag, error)
	ListBags(ctx context.Context, limit *int) ([]models.CoffeeBag, error)
	ActiveBags(ctx context.Context, limit *int) ([]models.CoffeeBag, error)
	UpdateBag(ctx context.Context, key string, req coffee.BagUpdate) (models.CoffeeBag, error)
	DeactivateBag(ctx context.Context, key string, finish *models.Date) (models.CoffeeBag, error)
	ActivateBag(ctx context.Context, key string) (models.CoffeeBag, error)
	DeleteBag(ctx context.Context, key string) error
	DeleteAllBags(ctx context.Context) (int, error)

	LogUse(ctx context.Context, bagID string, at *time.Time) (models.CoffeeUse, error)
	GetUse(ctx context.Context, key string) (models.CoffeeUse, error)
	QueryUses(ctx context.Context, q coffee.UseQuery) ([]models.CoffeeUse, error)
	DeleteUse(ctx context.Context, key string) error
	DeleteAllUses(ctx context.Context) (int, error)

	Counts(ctx context.Context) (models.MetaCount, error)
	RebuildCounts(ctx context.Context) (models.MetaCount, error)
	MigrateActive(ctx context.Context) (int, error)
}

// CoffeeHandler serves the bag, use and count routes.
type CoffeeHandler struct {
	svc    CoffeeService
	logger *zap.Logger
}

// NewCoffeeHandler constructs the HTTP handler adapter.
func NewCoffeeHandler(svc CoffeeService, logger *zap.Logger) *CoffeeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoffeeHandler{svc: svc, logger: logger}
}

type lastNQuery struct {
	NLast *int `form:"n_last" binding:"omitempty,min=1"`
}

type usesQuery struct {
	NLast *int   `form:"n_last" binding:"omitempty,min=1"`
	Since string `form:"since"`
	BagID string `form:"bag_id"`
}

type createBagRequest struct {
	Brand  string       `json:"brand" binding:"required"`
	Name   string       `json:"name" binding:"required"`
	Weight float64      `json:"weight" binding:"omitempty,gt=0"`
	Start  *models.Date `json:"start"`
}

type updateBagRequest struct {
	Brand  *string      `json:"brand" binding:"omitempty,min=1"`
	Name   *string      `json:"name" binding:"omitempty,min=1"`
	Weight *float64     `json:"weight" binding:"omitempty,gt=0"`
	Start  *models.Date `json:"start"`
}

type deactivateRequest struct {
	Finish *models.Date `json:"finish"`
}

type logUseRequest struct {
	BagID    string `json:"bag_id" binding:"required"`
	DateTime string `json:"datetime"`
}

// ListBags returns every bag keyed by bag key, oldest start first.
func (h *CoffeeHandler) ListBags(c *gin.Context) {
	var q lastNQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, h.logger, "invalid query", err)
		return
	}

	bags, err := h.svc.ListBags(c.Request.Context(), q.NLast)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.KeyedBags(bags))
}

// ActiveBags returns the active bags keyed by bag key, oldest start first.
func (h *CoffeeHandler) ActiveBags(c *gin.Context) {
	var q lastNQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, h.logger, "invalid query", err)
		return
	}

	bags, err := h.svc.ActiveBags(c.Request.Context(), q.NLast)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.KeyedBags(bags))
}

// GetBag returns one bag.
func (h *CoffeeHandler) GetBag(c *gin.Context) {
	bag, err := h.svc.GetBag(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bag)
}

// CreateBag registers a new active bag.
func (h *CoffeeHandler) CreateBag(c *gin.Context) {
	var req createBagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	bag, err := h.svc.CreateBag(c.Request.Context(), coffee.NewBag{
		Brand:  req.Brand,
		Name:   req.Name,
		Weight: req.Weight,
		Start:  req.Start,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, bag)
}

// UpdateBag applies a partial update to a bag's descriptive fields.
func (h *CoffeeHandler) UpdateBag(c *gin.Context) {
	var req updateBagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	bag, err := h.svc.UpdateBag(c.Request.Context(), c.Param("id"), coffee.BagUpdate{
		Brand:  req.Brand,
		Name:   req.Name,
		Weight: req.Weight,
		Start:  req.Start,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bag)
}

// DeactivateBag finishes a bag. The body is optional.
func (h *CoffeeHandler) DeactivateBag(c *gin.Context) {
	var req deactivateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "invalid request body", err)
			return
		}
	}

	bag, err := h.svc.DeactivateBag(c.Request.Context(), c.Param("id"), req.Finish)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bag)
}

// ActivateBag reopens a finished bag.
func (h *CoffeeHandler) ActivateBag(c *gin.Context) {
	bag, err := h.svc.ActivateBag(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, bag)
}

// DeleteBag removes a bag.
func (h *CoffeeHandler) DeleteBag(c *gin.Context) {
	if err := h.svc.DeleteBag(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllBags removes every bag.
func (h *CoffeeHandler) DeleteAllBags(c *gin.Context) {
	deleted, err := h.svc.DeleteAllBags(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// QueryUses returns uses keyed by use key in ascending time order.
func (h *CoffeeHandler) QueryUses(c *gin.Context) {
	var q usesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, h.logger, "invalid query", err)
		return
	}

	query := coffee.UseQuery{Limit: q.NLast, BagID: q.BagID}
	if q.Since != "" {
		since, err := parseSince(q.Since)
		if err != nil {
			badRequest(c, h.logger, "invalid since", err)
			return
		}
		query.Since = &since
	}

	uses, err := h.svc.QueryUses(c.Request.Context(), query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.KeyedUses(uses))
}

// GetUse returns one use.
func (h *CoffeeHandler) GetUse(c *gin.Context) {
	use, err := h.svc.GetUse(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, use)
}

// LogUse records a brew from a bag, at the given datetime or now.
func (h *CoffeeHandler) LogUse(c *gin.Context) {
	var req logUseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	var at *time.Time
	if req.DateTime != "" {
		parsed, err := models.ParseDateTime(req.DateTime)
		if err != nil {
			badRequest(c, h.logger, "invalid datetime", err)
			return
		}
		at = &parsed
	}

	use, err := h.svc.LogUse(c.Request.Context(), req.BagID, at)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, use)
}

// DeleteUse removes a use.
func (h *CoffeeHandler) DeleteUse(c *gin.Context) {
	if err := h.svc.DeleteUse(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllUses removes every use.
func (h *CoffeeHandler) DeleteAllUses(c *gin.Context) {
	deleted, err := h.svc.DeleteAllUses(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Counts returns the cached bag and use totals.
func (h *CoffeeHandler) Counts(c *gin.Context) {
	counts, err := h.svc.Counts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Recount rebuilds the cached totals from the collections.
func (h *CoffeeHandler) Recount(c *gin.Context) {
	counts, err := h.svc.RebuildCounts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("meta-count rebuilt", zap.Int("bag_count", counts.BagCount), zap.Int("use_count", counts.UseCount))
	c.JSON(http.StatusOK, counts)
}

// MigrateActive backfills the active flag on bags stored without one.
func (h *CoffeeHandler) MigrateActive(c *gin.Context) {
	migrated, err := h.svc.MigrateActive(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"migrated": migrated})
}

// parseSince accepts a datetime or a bare date, read as midnight UTC.
func parseSince(value string) (time.Time, error) {
	if t, err := models.ParseDateTime(value); err == nil {
		return t, nil
	}
	d, err := models.ParseDate(value)
	if err != nil || len(value) != len(models.DateLayout) {
		return time.Time{}, fmt.Errorf("%q is neither a date nor a datetime", value)
	}
	return d.Time, nil
}
