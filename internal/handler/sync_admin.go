package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/model"
	"github.com/nestwork/loyalty-discount-service/internal/repository"
	"github.com/nestwork/loyalty-discount-service/internal/runstore"
	"github.com/nestwork/loyalty-discount-service/internal/service"
)

// AdminHandler exposes the operator surface: manual sync controls, run
// status, settings and the per-customer / per-product knobs. All routes are
// gated on the OPERATOR role by the router.
type AdminHandler struct {
	Engine   *service.SyncEngine
	Settings *repository.SettingsRepo
	Attrs    *repository.AttributeRepo
	Products *repository.ProductRepo
	Log      *zap.Logger
}

func NewAdminHandler(engine *service.SyncEngine, settings *repository.SettingsRepo, attrs *repository.AttributeRepo, products *repository.ProductRepo, log *zap.Logger) *AdminHandler {
	return &AdminHandler{Engine: engine, Settings: settings, Attrs: attrs, Products: products, Log: log}
}

// ----- DTOs -----

type runBatchReq struct {
	Offset    int `json:"offset"`
	BatchSize int `json:"batch_size"`
}

type overrideReq struct {
	Enabled bool    `json:"enabled"`
	Tier    *string `json:"tier,omitempty"` // optional tier to pin while overriding
}

type eligibilityReq struct {
	Enabled bool `json:"enabled"`
}

// RunBatch processes one operator-paced batch and returns its statistics.
// The caller drives pagination by advancing offset until is_complete.
func (h *AdminHandler) RunBatch(c echo.Context) error {
	var req runBatchReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	stats, err := h.Engine.RunSingleBatch(ctx, model.SyncSourceManual, req.Offset, req.BatchSize)
	if err != nil {
		if errors.Is(err, model.ErrEmptyThresholds) || errors.Is(err, model.ErrInvalidThresholds) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}
		h.Log.Error("manual batch failed", zap.Int("offset", req.Offset), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "batch failed"})
	}
	return c.JSON(http.StatusOK, stats)
}

// RunFull kicks off a full background run and returns immediately. A run
// already in progress is reported as a conflict; progress is polled via
// Status either way.
func (h *AdminHandler) RunFull(c echo.Context) error {
	go func() {
		// Detached from the request: the run outlives the HTTP call.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if _, err := h.Engine.RunFullSync(ctx, model.SyncSourceManual); err != nil && !errors.Is(err, service.ErrSyncInProgress) {
			h.Log.Error("manual full sync failed", zap.Error(err))
		}
	}()
	return c.JSON(http.StatusAccepted, echo.Map{"status": "started"})
}

// Status returns the persisted progress of the latest full run.
func (h *AdminHandler) Status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	run, err := h.Engine.Progress(ctx)
	if err != nil {
		if errors.Is(err, runstore.ErrNoProgress) {
			return c.JSON(http.StatusOK, echo.Map{"status": "never_run"})
		}
		h.Log.Error("load run progress failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "status unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"run": run, "percent": run.Percent()})
}

// GetSettings returns the current engine settings (defaults when unset).
func (h *AdminHandler) GetSettings(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Settings.Load(ctx)
	if err != nil {
		h.Log.Error("load settings failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "settings unavailable"})
	}
	return c.JSON(http.StatusOK, s)
}

// PutSettings replaces the engine settings. The threshold table is validated
// before anything is persisted; changes apply from the next sync run.
func (h *AdminHandler) PutSettings(c echo.Context) error {
	var s model.Settings
	if err := c.Bind(&s); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Settings.Save(ctx, s); err != nil {
		if errors.Is(err, model.ErrEmptyThresholds) || errors.Is(err, model.ErrInvalidThresholds) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}
		h.Log.Error("save settings failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save failed"})
	}
	s.Normalize()
	return c.JSON(http.StatusOK, s)
}

// PutOverride toggles the manual-override flag on a customer and optionally
// pins a tier at the same time. While overridden, sync runs keep refreshing
// spend but never touch the tier.
func (h *AdminHandler) PutOverride(c echo.Context) error {
	customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || customerID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid customer id"})
	}
	var req overrideReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.Enabled && req.Tier != nil {
		if err := h.Attrs.SetTier(ctx, customerID, model.ParseTier(*req.Tier), time.Now().UTC()); err != nil {
			h.Log.Error("pin tier failed", zap.Uint64("customer_id", customerID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
		}
	}
	if err := h.Attrs.SetManualOverride(ctx, customerID, req.Enabled); err != nil {
		h.Log.Error("set override failed", zap.Uint64("customer_id", customerID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	attrs, err := h.Attrs.Get(ctx, customerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reload failed"})
	}
	return c.JSON(http.StatusOK, attrs)
}

// PutEligibility stores the loyalty opt-in flag of a product. Products not
// opted in never contribute to the eligible subtotal.
func (h *AdminHandler) PutEligibility(c echo.Context) error {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || productID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	var req eligibilityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.SetEligible(ctx, productID, req.Enabled); err != nil {
		h.Log.Error("set eligibility failed", zap.Uint64("product_id", productID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"product_id": productID, "enabled": req.Enabled})
}
