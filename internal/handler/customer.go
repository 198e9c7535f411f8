package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/middleware"
	"github.com/nestwork/loyalty-discount-service/internal/model"
	"github.com/nestwork/loyalty-discount-service/internal/repository"
)

// CustomerHandler serves the customer-facing loyalty view.
type CustomerHandler struct {
	Attrs    *repository.AttributeRepo
	Settings *repository.SettingsRepo
	Log      *zap.Logger
}

func NewCustomerHandler(attrs *repository.AttributeRepo, settings *repository.SettingsRepo, log *zap.Logger) *CustomerHandler {
	return &CustomerHandler{Attrs: attrs, Settings: settings, Log: log}
}

type myTierResp struct {
	Tier            string          `json:"tier"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	YearlySpend     decimal.Decimal `json:"yearly_spend"`
	LifetimeSpend   decimal.Decimal `json:"lifetime_spend"`
	LastSyncedAt    *time.Time      `json:"last_synced_at,omitempty"`
}

// MyTier returns the caller's tier and spend figures. A customer who was
// never synced reads as tier None with zero spend.
func (h *CustomerHandler) MyTier(c echo.Context) error {
	uid := middleware.CurrentUserID(c)
	if uid == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := myTierResp{
		Tier:            model.TierNone.String(),
		DiscountPercent: decimal.Zero,
		YearlySpend:     decimal.Zero,
		LifetimeSpend:   decimal.Zero,
	}

	attrs, err := h.Attrs.Get(ctx, uid)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusOK, resp)
	case err != nil:
		h.Log.Error("load customer attributes failed", zap.Uint64("customer_id", uid), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}

	settings, err := h.Settings.Load(ctx)
	if err != nil {
		h.Log.Error("load settings failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}

	resp.Tier = attrs.Tier.String()
	resp.DiscountPercent = settings.Thresholds.DiscountPercentFor(attrs.Tier)
	resp.YearlySpend = attrs.YearlySpend
	resp.LifetimeSpend = attrs.LifetimeSpend
	resp.LastSyncedAt = attrs.LastSyncedAt
	return c.JSON(http.StatusOK, resp)
}
