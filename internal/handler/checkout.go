package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/middleware"
	"github.com/nestwork/loyalty-discount-service/internal/model"
	"github.com/nestwork/loyalty-discount-service/internal/service"
)

// CheckoutHandler prices submitted carts. The cart state lives entirely in
// the request; each call builds a fresh cart and a fresh pricing pass, so
// nothing can leak between customers.
type CheckoutHandler struct {
	Engine *service.DiscountEngine
	Log    *zap.Logger
}

func NewCheckoutHandler(engine *service.DiscountEngine, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{Engine: engine, Log: log}
}

// ----- DTOs -----

type quoteReq struct {
	Items   []model.LineItem `json:"items"`
	Coupons []string         `json:"coupons"`
}

type quoteResp struct {
	Subtotal       decimal.Decimal        `json:"subtotal"`
	Total          decimal.Decimal        `json:"total"`
	Fees           []model.Fee            `json:"fees"`
	Coupons        []string               `json:"coupons"`
	RemovedCoupons []string               `json:"removed_coupons,omitempty"`
	Notices        []model.Notice         `json:"notices,omitempty"`
	Discount       *model.DiscountContext `json:"discount,omitempty"`
}

type couponReq struct {
	Items []model.LineItem `json:"items"`
	Code  string           `json:"code"`
}

// requestCart adapts a submitted cart to the discount engine's collaborator
// interface. Recalculate re-runs the engine on the same pass, which is the
// call path the re-entrancy guard exists for.
type requestCart struct {
	customerID uint64
	items      []model.LineItem
	coupons    []string
	fees       []model.Fee
	notices    []model.Notice
	removed    []string
	recalc     func(*requestCart)
}

func (c *requestCart) CustomerID() uint64          { return c.customerID }
func (c *requestCart) LineItems() []model.LineItem { return c.items }
func (c *requestCart) AddFee(fee model.Fee)        { c.fees = append(c.fees, fee) }
func (c *requestCart) ClearFees()                  { c.fees = c.fees[:0] }
func (c *requestCart) AppliedCoupons() []string    { return append([]string(nil), c.coupons...) }
func (c *requestCart) AddNotice(n model.Notice)    { c.notices = append(c.notices, n) }

func (c *requestCart) RemoveCoupon(code string) {
	kept := c.coupons[:0]
	for _, applied := range c.coupons {
		if applied == code {
			c.removed = append(c.removed, code)
			continue
		}
		kept = append(kept, applied)
	}
	c.coupons = kept
}

func (c *requestCart) Recalculate() {
	if c.recalc != nil {
		c.recalc(c)
	}
}

// Quote prices the submitted cart: applies the loyalty discount when the
// customer holds a tier, strips coupons that conflict with it, and returns
// the resulting fee lines and totals.
func (h *CheckoutHandler) Quote(c echo.Context) error {
	var req quoteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart := &requestCart{
		customerID: middleware.CurrentUserID(c),
		items:      req.Items,
		coupons:    append([]string(nil), req.Coupons...),
	}
	pass := service.NewPass()
	cart.recalc = func(rc *requestCart) { h.Engine.ApplyDiscount(ctx, pass, rc) }

	h.Engine.ApplyDiscount(ctx, pass, cart)

	subtotal := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			continue
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	total := subtotal
	for _, fee := range cart.fees {
		total = total.Add(fee.Amount)
	}

	return c.JSON(http.StatusOK, quoteResp{
		Subtotal:       subtotal,
		Total:          total,
		Fees:           cart.fees,
		Coupons:        cart.coupons,
		RemovedCoupons: cart.removed,
		Notices:        cart.notices,
		Discount:       pass.Context,
	})
}

// ApplyCoupon checks whether a coupon may be applied to the submitted cart.
// It never applies anything server-side; it answers the exclusion question
// the storefront must ask before accepting the code.
func (h *CheckoutHandler) ApplyCoupon(c echo.Context) error {
	var req couponReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "coupon code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	cart := &requestCart{customerID: middleware.CurrentUserID(c), items: req.Items}
	pass := service.NewPass()

	ok, notice, err := h.Engine.ValidateCoupon(ctx, pass, cart)
	if err != nil {
		h.Log.Error("coupon validation failed", zap.Uint64("customer_id", cart.customerID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{"accepted": false, "notice": notice})
	}
	return c.JSON(http.StatusOK, echo.Map{"accepted": true, "code": req.Code})
}
