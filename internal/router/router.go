package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/nestwork/loyalty-discount-service/internal/handler"    // import the handlers that implement business logic
	"github.com/nestwork/loyalty-discount-service/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems use this to verify liveness.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication routes and the authenticated
// /v1/me endpoint. Unauthenticated operations live under /v1/auth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("OPERATOR", "CUSTOMER"))
	auth.GET("/me", a.Me)
}

// RegisterAdmin registers the operator surface under /v1/admin: manual sync
// controls, run status, settings and the per-customer / per-product knobs.
// Every route requires a valid access token carrying the OPERATOR role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("OPERATOR"))

	// One operator-paced batch; the caller advances offset until is_complete.
	g.POST("/sync/batch", h.RunBatch)
	// Full background run over the whole population, single-flight.
	g.POST("/sync/run", h.RunFull)
	// Pollable progress of the latest full run.
	g.GET("/sync/status", h.Status)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.PutSettings)

	g.PUT("/customers/:id/override", h.PutOverride)
	g.PUT("/products/:id/eligibility", h.PutEligibility)
}

// RegisterCheckout registers the cart-pricing endpoints and the customer's
// own loyalty view. Both roles may call these: operators place test orders.
func RegisterCheckout(e *echo.Echo, checkout *handler.CheckoutHandler, customer *handler.CustomerHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("OPERATOR", "CUSTOMER"))

	g.POST("/checkout/quote", checkout.Quote)
	g.POST("/checkout/coupon", checkout.ApplyCoupon)
	g.GET("/me/tier", customer.MyTier)
}
