package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/elyphant/backend/docs"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/interfaces/http/handler"
	"github.com/elyphant/backend/internal/interfaces/http/middleware"
)

// Handlers are the endpoint handlers mounted by New
type Handlers struct {
	Functions *handler.FunctionsHandler
	Webhook   *handler.WebhookHandler
	Orders    *handler.OrderHandler
	Wishlists *handler.WishlistHandler
	Health    *handler.HealthHandler
	// StatusSync is optional; nil when the status sync worker pool is disabled
	StatusSync *handler.StatusSyncHandler
}

// Options configures the middleware chain
type Options struct {
	ServiceName       string
	FunctionsBasePath string
	TrustedProxies    []string
	Verifier          middleware.TokenVerifier
	CORS              middleware.CORSConfig
	MaxBodySize       int64
	// RateLimiter is optional; nil disables rate limiting
	RateLimiter *middleware.RateLimiter
	// Metrics is optional; nil disables the Prometheus middleware and /metrics
	Metrics          *middleware.HTTPMetrics
	TracingEnabled   bool
	ProfilingEnabled bool
}

// New builds the engine. Middleware runs in this order:
//  1. Recovery and RequestID
//  2. Tracing, request logging, security headers
//  3. Prometheus metrics and profiling labels
//  4. per group: CORS, body limit, authentication, rate limit, span attributes
func New(opts Options, h Handlers, log *zap.Logger) *gin.Engine {
	engine := gin.New()
	if len(opts.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}
	if opts.FunctionsBasePath == "" {
		opts.FunctionsBasePath = "/functions/v1"
	}

	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(opts.ServiceName, opts.TracingEnabled))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	if opts.Metrics != nil {
		engine.Use(opts.Metrics.Middleware())
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	engine.Use(middleware.Profiling(opts.ProfilingEnabled))

	engine.GET("/health", h.Health.Check)

	// Swagger documentation endpoint
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authenticated := []gin.HandlerFunc{middleware.Authenticate(opts.Verifier)}
	if opts.RateLimiter != nil {
		authenticated = append(authenticated, middleware.RateLimit(opts.RateLimiter))
	}
	authenticated = append(authenticated, middleware.SpanAttributes())

	// Stripe calls the webhook without a bearer token; the signature authenticates it
	webhook := NewDomainGroup("webhook", "")
	if opts.RateLimiter != nil {
		webhook.Use(middleware.RateLimit(opts.RateLimiter))
	}
	webhook.POST("/stripe-webhook", h.Webhook.HandleStripeWebhook)

	functions := NewDomainGroup("functions", "").Use(authenticated...)
	functions.POST("/order-duplicate-cleanup", middleware.RequireAdmin(), h.Functions.RunCleanup)
	functions.POST("/verify-payment", h.Functions.VerifyPayment)
	functions.POST("/check-order-status", h.Functions.CheckOrderStatus)
	if h.StatusSync != nil {
		functions.GET("/status-sync-jobs", middleware.RequireAdmin(), h.StatusSync.ListJobs)
	}

	fn := NewRouter(engine, WithBasePath(opts.FunctionsBasePath)).
		Use(middleware.CORS(opts.CORS), middleware.BodyLimit(opts.MaxBodySize)).
		Register(webhook).
		Register(functions).
		Setup()
	// preflight requests never reach a handler; CORS answers them
	fn.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	orders := NewDomainGroup("orders", "/orders")
	orders.GET("/:id", h.Orders.GetByID)

	wishlists := NewDomainGroup("wishlists", "/wishlists")
	wishlists.GET("", h.Wishlists.List)
	wishlists.POST("", h.Wishlists.Create)
	wishlists.GET("/:id", h.Wishlists.Get)
	items := wishlists.Group("items", "/:id/items")
	items.POST("", h.Wishlists.AddItem)
	items.GET("/:itemId", h.Wishlists.GetItem)
	items.DELETE("/:itemId", h.Wishlists.RemoveItem)

	NewRouter(engine).
		Use(middleware.BodyLimit(opts.MaxBodySize)).
		Use(authenticated...).
		Register(orders).
		Register(wishlists).
		Setup()

	return engine
}
