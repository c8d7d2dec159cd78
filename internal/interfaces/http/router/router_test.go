package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/application/reconciliation"
	"github.com/elyphant/backend/internal/application/wishlist"
	"github.com/elyphant/backend/internal/infrastructure/auth"
	"github.com/elyphant/backend/internal/infrastructure/config"
	"github.com/elyphant/backend/internal/infrastructure/scheduler"
	"github.com/elyphant/backend/internal/interfaces/http/handler"
	"github.com/elyphant/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

const testSecret = "router-test-secret-with-at-least-32-characters"

type stubServices struct{}

func (stubServices) Run(context.Context, reconciliation.CleanupRequest) (*reconciliation.CleanupReport, error) {
	return &reconciliation.CleanupReport{RunID: uuid.New(), Mode: reconciliation.ModeReport}, nil
}

func (stubServices) VerifyPayment(context.Context, reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error) {
	return &reconciliation.VerifyResult{StripeStatus: "complete"}, nil
}

func (stubServices) VerifyWithRetry(ctx context.Context, req reconciliation.VerifyRequest) (*reconciliation.VerifyResult, error) {
	return stubServices{}.VerifyPayment(ctx, req)
}

func (stubServices) CheckOrderStatus(_ context.Context, id uuid.UUID, _ *reconciliation.Caller) (*reconciliation.StatusResult, error) {
	return &reconciliation.StatusResult{OrderID: id}, nil
}

func (stubServices) ProcessWebhook(context.Context, []byte, string) (*reconciliation.WebhookResult, error) {
	return &reconciliation.WebhookResult{Outcome: "ignored"}, nil
}

func (stubServices) GetOrder(_ context.Context, id uuid.UUID, _ *reconciliation.Caller) (*reconciliation.OrderView, error) {
	return &reconciliation.OrderView{ID: id}, nil
}

func (stubServices) Create(_ context.Context, userID uuid.UUID, in wishlist.CreateWishlistInput) (*wishlist.WishlistResponse, error) {
	return &wishlist.WishlistResponse{ID: uuid.New(), UserID: userID, Title: in.Title}, nil
}

func (stubServices) List(context.Context, uuid.UUID) ([]wishlist.WishlistResponse, error) {
	return []wishlist.WishlistResponse{}, nil
}

func (stubServices) Get(_ context.Context, userID, id uuid.UUID) (*wishlist.WishlistResponse, error) {
	return &wishlist.WishlistResponse{ID: id, UserID: userID}, nil
}

func (stubServices) AddItem(_ context.Context, _, id uuid.UUID, in wishlist.AddItemInput) (*wishlist.ItemResponse, error) {
	return &wishlist.ItemResponse{ID: uuid.New(), WishlistID: id, Title: in.Title, Price: in.Price}, nil
}

func (stubServices) GetItem(_ context.Context, _, id, itemID uuid.UUID) (*wishlist.ItemResponse, error) {
	return &wishlist.ItemResponse{ID: itemID, WishlistID: id}, nil
}

func (stubServices) RemoveItem(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return nil
}

func (stubServices) Ping(context.Context) error { return nil }

func (stubServices) GetJobHistory(int) []*scheduler.StatusSyncJob { return nil }

func (stubServices) GetJobHistoryByOrder(uuid.UUID, int) []*scheduler.StatusSyncJob { return nil }

func (stubServices) QueuedCount() int { return 0 }

type fixture struct {
	engine   *gin.Engine
	verifier *auth.Verifier
	metrics  *middleware.HTTPMetrics
}

func newFixture(t *testing.T, limiter *middleware.RateLimiter) *fixture {
	t.Helper()
	s := stubServices{}
	verifier := auth.NewVerifier(config.JWTConfig{Secret: testSecret, AdminRole: "admin"})
	metrics := middleware.NewHTTPMetrics("elyphant")
	engine := New(Options{
		ServiceName: "elyphant-test",
		Verifier:    verifier,
		CORS:        middleware.DefaultCORSConfig(),
		MaxBodySize: 1 << 20,
		RateLimiter: limiter,
		Metrics:     metrics,
	}, Handlers{
		Functions:  handler.NewFunctionsHandler(s, s, s),
		Webhook:    handler.NewWebhookHandler(s),
		Orders:     handler.NewOrderHandler(s),
		Wishlists:  handler.NewWishlistHandler(s),
		Health:     handler.NewHealthHandler(s),
		StatusSync: handler.NewStatusSyncHandler(s),
	}, zap.NewNop())
	return &fixture{engine: engine, verifier: verifier, metrics: metrics}
}

func (f *fixture) token(t *testing.T, admin bool) string {
	t.Helper()
	token, err := f.verifier.Sign(f.verifier.NewClaims(uuid.New(), "user@example.com", admin, time.Hour))
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *fixture) do(method, path, authorization, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestNew_PublicEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "elyphant_http_requests_total")
}

func TestNew_SwaggerDocs(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"title": "Elyphant Backend API"`)
	for _, path := range []string{
		"/functions/v1/order-duplicate-cleanup",
		"/functions/v1/verify-payment",
		"/functions/v1/check-order-status",
		"/functions/v1/stripe-webhook",
		"/api/v1/wishlists/{id}/items",
	} {
		assert.Contains(t, body, `"`+path+`"`)
	}

	w = f.do(http.MethodGet, "/swagger/index.html", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
}

func TestNew_FunctionsPreflight(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/verify-payment", nil)
	req.Header.Set("Origin", "https://elyphant.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "x-client-info")
}

func TestNew_FunctionsAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	user, admin := f.token(t, false), f.token(t, true)
	cleanup := `{"mode":"report"}`

	tests := []struct {
		name          string
		path          string
		authorization string
		body          string
		wantStatus    int
	}{
		{"verify without token", "/functions/v1/verify-payment", "", `{"sessionId":"cs_1"}`, http.StatusUnauthorized},
		{"verify as user", "/functions/v1/verify-payment", user, `{"sessionId":"cs_1"}`, http.StatusOK},
		{"status as user", "/functions/v1/check-order-status?orderId=" + uuid.NewString(), user, "", http.StatusOK},
		{"cleanup as user", "/functions/v1/order-duplicate-cleanup", user, cleanup, http.StatusForbidden},
		{"cleanup as admin", "/functions/v1/order-duplicate-cleanup", admin, cleanup, http.StatusOK},
		{"webhook needs no bearer", "/functions/v1/stripe-webhook", "", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tt.path, tt.authorization, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestNew_StatusSyncJobsRequireAdmin(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/functions/v1/status-sync-jobs", "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/functions/v1/status-sync-jobs", f.token(t, false), "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/functions/v1/status-sync-jobs", f.token(t, true), "").Code)
}

func TestNew_StatusSyncJobsAbsentWhenDisabled(t *testing.T) {
	s := stubServices{}
	engine := New(Options{Verifier: auth.NewVerifier(config.JWTConfig{Secret: testSecret, AdminRole: "admin"})}, Handlers{
		Functions: handler.NewFunctionsHandler(s, s, s),
		Webhook:   handler.NewWebhookHandler(s),
		Orders:    handler.NewOrderHandler(s),
		Wishlists: handler.NewWishlistHandler(s),
		Health:    handler.NewHealthHandler(s),
	}, zap.NewNop())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/functions/v1/status-sync-jobs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNew_APIRoutes(t *testing.T) {
	f := newFixture(t, nil)
	user := f.token(t, false)
	wishlistID := uuid.NewString()

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/wishlists", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/wishlists", user, "").Code)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/wishlists", user, `{"title":"Gifts"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/wishlists/"+wishlistID, user, "").Code)
	assert.Equal(t, http.StatusCreated,
		f.do(http.MethodPost, "/api/v1/wishlists/"+wishlistID+"/items", user, `{"title":"Mug","price":"9.99"}`).Code)
	assert.Equal(t, http.StatusNoContent,
		f.do(http.MethodDelete, "/api/v1/wishlists/"+wishlistID+"/items/"+uuid.NewString(), user, "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), user, "").Code)
}

func TestNew_RateLimit(t *testing.T) {
	f := newFixture(t, middleware.NewRateLimiter(0.001, 1))
	user := f.token(t, false)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/wishlists", user, "").Code)
	w := f.do(http.MethodGet, "/api/v1/wishlists", user, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("wishlists", "/wishlists")
		assert.Equal(t, "wishlists", g.Name())
		assert.Equal(t, "/wishlists", g.Prefix())
	})

	t.Run("mounts routes, subgroups and middleware", func(t *testing.T) {
		engine := gin.New()
		var seen []string
		g := NewDomainGroup("test", "/test").Use(func(c *gin.Context) {
			seen = append(seen, c.FullPath())
			c.Next()
		})
		g.GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "items") })
		g.Group("nested", "/nested").DELETE("/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		NewRouter(engine, WithBasePath("/api/v2")).Register(g).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/items", nil))
		assert.Equal(t, "items", w.Body.String())

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v2/test/nested/7", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)

		assert.Equal(t, []string{"/api/v2/test/items", "/api/v2/test/nested/:id"}, seen)
	})
}
