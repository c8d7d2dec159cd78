package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/elyphant/backend/internal/infrastructure/auth"
)

func newTracedRouter(recorder *tracetest.SpanRecorder) *gin.Engine {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	router := gin.New()
	router.Use(RequestID())
	router.Use(otelgin.Middleware("elyphant-test", otelgin.WithTracerProvider(tp)))
	router.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-User") != "" {
			c.Set(PrincipalKey, &auth.Principal{UserID: uuid.MustParse(c.GetHeader("X-Test-User")), IsAdmin: true})
		}
		c.Next()
	})
	router.Use(SpanAttributes())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	return router
}

func TestSpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	router := newTracedRouter(recorder)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-77")
	req.Header.Set("X-Test-User", userID.String())
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String("request_id", "req-77"))
	assert.Contains(t, attrs, attribute.String("enduser.id", userID.String()))
	assert.Contains(t, attrs, attribute.Bool("enduser.admin", true))
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanAttributes_MarksServerErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	router := newTracedRouter(recorder)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTracing_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(Tracing("elyphant-test", false))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
