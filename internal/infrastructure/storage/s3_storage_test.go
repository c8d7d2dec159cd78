package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/elyphant/backend/internal/infrastructure/config"
)

type capturedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

// fakeS3 records requests and answers every PUT with 200
func fakeS3(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestNewS3ReportStore_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ReportStore(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ReportStore(ctx, &config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("access key without secret returns error", func(t *testing.T) {
		_, err := NewS3ReportStore(ctx, &config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config", func(t *testing.T) {
		store, err := NewS3ReportStore(ctx, &config.StorageConfig{
			Bucket:       "reports",
			AccessKey:    "k",
			SecretKey:    "s",
			Endpoint:     "localhost:9000",
			UsePathStyle: true,
		}, WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "reports", store.Bucket())
	})
}

func TestS3ReportStore_PutJSON(t *testing.T) {
	server, requests := fakeS3(t)

	store, err := NewS3ReportStore(context.Background(), &config.StorageConfig{
		Bucket:       "elyphant-reports",
		Region:       "us-east-1",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		Endpoint:     server.URL,
		UsePathStyle: true,
	})
	require.NoError(t, err)

	doc := map[string]any{"run_id": "run-1", "cancelled": 2}
	err = store.PutJSON(context.Background(), "reports/duplicate-cleanup/2026-01-02/run-1.json", doc)
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/elyphant-reports/reports/duplicate-cleanup/2026-01-02/run-1.json", reqs[0].path)
	assert.Equal(t, "application/json", reqs[0].contentType)
	assert.Contains(t, reqs[0].body, `"run_id": "run-1"`)
}

func TestS3ReportStore_PutJSON_RequiresKey(t *testing.T) {
	store, err := NewS3ReportStore(context.Background(), &config.StorageConfig{
		Bucket: "b", AccessKey: "k", SecretKey: "s", Endpoint: "http://localhost:1",
	})
	require.NoError(t, err)

	err = store.PutJSON(context.Background(), "", map[string]string{})
	assert.ErrorIs(t, err, ErrKeyRequired)
}
