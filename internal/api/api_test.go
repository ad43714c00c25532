package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"digital_rf/pkg/digitalrf"
	"digital_rf/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T, opts ...digitalrf.Option) (*gin.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := digitalrf.NewWriter(filepath.Join(dir, "site", "ch0"), digitalrf.DefaultProperties(100, 1), 100)
	require.NoError(t, err)
	require.NoError(t, w.Write(make([]byte, 4*50)))
	require.NoError(t, w.Close())

	pkg, err := digitalrf.Load(context.Background(), opts...)
	require.NoError(t, err)
	return SetupRouter(NewHandler(pkg, dir)), dir
}

func get(t *testing.T, r http.Handler, url string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	var body map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func TestStatusEndpoints(t *testing.T) {
	r, _ := setup(t)

	code, body := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = get(t, r, "/api/v1/version")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, digitalrf.Version, body["version"])

	code, body = get(t, r, "/api/v1/capabilities")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["capabilities"], digitalrf.ModuleMirror)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestHealthChecks(t *testing.T) {
	dir := t.TempDir()
	pkg, err := digitalrf.Load(context.Background())
	require.NoError(t, err)
	h := NewHandler(pkg, dir)
	h.AddCheck("redis", func(context.Context) error { return nil })
	r := SetupRouter(h)

	code, _ := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	h.AddCheck("minio", func(context.Context) error { return fmt.Errorf("connection refused") })
	code, body := get(t, r, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]interface{}{"minio": "connection refused"}, body["checks"])
}

func TestRateLimit(t *testing.T) {
	pkg, err := digitalrf.Load(context.Background())
	require.NoError(t, err)
	h := NewHandler(pkg, t.TempDir())
	h.SetRateLimiter(ratelimiter.NewTokenBucket(0, 2))
	r := SetupRouter(h)

	code, _ := get(t, r, "/api/v1/version")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, r, "/api/v1/version")
	assert.Equal(t, http.StatusOK, code)
	code, body := get(t, r, "/api/v1/version")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.NotEmpty(t, body["error"])

	// 存活探测不受限流影响
	code, _ = get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, code)
}

func TestChannelEndpoints(t *testing.T) {
	r, _ := setup(t)

	code, body := get(t, r, "/api/v1/channels")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"site/ch0"}, body["channels"])

	code, body = get(t, r, "/api/v1/channels/bounds?channel=site/ch0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(100), body["first"])
	assert.Equal(t, float64(149), body["last"])
	assert.Equal(t, "1970-01-01T00:00:01Z", body["first_time"])

	code, body = get(t, r, "/api/v1/channels/properties?channel=site/ch0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "int16", body["dtype"])

	code, _ = get(t, r, "/api/v1/channels/bounds?channel=nope")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, r, "/api/v1/channels/bounds")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, r, "/api/v1/channels/bounds?channel=../etc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestChannelBlocks(t *testing.T) {
	r, _ := setup(t)

	code, body := get(t, r, "/api/v1/channels/blocks?channel=site/ch0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"start": float64(100), "len": float64(50)},
	}, body["blocks"])

	code, body = get(t, r, "/api/v1/channels/blocks?channel=site/ch0&start=1970-01-01T00:00:01.2Z&end=1970-01-01T00:00:01.3Z")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(120), body["start"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"start": float64(120), "len": float64(10)},
	}, body["blocks"])

	// 早于纪元的起始时间从样本 0 开始
	code, body = get(t, r, "/api/v1/channels/blocks?channel=site/ch0&start=1960-01-01T00:00:00Z")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["start"])

	code, _ = get(t, r, "/api/v1/channels/blocks?channel=site/ch0&start=yesterday")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFilesEndpoint(t *testing.T) {
	r, _ := setup(t)

	code, body := get(t, r, "/api/v1/files")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["files"], 2)

	code, body = get(t, r, "/api/v1/files?kind=drf")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["files"], 1)

	code, _ = get(t, r, "/api/v1/files?kind=hdf5")
	assert.Equal(t, http.StatusBadRequest, code)

	r, _ = setup(t, digitalrf.WithProbe(digitalrf.ModuleWatchdog, func(context.Context) error {
		return fmt.Errorf("no inotify: %w", digitalrf.ErrUnavailable)
	}))
	code, _ = get(t, r, "/api/v1/files")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
