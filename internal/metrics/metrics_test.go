package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/retry"
)

func TestObservePublishOutcomes(t *testing.T) {
	r := New()
	ctx := context.Background()

	r.ObservePublish(ctx, publish.Event{Platform: publish.Facebook, Strategy: publish.StrategyAlbum,
		Result: publish.PublishResult{Success: true, PostID: "1"}, Duration: 2 * time.Second})
	r.ObservePublish(ctx, publish.Event{Platform: publish.Facebook, Strategy: publish.StrategyAlbum,
		Result: publish.PublishResult{Success: true, PostID: "2"}, Duration: time.Second})
	r.ObservePublish(ctx, publish.Event{Platform: publish.Twitter,
		Result: publish.PublishResult{Error: publish.Validationf("too long")}})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.publishes.WithLabelValues("facebook", "album", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishes.WithLabelValues("twitter", "none", "validation")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestRetryHook(t *testing.T) {
	r := New()
	r.RetryHook(retry.Attempt{Op: "create tweet", Limited: true})
	r.RetryHook(retry.Attempt{Op: "create tweet"})
	r.RetryHook(retry.Attempt{Op: "create tweet"})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("create tweet", "rate_limit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.retries.WithLabelValues("create tweet", "transient")))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New()
	router := gin.New()
	router.Use(r.GinMiddleware())
	router.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(r.Handler()))

	for range 3 {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.requests.WithLabelValues("GET", "/api/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `socpost_http_requests_total{method="GET",route="/api/health",status="200"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}
