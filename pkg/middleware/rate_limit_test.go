package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2)) // generous rate
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))

	// two quick requests should pass
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/ok", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusOK, w2.Code)
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	// very low rate to force rejections
	r.Use(RateLimitMiddleware(2, 1))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	rq1 := httptest.NewRequest("GET", "/ws", nil)
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, rq1)
	require.Equal(t, http.StatusOK, w1.Code)

	// immediate second request -> should be rate-limited
	rejected := testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory"))
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	require.Equal(t, "1", w2.Header().Get("Retry-After"))
	require.Equal(t, rejected+1, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory")))

	// a token is back after 0.5s
	time.Sleep(600 * time.Millisecond)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, http.StatusOK, w3.Code)
}

func TestRateLimitMiddleware_KeysByClientIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(addr string) int {
		req := httptest.NewRequest("GET", "/ws", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	require.Equal(t, http.StatusOK, do("10.0.0.1:5000"))
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5001"))
	require.Equal(t, http.StatusOK, do("10.0.0.2:5000"))
}

func TestRateLimitMiddleware_InstancesDoNotShareBuckets(t *testing.T) {
	a := gin.New()
	a.Use(RateLimitMiddleware(0.5, 1))
	a.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	b := gin.New()
	b.Use(RateLimitMiddleware(0.5, 1))
	b.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	a.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, http.StatusOK, w.Code)
	w = httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
