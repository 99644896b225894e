package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimitKeysOnClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit())
	router.POST("/api/v1/auth/limited", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(ip string) int {
		req := httptest.NewRequest("POST", "/api/v1/auth/limited", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	// Auth routes allow a burst of 5; the 6th request gets limited
	var last int
	for i := 0; i < 6; i++ {
		last = do("10.0.0.1")
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", last)
	}

	// A different client IP has its own bucket
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("expected fresh client to pass, got %d", code)
	}
}
