package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fintick/tradesim/pkg/response"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// SessionValidator resolves a bearer token to the session it names.
// Implemented by the auth service; kept as an interface so the middleware
// package stays free of internal imports.
type SessionValidator interface {
	ValidateSessionToken(token string) (userID uint, sessionID string, err error)
}

// SessionAuth gates a route group on a valid session. The token is taken
// from the Authorization header or, failing that, the session cookie. On
// success the user and session ids are placed in the request context.
func SessionAuth(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie("session"); err == nil {
				token = cookie
			}
		}

		if token == "" {
			response.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		userID, sessionID, err := validator.ValidateSessionToken(token)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired session")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("session_id", sessionID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex

	// Configure limits per endpoint type
	authLimit  = rate.Limit(10.0 / 60.0)  // 10 requests per minute
	tradeLimit = rate.Limit(60.0 / 60.0)  // 60 requests per minute
	readLimit  = rate.Limit(600.0 / 60.0) // 600 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientKey string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientKey + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/buy"), strings.HasPrefix(path, "/api/v1/sell"):
			limit = tradeLimit
		case strings.HasPrefix(path, "/api/v1"):
			limit = readLimit
		default:
			limit = rate.Inf
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 5),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

// RateLimit applies per-client request limits keyed on the client IP.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := getLimiter(c.FullPath(), c.ClientIP())
		if !limiter.Allow() {
			response.Apology(c, http.StatusTooManyRequests, response.ErrCodeInternalError, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}
