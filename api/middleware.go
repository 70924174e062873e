package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"

	identityKey = "identity"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = logger.NewRequestID()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger logs every request once it has been served.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
		}

		l := logger.WithContext(c.Request.Context())
		switch status := c.Writer.Status(); {
		case status >= 500:
			l.Error("request completed", fields...)
		case status >= 400:
			l.Warn("request completed", fields...)
		default:
			l.Info("request completed", fields...)
		}
	}
}

func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error("panic recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		if !c.Writer.Written() {
			fail(c, http.StatusInternalServerError, "internal server error")
		}
	})
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+HeaderUserID+", "+HeaderUserEmail+", "+HeaderUserName+", "+HeaderUserRole)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Identity trusts the caller headers set by the upstream identity provider.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		who := domain.Identity{
			UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
			Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
			Name:   strings.TrimSpace(c.GetHeader(HeaderUserName)),
			Role:   domain.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))),
		}
		if who.UserID == "" || !who.Role.Valid() {
			fail(c, http.StatusUnauthorized, "authentication required")
			return
		}

		c.Set(identityKey, who)
		c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), who.UserID))
		c.Next()
	}
}

func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := identityFrom(c)
		for _, r := range roles {
			if who.Role == r {
				c.Next()
				return
			}
		}
		fail(c, http.StatusForbidden, "your role is not allowed to perform this action")
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	v, _ := c.Get(identityKey)
	who, _ := v.(domain.Identity)
	return who
}

func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			logger.WithContext(c.Request.Context()).Warn("rate limit exceeded", "client_ip", c.ClientIP())
			c.Header("Retry-After", "1")
			fail(c, http.StatusTooManyRequests, "rate limit exceeded, retry later")
			return
		}
		c.Next()
	}
}

// PerUserRateLimit keeps one limiter per caller, refilling perMinute tokens a minute.
func PerUserRateLimit(perMinute int) gin.HandlerFunc {
	if perMinute < 1 {
		perMinute = 1
	}
	limiters := &userLimiters{
		every:    time.Minute / time.Duration(perMinute),
		burst:    perMinute,
		limiters: make(map[string]*userLimiter),
	}

	return func(c *gin.Context) {
		key := identityFrom(c).UserID
		if key == "" {
			key = c.ClientIP()
		}
		if !limiters.get(key).Allow() {
			c.Header("Retry-After", "60")
			fail(c, http.StatusTooManyRequests, "too many verification requests, retry in a minute")
			return
		}
		c.Next()
	}
}

type userLimiter struct {
	*rate.Limiter
	seen time.Time
}

type userLimiters struct {
	mu       sync.Mutex
	every    time.Duration
	burst    int
	limiters map[string]*userLimiter
	swept    time.Time
}

func (l *userLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.swept) > 10*time.Minute {
		for k, ul := range l.limiters {
			if now.Sub(ul.seen) > 10*time.Minute {
				delete(l.limiters, k)
			}
		}
		l.swept = now
	}

	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{Limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limiters[key] = ul
	}
	ul.seen = now
	return ul.Limiter
}
