package security

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CORS 中间件 仅允许白名单中的Origin，支持Credentials
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && originSet[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Idempotency-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Secure 中间件
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// KeyFunc 限流维度
type KeyFunc func(c *gin.Context) string

// ClientIPKey 默认按客户端 IP 限流
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter 令牌桶限流，每个 key 一个桶，过期条目定期清理
type Limiter struct {
	mu      sync.Mutex
	store   map[string]*visitor
	limit   rate.Limit
	burst   int
	expiry  time.Duration
	keyFunc KeyFunc
}

func NewLimiter(maxRequests int, window time.Duration, keyFunc KeyFunc) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}
	expiry := window * 3
	if expiry < time.Minute {
		expiry = time.Minute
	}
	return &Limiter{
		store:   make(map[string]*visitor),
		limit:   rate.Every(window / time.Duration(maxRequests)),
		burst:   maxRequests,
		expiry:  expiry,
		keyFunc: keyFunc,
	}
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	v, exists := l.store[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.store[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Sweep 删除超过 expiry 未活跃的条目
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.store {
		if now.Sub(v.lastSeen) > l.expiry {
			delete(l.store, key)
			removed++
		}
	}
	return removed
}

// RunSweeper 周期清理，ctx 取消后退出
func (l *Limiter) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(l.keyFunc(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimiter 限流中间件 按IP限流，ctx 结束时停止清理协程
func RateLimiter(ctx context.Context, maxRequests int, window time.Duration) gin.HandlerFunc {
	l := NewLimiter(maxRequests, window, ClientIPKey)
	go l.RunSweeper(ctx)
	return l.Middleware()
}
