package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// EndpointRateLimit overrides the default limit for one path
type EndpointRateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// Key generator function - returns the caller subject from context
	KeyGenerator func(c *fiber.Ctx) string
	// PerEndpoint limits are counted separately from the default bucket
	PerEndpoint map[string]EndpointRateLimit
}

// DefaultRateLimiterConfig returns default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    1000,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			subject, ok := c.Locals(LocalSubject).(string)
			if !ok {
				return "anonymous"
			}
			return subject
		},
	}
}

// SessionRateLimits keeps the expensive endpoints below the default budget
func SessionRateLimits() map[string]EndpointRateLimit {
	return map[string]EndpointRateLimit{
		"/v1/references": {Requests: 30, Window: time.Minute},
		"/v1/webhooks":   {Requests: 20, Window: time.Minute},
	}
}

// bucket tracks rate limiting state for a key
type bucket struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter implements per-subject rate limiting
type RateLimiter struct {
	config   RateLimiterConfig
	buckets  map[string]*bucket
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Max == 0 {
		config.Max = 1000
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultRateLimiterConfig().KeyGenerator
	}

	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Stop shuts down the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// limitFor returns the bucket key, limit and window for a request
func (rl *RateLimiter) limitFor(key, path string) (string, int, time.Duration) {
	if l, ok := rl.config.PerEndpoint[path]; ok {
		return key + "|" + path, l.Requests, l.Window
	}
	return key, rl.config.Max, rl.config.Window
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" || key == "anonymous" {
			// Anonymous requests fail at auth anyway
			return c.Next()
		}

		bucketKey, limit, window := rl.limitFor(key, c.Path())
		now := time.Now()

		rl.mu.Lock()
		b, exists := rl.buckets[bucketKey]
		if !exists || now.After(b.windowEnd) {
			b = &bucket{windowEnd: now.Add(window)}
			rl.buckets[bucketKey] = b
		}
		b.count++
		b.lastAccess = now
		count := b.count
		windowEnd := b.windowEnd
		rl.mu.Unlock()

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > limit {
			c.Set("Retry-After", strconv.Itoa(int(time.Until(windowEnd).Seconds())))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

// sweep drops buckets idle for more than two default windows
func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastAccess) > 2*rl.config.Window {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}
