package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aswatji/serverchat/internal/metrics"
)

const (
	defaultAutoBlockThreshold = 10
	defaultAutoBlockDuration  = 24 * time.Hour
	violationWindow           = time.Hour
)

// requestSeq keeps sorted-set members unique within one nanosecond.
var requestSeq atomic.Uint64

// RateLimit defines the budget of one endpoint rule.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// limitRule matches requests by method and path prefix. Rules are checked
// in order, first match wins.
type limitRule struct {
	method string
	prefix string
	limit  RateLimit
}

func (r limitRule) pattern() string {
	return r.method + " " + r.prefix
}

// defaultRules mirrors the REST surface: writes are tighter than reads and
// user creation is limited per hour.
var defaultRules = []limitRule{
	{"POST", "/api/users", RateLimit{30, time.Hour}},
	{"POST", "/api/chats", RateLimit{60, time.Minute}},
	{"POST", "/api/messages", RateLimit{120, time.Minute}},
	{"PUT", "/api/", RateLimit{60, time.Minute}},
	{"DELETE", "/api/", RateLimit{60, time.Minute}},
	{"GET", "/api/", RateLimit{300, time.Minute}},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist          []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Block IPs after repeated violations
	AutoBlockThreshold int      // Violations per hour before blocking (default 10)
	AutoBlockDuration  time.Duration
}

// RateLimiter implements a Redis sliding window limiter keyed by rule and
// client IP.
type RateLimiter struct {
	client       *redis.Client
	rules        []limitRule
	blocker      *IPBlocker
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
	cfg          RateLimiterConfig
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	if cfg.AutoBlockThreshold <= 0 {
		cfg.AutoBlockThreshold = defaultAutoBlockThreshold
	}
	if cfg.AutoBlockDuration <= 0 {
		cfg.AutoBlockDuration = defaultAutoBlockDuration
	}

	rl := &RateLimiter{
		client:       client,
		rules:        defaultRules,
		blocker:      NewIPBlocker(client),
		logger:       logger.With().Str("component", "ratelimit").Logger(),
		whitelistIPs: make(map[string]bool),
		cfg:          cfg,
	}

	for _, entry := range cfg.Whitelist {
		if !strings.Contains(entry, "/") {
			rl.whitelistIPs[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			rl.logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		rl.whitelist = append(rl.whitelist, ipNet)
	}

	if len(cfg.Whitelist) > 0 {
		rl.logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the real client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Check records a request under key and reports whether it fits in limit.
// Redis errors fail open.
func (rl *RateLimiter) Check(ctx context.Context, key string, limit RateLimit) Decision {
	now := time.Now()
	windowStart := now.Add(-limit.Window)

	var countCmd *redis.IntCmd
	var oldestCmd *redis.ZSliceCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
		countCmd = pipe.ZCard(ctx, key)
		oldestCmd = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: fmt.Sprintf("%d-%d", now.UnixNano(), requestSeq.Add(1)),
		})
		pipe.PExpire(ctx, key, limit.Window)
		return nil
	})
	if err != nil {
		rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
		return Decision{Allowed: true, Remaining: limit.Requests, ResetAt: now.Add(limit.Window)}
	}

	count := int(countCmd.Val())
	resetAt := now.Add(limit.Window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(limit.Window)
	}

	remaining := limit.Requests - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count < limit.Requests, Remaining: remaining, ResetAt: resetAt}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			writeJSONError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, pattern := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", pattern, ip)
		d := rl.Check(r.Context(), key, *limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retry := int(time.Until(d.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			rl.trackViolation(r.Context(), ip)
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()

			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("rule", pattern).
				Msg("rate limit exceeded")

			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit returns the first rule matching the request and its pattern.
func (rl *RateLimiter) findLimit(r *http.Request) (*RateLimit, string) {
	for _, rule := range rl.rules {
		if r.Method == rule.method && strings.HasPrefix(r.URL.Path, rule.prefix) {
			limit := rule.limit
			return &limit, rule.pattern()
		}
	}
	return nil, ""
}

// trackViolation counts violations per IP and blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.cfg.AutoBlockEnabled {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, violationWindow)
	}

	if count >= int64(rl.cfg.AutoBlockThreshold) {
		rl.blocker.Block(ctx, ip, rl.cfg.AutoBlockDuration, "repeated rate limit violations")
		metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
		rl.logger.Warn().
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Dur("duration", rl.cfg.AutoBlockDuration).
			Msg("IP auto-blocked for repeated violations")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// IPBlocker manages temporary IP blocks in Redis.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked checks if an IP is blocked. Redis errors count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	exists, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return exists > 0
}

// Block blocks an IP for the given duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}
