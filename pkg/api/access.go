package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused per-client limiter is kept
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// accessControl applies per-client rate limiting and IP filtering to the
// user-facing routes. Probes and metrics are never filtered.
type accessControl struct {
	rps     rate.Limit
	burst   int
	allowed []string
	denied  []string
	logger  zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

func newAccessControl(cfg Config, logger zerolog.Logger) *accessControl {
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &accessControl{
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		allowed:  cfg.AllowedIPs,
		denied:   cfg.DeniedIPs,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
	}
}

// wrap guards next with the access checks
func (a *accessControl) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if ok, reason := a.checkIP(clientIP); !ok {
			http.Error(w, reason, http.StatusForbidden)
			return
		}
		if !a.allow(clientIP) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// allow checks the client's token bucket. A zero rate disables limiting.
func (a *accessControl) allow(clientIP string) bool {
	if a.rps <= 0 {
		return true
	}

	a.mu.Lock()
	cl, exists := a.limiters[clientIP]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(a.rps, a.burst)}
		a.limiters[clientIP] = cl
	}
	cl.lastSeen = time.Now()
	a.mu.Unlock()

	if !cl.limiter.Allow() {
		a.logger.Warn().Str("client", clientIP).Msg("Rate limit exceeded")
		return false
	}
	return true
}

// checkIP applies the deny list, then the allow list when one is set
func (a *accessControl) checkIP(clientIP string) (bool, string) {
	if len(a.allowed) == 0 && len(a.denied) == 0 {
		return true, ""
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		a.logger.Warn().Str("client", clientIP).Msg("Invalid client IP")
		return false, "Invalid client IP"
	}

	// Deny takes precedence
	for _, cidr := range a.denied {
		if matchCIDR(ip, cidr) {
			a.logger.Warn().Str("client", clientIP).Str("rule", cidr).Msg("Access denied by deny rule")
			return false, "Access denied by IP filter"
		}
	}

	if len(a.allowed) > 0 {
		for _, cidr := range a.allowed {
			if matchCIDR(ip, cidr) {
				return true, ""
			}
		}
		a.logger.Warn().Str("client", clientIP).Msg("Access denied: not in allow list")
		return false, "Access denied by IP filter"
	}
	return true, ""
}

// prune drops limiters idle for longer than limiterIdle and returns how
// many were removed
func (a *accessControl) prune(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for ip, cl := range a.limiters {
		if now.Sub(cl.lastSeen) > limiterIdle {
			delete(a.limiters, ip)
			removed++
		}
	}
	return removed
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Try X-Forwarded-For first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the chain
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// matchCIDR checks if an IP matches a CIDR range or a single address
func matchCIDR(ip net.IP, cidr string) bool {
	if !strings.Contains(cidr, "/") {
		parsedIP := net.ParseIP(cidr)
		return parsedIP != nil && ip.Equal(parsedIP)
	}

	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return ipNet.Contains(ip)
}
