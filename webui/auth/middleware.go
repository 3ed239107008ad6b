package auth

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragmetrics/webui"
)

// Default header names.
const (
	DefaultIdentityHeader = "X-User-Email"
	DefaultTokenHeader    = "X-Metrics-Token"
)

// Config configures IdentityMiddleware.
type Config struct {
	// IdentityHeader names the header carrying the caller identity (default: X-User-Email)
	IdentityHeader string

	// AllowedIdentities restricts callers. Entries are exact identities or
	// "@domain" suffixes. Empty allows any identity.
	AllowedIdentities []string

	// TokenHeader names the header carrying the shared access token (default: X-Metrics-Token)
	TokenHeader string

	// TokenHash is the bcrypt hash of the shared access token. Empty disables the check.
	TokenHash string

	// RateLimitAttempts is failed token attempts before blocking (default: 5)
	RateLimitAttempts int

	// RateLimitWindow is the window for counting failures (default: 1m)
	RateLimitWindow time.Duration

	// RateLimitBlock is how long to block after max failures (default: 5m)
	RateLimitBlock time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		IdentityHeader:    DefaultIdentityHeader,
		TokenHeader:       DefaultTokenHeader,
		RateLimitAttempts: 5,
		RateLimitWindow:   time.Minute,
		RateLimitBlock:    5 * time.Minute,
	}
}

// IdentityMiddleware implements the platform's header-based identity
// convention for the /metrics routes:
//   - missing identity header: 401
//   - identity not in the allowlist: 403
//   - access token configured and missing or wrong: 401
//   - too many wrong tokens from one address: 429
type IdentityMiddleware struct {
	identityHeader string
	tokenHeader    string
	tokenHash      string
	allowExact     map[string]bool
	allowDomains   []string
	rateLimiter    *webui.RateLimiter
	logger         *zap.Logger
}

// NewIdentityMiddleware creates the middleware. It fails if TokenHash is set
// but is not a bcrypt hash.
func NewIdentityMiddleware(cfg Config, logger *zap.Logger) (*IdentityMiddleware, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.IdentityHeader) == "" {
		cfg.IdentityHeader = defaults.IdentityHeader
	}
	if strings.TrimSpace(cfg.TokenHeader) == "" {
		cfg.TokenHeader = defaults.TokenHeader
	}
	if cfg.RateLimitAttempts < 1 {
		cfg.RateLimitAttempts = defaults.RateLimitAttempts
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaults.RateLimitWindow
	}
	if cfg.RateLimitBlock <= 0 {
		cfg.RateLimitBlock = defaults.RateLimitBlock
	}
	if cfg.TokenHash != "" && !IsValidHash(cfg.TokenHash) {
		return nil, fmt.Errorf("access token hash: %w", ErrInvalidHash)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &IdentityMiddleware{
		identityHeader: cfg.IdentityHeader,
		tokenHeader:    cfg.TokenHeader,
		tokenHash:      cfg.TokenHash,
		allowExact:     make(map[string]bool),
		rateLimiter:    webui.NewRateLimiter(cfg.RateLimitAttempts, cfg.RateLimitWindow, cfg.RateLimitBlock),
		logger:         logger,
	}
	for _, entry := range cfg.AllowedIdentities {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.HasPrefix(entry, "@"):
			m.allowDomains = append(m.allowDomains, entry)
		default:
			m.allowExact[entry] = true
		}
	}
	return m, nil
}

// Middleware returns a handler that identifies the caller before calling next.
func (m *IdentityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := strings.TrimSpace(r.Header.Get(m.identityHeader))
		if identity == "" {
			m.logger.Debug("missing identity header",
				zap.String("path", r.URL.Path),
				zap.String("ip", webui.ClientIP(r)),
			)
			webui.WriteError(w, http.StatusUnauthorized, m.identityHeader+" header required")
			return
		}

		if !m.Allowed(identity) {
			m.logger.Warn("identity not allowed",
				zap.String("path", r.URL.Path),
				zap.String("identity", identity),
			)
			webui.WriteError(w, http.StatusForbidden, "identity not allowed")
			return
		}

		if m.tokenHash != "" && !m.checkToken(w, r) {
			return
		}

		next.ServeHTTP(w, r.WithContext(webui.WithIdentity(r.Context(), identity)))
	})
}

// checkToken verifies the access token header and writes the error response
// when it fails.
func (m *IdentityMiddleware) checkToken(w http.ResponseWriter, r *http.Request) bool {
	ip := webui.ClientIP(r)

	if allowed, remaining := m.rateLimiter.Allow(ip); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
		webui.WriteError(w, http.StatusTooManyRequests, "too many failed token attempts")
		return false
	}

	if err := VerifyToken(r.Header.Get(m.tokenHeader), m.tokenHash); err != nil {
		m.rateLimiter.RecordFailure(ip)
		m.logger.Warn("access token rejected",
			zap.String("path", r.URL.Path),
			zap.String("ip", ip),
			zap.Error(err),
		)
		webui.WriteError(w, http.StatusUnauthorized, "invalid access token")
		return false
	}

	m.rateLimiter.Reset(ip)
	return true
}

// Allowed reports whether identity passes the allowlist.
func (m *IdentityMiddleware) Allowed(identity string) bool {
	if len(m.allowExact) == 0 && len(m.allowDomains) == 0 {
		return true
	}

	identity = strings.ToLower(identity)
	if m.allowExact[identity] {
		return true
	}
	for _, domain := range m.allowDomains {
		if strings.HasSuffix(identity, domain) {
			return true
		}
	}
	return false
}

// RateLimiter exposes the failed-token limiter so its cleanup ticker can be started.
func (m *IdentityMiddleware) RateLimiter() *webui.RateLimiter {
	return m.rateLimiter
}

var _ webui.AuthProvider = (*IdentityMiddleware)(nil)
