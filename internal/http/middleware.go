package http

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-KEY"

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

const unauthorizedMessage = "Unauthorized. Invalid X-API-KEY"

// authenticate resolves X-API-KEY to a tenant and stores it on the request
// context for logging and downstream calls.
func (s *Server) authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			owner, ok := s.keys.Resolve(req.Header.Get(APIKeyHeader))
			if !ok {
				s.metrics.recordRejected(c, "unauthorized")
				s.logger.Warn(req.Context(), "rejected request with invalid api key",
					zap.String("uri", req.RequestURI),
				)
				return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: unauthorizedMessage})
			}

			ctx := tenant.WithTenant(req.Context(), owner)
			ctx = logging.WithTenant(ctx, owner)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// rateLimit applies the per-tenant token bucket. It must run after
// authenticate.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.limiter.allow(tenantOf(c)) {
				return next(c)
			}
			s.metrics.recordRejected(c, "rate_limited")
			s.logger.Warn(c.Request().Context(), "rate limit exceeded")
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
		}
	}
}

// tenantOf returns the tenant authenticate attached to the request. An
// unauthenticated request yields "", which every downstream tenant check
// rejects.
func tenantOf(c echo.Context) string {
	owner, err := tenant.FromContext(c.Request().Context())
	if err != nil {
		return ""
	}
	return owner
}

// tenantLimiter holds one token bucket per tenant. A nil limiter allows
// everything.
type tenantLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &tenantLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *tenantLimiter) allow(owner string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[owner]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[owner] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
