package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps is everything NewRouter wires together.
type RouterDeps struct {
	Service Service
	Logger  *slog.Logger
	// Limiter throttles the unauthenticated /auth routes per IP. Nil disables it.
	Limiter *IPRateLimiter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter returns the identity HTTP API.
//
//	POST /auth/register
//	POST /auth/login
//	POST /auth/otp
//	POST /auth/refresh
//	POST /auth/logout          (bearer)
//	GET  /auth/me              (bearer)
//	POST /auth/authorize       (bearer)
//	GET  /auth/modules/{module} (bearer)
//	GET  /healthz
//	GET  /metrics
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: deps.Service, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(clientIPContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(deps.Limiter.Middleware)
			}
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/otp", h.issueOTP)
			r.Post("/refresh", h.refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(deps.Service))
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.Post("/authorize", h.authorize)
			r.Get("/modules/{module}", h.module)
		})
	})

	return r
}

// clientIPContext records the caller address for audit events.
func clientIPContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goIdentity.WithClientIP(r.Context(), clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerFrom(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(v[len(prefix):])
	return token, token != ""
}
