package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/sessions/api/sessions" // Swagger docs
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// GuardedPrefixes are the paths whose bearer tokens are checked against
// the revocation store before any handler runs.
var GuardedPrefixes = []string{"/sessions", "/keys", "/auth/logout/all", "/api/"}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	issuer       *jwtx.Issuer
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Gateway     *service.Gateway
	Revocations *service.RevocationStore

	// Database and Cache back /readyz; Cache may be nil.
	Database Pinger
	Cache    Pinger

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// Keys serves the staff key routes when set. It is nil when signing
	// keys are not persisted.
	Keys *service.KeyRotationService

	// Limits sets the per-route rate limit tiers. Read by ApplyRoutes.
	Limits httpx.RateProfiles
}

func NewRouter(issuer *jwtx.Issuer, buildVersion string, gw *service.Gateway, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Gateway:      gw,
		Revocations:  gw.Revocations,
		Database:     gw.Store,
		Limits:       httpx.DefaultRateProfiles(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.RevocationGuard(issuer, r.Revocations, GuardedPrefixes...),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSessions()
	r.registerKeys()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Sessions Service API
//	@version		0.1.0
//	@description	Session and token lifecycle service: login, refresh, logout and per-device session management.
//	@description
//	@description				Access and refresh tokens are JWTs verifiable with the JWKS endpoint.
//	@description				At most one session is active per user and client type.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/sessions
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limit builds a limiter for one route. Rejections are counted per route.
func (r *Router) limit(route string, p httpx.RateProfile, key httpx.KeyFunc) httpx.Middleware {
	return httpx.RateLimit(p, key, func(*http.Request) {
		r.Gateway.Metrics.RateLimited(route)
	})
}

func (r *Router) registerAuth() {
	// Login is keyed on address and identifier so one caller cannot lock
	// out an account for everyone.
	r.Mux.Handle("POST /auth/token",
		httpx.Chain(&TokenHandler{Gateway: r.Gateway},
			r.limit("token", r.Limits.Strict, httpx.Keys(httpx.ClientIP, httpx.JSONField("username_or_email"))),
		),
	)

	r.Mux.Handle("POST /auth/token/refresh",
		httpx.Chain(&RefreshHandler{Gateway: r.Gateway},
			r.limit("refresh", r.Limits.Moderate, httpx.ClientIP),
		),
	)

	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(&LogoutHandler{Gateway: r.Gateway},
			r.limit("logout", r.Limits.Moderate, httpx.ClientIP),
		),
	)

	r.Mux.Handle("POST /auth/logout/all",
		httpx.Chain(&LogoutAllHandler{Gateway: r.Gateway},
			httpx.AuthnMiddleware(r.issuer),
			r.limit("logout_all", r.Limits.Moderate, httpx.ByUser),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Gateway: r.Gateway}

	r.Mux.Handle("GET /sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.issuer),
			r.limit("sessions_list", r.Limits.Lenient, httpx.ByUser),
		),
	)
	r.Mux.Handle("POST /sessions/{id}/revoke",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.AuthnMiddleware(r.issuer),
			r.limit("sessions_revoke", r.Limits.Moderate, httpx.ByUser),
		),
	)
}

func (r *Router) registerKeys() {
	if r.Keys == nil {
		return
	}
	h := &KeysHandler{Rotation: r.Keys}

	staff := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h,
			httpx.AuthnMiddleware(r.issuer),
			httpx.RequireStaff(),
			r.limit("keys", r.Limits.Moderate, httpx.ByUser),
		)
	}
	r.Mux.Handle("GET /keys", staff(h.HandleList))
	r.Mux.Handle("POST /keys/rotate", staff(h.HandleRotate))
	r.Mux.Handle("POST /keys/{kid}/retire", staff(h.HandleRetire))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.issuer.KeySet()),
			r.limit("jwks", r.Limits.Public, httpx.ClientIP),
		),
	)

	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			r.limit("livez", r.Limits.Lenient, httpx.ClientIP),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Database, r.Cache, r.issuer.KeySet()),
			r.limit("readyz", r.Limits.Lenient, httpx.ClientIP),
		),
	)

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	}
}
