package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gatherhall/server/internal/api/handlers"
	"github.com/gatherhall/server/internal/api/middleware"
	"github.com/gatherhall/server/internal/auth"
	"github.com/gatherhall/server/internal/config"
	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/registrations"
	"github.com/gatherhall/server/internal/domain/users"
	"github.com/gatherhall/server/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

// Deps carries the constructed services and infrastructure the router wires
// into handlers. The caller owns their lifecycles.
type Deps struct {
	Events        *events.Service
	Registrations *registrations.Service
	Users         *users.Service
	JWT           *auth.JWTManager
	Pool          *pgxpool.Pool
	River         *river.Client[pgx.Tx]
	Version       string
	GitCommit     string
}

func NewRouter(cfg config.Config, logger zerolog.Logger, deps Deps) http.Handler {
	env := cfg.Environment

	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT, env)
	eventsHandler := handlers.NewEventsHandler(deps.Events, env)
	regsHandler := handlers.NewRegistrationsHandler(deps.Registrations, env)
	usersHandler := handlers.NewUsersHandler(deps.Users, env)
	health := handlers.NewHealthChecker(deps.Pool, deps.River, deps.Version, deps.GitCommit)

	authn := middleware.Authenticate(deps.JWT, env)
	requireOrganizer := middleware.RequireRole(env, auth.RoleOrganizer, auth.RoleAdmin)
	requireAdmin := middleware.RequireRole(env, auth.RoleAdmin)

	// One limiter store is shared by every route; the tier middleware must run
	// before limit so the limiter sees the route's tier in the context.
	limit := middleware.RateLimit(cfg.RateLimit)
	limitAdmit := func(next http.Handler) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierAdmit)(limit(next))
	}
	limitAdmin := func(next http.Handler) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierAdmin)(limit(next))
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(health.Healthz))
	mux.Handle("/readyz", http.HandlerFunc(health.Readyz))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: limit(http.HandlerFunc(authHandler.Login)),
	}))

	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodPost: authn(requireOrganizer(limit(http.HandlerFunc(eventsHandler.Create)))),
		http.MethodGet:  authn(limit(http.HandlerFunc(eventsHandler.ListMine))),
	}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: limit(http.HandlerFunc(eventsHandler.Get)),
	}))
	mux.Handle("/api/v1/events/code/{code}", methodMux(map[string]http.Handler{
		http.MethodGet: limit(http.HandlerFunc(eventsHandler.GetByCode)),
	}))
	mux.Handle("/api/v1/events/{id}/publish", methodMux(map[string]http.Handler{
		http.MethodPost: authn(limit(http.HandlerFunc(eventsHandler.Publish))),
	}))
	mux.Handle("/api/v1/events/{id}/cancel", methodMux(map[string]http.Handler{
		http.MethodPost: authn(limit(http.HandlerFunc(eventsHandler.Cancel))),
	}))
	mux.Handle("/api/v1/events/{id}/complete", methodMux(map[string]http.Handler{
		http.MethodPost: authn(limit(http.HandlerFunc(eventsHandler.Complete))),
	}))

	mux.Handle("/api/v1/events/{id}/registrations", methodMux(map[string]http.Handler{
		http.MethodPost: authn(limitAdmit(http.HandlerFunc(regsHandler.Admit))),
		http.MethodGet:  authn(limit(http.HandlerFunc(regsHandler.ListForEvent))),
	}))
	mux.Handle("/api/v1/registrations", methodMux(map[string]http.Handler{
		http.MethodGet: authn(limit(http.HandlerFunc(regsHandler.ListMine))),
	}))
	mux.Handle("/api/v1/registrations/{id}", methodMux(map[string]http.Handler{
		http.MethodDelete: authn(limit(http.HandlerFunc(regsHandler.Cancel))),
	}))
	mux.Handle("/api/v1/registrations/{id}/status", methodMux(map[string]http.Handler{
		http.MethodPatch: authn(limit(http.HandlerFunc(regsHandler.SetStatus))),
	}))

	mux.Handle("/api/v1/admin/users", methodMux(map[string]http.Handler{
		http.MethodGet: authn(requireAdmin(limitAdmin(http.HandlerFunc(usersHandler.List)))),
	}))
	mux.Handle("/api/v1/admin/users/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    authn(requireAdmin(limitAdmin(http.HandlerFunc(usersHandler.Get)))),
		http.MethodDelete: authn(requireAdmin(limitAdmin(http.HandlerFunc(usersHandler.Delete)))),
	}))
	mux.Handle("/api/v1/admin/users/{id}/role", methodMux(map[string]http.Handler{
		http.MethodPut: authn(requireAdmin(limitAdmin(http.HandlerFunc(usersHandler.ChangeRole)))),
	}))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
