package http

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/auth"
	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/domain/user"
	"github.com/hospivibe/clinic/internal/http/handlers"
	"github.com/hospivibe/clinic/internal/http/middlewares"
	"github.com/hospivibe/clinic/internal/idempotency"
	"github.com/hospivibe/clinic/internal/notifications"
	"github.com/hospivibe/clinic/internal/observability"
	"github.com/hospivibe/clinic/internal/store"
	"github.com/hospivibe/clinic/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Store       *store.Store
	JWT         *auth.Manager
	Idempotency idempotency.Store
	Prom        *observability.Prom
	// Gatherer backs /metrics; nil leaves the endpoint unmounted.
	Gatherer prometheus.Gatherer
	// Extra readiness checks (e.g. redis) next to the store ping.
	Ready map[string]handlers.Check
	// Notifier receives booking confirmations; nil disables them.
	Notifier notifications.Notifier
}

// Router is the gin engine plus the hooks main needs during shutdown.
type Router struct {
	*gin.Engine
	health *handlers.HealthHandler
}

// Drain flips /readyz to 503 ahead of srv.Shutdown.
func (r *Router) Drain() {
	r.health.Drain()
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *Router {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	validation.RegisterGinValidators()

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(observability.ServiceName))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.SecurityHeaders(cfg.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	checks := map[string]handlers.Check{
		"store": func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return deps.Store.Ping(ctx)
		},
	}
	for name, check := range deps.Ready {
		checks[name] = check
	}

	h := handlers.NewHealthHandler(checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// wire up handlers
	users := deps.Store.Users
	authHandler := handlers.NewAuthHandler(users, users, deps.JWT, cfg.RequestTimeout)
	usersHandler := handlers.NewUsersHandler(users, cfg.RequestTimeout)
	appointmentsHandler := handlers.NewAppointmentsHandler(deps.Store.Appointments, users, cfg.RequestTimeout)
	if deps.Notifier != nil {
		appointmentsHandler.WithNotifier(deps.Notifier)
	}

	authMW := middlewares.NewAuthMiddleware(deps.JWT, users)
	idem := middlewares.Idempotency(deps.Idempotency, cfg.IdempotencyTTL, log)
	authLimiter := middlewares.NewRateLimiter(cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst)

	api := r.Group("/api")

	// auth routes
	authGroup := api.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	authGroup.POST("/register", idem, authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	// everything below needs a live account
	secured := api.Group("")
	secured.Use(authMW.RequireAuth(), authMW.ResolveUser())

	secured.GET("/user/profile", usersHandler.Profile)
	secured.POST("/user/onboarding", idem, usersHandler.CompleteOnboarding)
	secured.GET("/users", usersHandler.ListByRole)

	// booking writes are throttled per account, not per address
	booking := []gin.HandlerFunc{middlewares.RequireRole(user.RolePatient)}
	if cfg.BookingRateLimitRPS > 0 {
		limiter := middlewares.NewRateLimiter(cfg.BookingRateLimitRPS, cfg.BookingRateLimitBurst)
		booking = append(booking, limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	}
	booking = append(booking, idem)
	withBooking := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(booking), h)
	}

	appts := secured.Group("/appointments")
	appts.POST("", withBooking(appointmentsHandler.Create)...)
	appts.GET("", appointmentsHandler.List)
	appts.PUT("/:id", middlewares.RequireRole(user.RoleDoctor, user.RolePatient), appointmentsHandler.Update)
	appts.POST("/schedule", withBooking(appointmentsHandler.Schedule)...)

	return &Router{Engine: r, health: h}
}
