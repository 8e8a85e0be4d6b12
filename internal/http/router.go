// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, route handlers and the realtime hub. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, metrics, compression, CORS, security headers,
// authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/docs"
	"github.com/tbourn/go-layover-backend/internal/auth"
	"github.com/tbourn/go-layover-backend/internal/config"
	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/http/handlers"
	"github.com/tbourn/go-layover-backend/internal/http/middleware"
	"github.com/tbourn/go-layover-backend/internal/matching"
	"github.com/tbourn/go-layover-backend/internal/observability"
	"github.com/tbourn/go-layover-backend/internal/realtime"
	"github.com/tbourn/go-layover-backend/internal/repo"
	"github.com/tbourn/go-layover-backend/internal/services"
)

// MetricsNamespace prefixes every Prometheus series the server exports.
const MetricsNamespace = "layover"

// Deps are the long-lived collaborators the routes are built from.
type Deps struct {
	DB *gorm.DB
	// Registry receives HTTP and domain metrics and backs /metrics. Nil uses
	// the process-wide default registry.
	Registry *prometheus.Registry
	Log      zerolog.Logger
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the realtime hub behind GET {base}/ws. The caller owns
// the hub's lifecycle and must Run it.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limit
//  6. Metrics
//  7. Compression (not on the WebSocket route)
//  8. CORS and security headers
//
// Per group: auth endpoints are rate limited by client IP; everything else
// requires a bearer token, then validates Idempotency-Key (before the
// limiter so replays bypass it), then is rate limited per traveler.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) *realtime.Hub {
	r.HandleMethodNotAllowed = true
	base := strings.TrimRight(cfg.APIBasePath, "/")

	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if d.Registry != nil {
		reg, gatherer = d.Registry, d.Registry
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskParams: []string{"refresh_token"},
		SkipPaths:  []string{"/health", "/metrics"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.NewHTTPMetrics(MetricsNamespace, reg).Handler())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// 7) Compression; hijacked WebSocket connections must not be wrapped
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{base + "/ws", "/metrics"})))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		HSTS:           cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		NoStore:        false, // chat and message lists rely on ETag revalidation
		LockdownPolicy: true,
		ExposeHeaders:  []string{"ETag", "Retry-After", handlers.HeaderReplayed},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = base
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db, hub ↔ services
	metrics := observability.NewMetrics(MetricsNamespace, reg)
	authSvc := services.NewAuthService(d.DB, auth.NewSigner(cfg.Auth.Secret),
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, metrics, d.Log)
	journeySvc := services.NewJourneyService(d.DB, d.Log)
	chatSvc := services.NewChatService(d.DB, d.Log)
	msgSvc := services.NewMessageService(d.DB, nil, metrics, d.Log)
	msgSvc.MaxRunes = cfg.MessageMaxRunes
	msgSvc.IdempotencyTTL = cfg.IdempotencyTTL

	hub := realtime.NewHub(chatSvc, msgSvc, metrics, d.Log, realtime.Options{
		WriteTimeout:    cfg.Realtime.WriteTimeout,
		PongTimeout:     cfg.Realtime.PongTimeout,
		PingInterval:    cfg.Realtime.PingInterval(),
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
	})
	msgSvc.Publisher = hub
	matchSvc := services.NewMatchService(d.DB, matching.New(cfg.SameFlightTolerance), hub, metrics, d.Log)
	profileSvc := services.NewProfileService(d.DB, d.Log)

	h := handlers.New(handlers.Deps{
		Auth:     authSvc,
		Journeys: journeySvc,
		Matches:  matchSvc,
		Profiles: profileSvc,
		Chats:    chatSvc,
		Messages: msgSvc,
		Realtime: hub,
		Cookie: handlers.CookieOptions{
			Path:   base + "/auth",
			Secure: cfg.Auth.RefreshCookieSecure,
		},
	})

	api := groupWithPrefix(r, base)

	// Public: credentials in, session out. Keyed by IP (no traveler yet).
	ipLimit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	public := api.Group("/auth", ipLimit.Handler())
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)
		public.POST("/logout", h.Logout)
	}

	// Authenticated
	userLimit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	authed := api.Group("",
		middleware.RequireAuth(authSvc),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: domain.MaxIdempotencyKeyLen}, idempotencyLookup(d.DB)),
		userLimit.Handler(),
	)
	{
		authed.GET("/auth/me", h.Me)

		// Profiles
		authed.GET("/users/me", h.GetMyProfile)
		authed.PATCH("/users/me/profile", h.UpdateMyProfile)
		authed.GET("/users/:id/profile", h.GetUserProfile)

		// Journeys
		authed.POST("/journeys", h.CreateJourney)
		authed.GET("/journeys", h.ListJourneys)
		authed.GET("/journeys/:id", h.GetJourney)
		authed.DELETE("/journeys/:id", h.DeleteJourney)

		// Matches
		authed.GET("/matches/journey/:journeyId", h.DiscoverMatches)
		authed.GET("/matches/pending/:journeyId", h.PendingRequests)
		authed.POST("/matches/request", h.SendMatchRequest)
		authed.POST("/matches/dismiss", h.DismissMatch)
		authed.GET("/matches/:id", h.GetMatch)
		authed.POST("/matches/:id/accept", h.AcceptMatch)
		authed.POST("/matches/:id/reject", h.RejectMatch)

		// Chats and messages
		authed.GET("/chats/journey/:journeyId", h.ListChats)
		authed.POST("/chats/:id/read", h.MarkChatRead)
		authed.GET("/chats/:id/messages", h.ListMessages)
		authed.POST("/chats/:id/messages", h.PostMessage)

		// Realtime
		authed.GET("/ws", h.ServeWS)
	}
	return hub
}

// idempotencyLookup reports whether (user, chat, key) already maps to a
// stored send.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, chatID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, userID, chatID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// corsMiddleware allows every origin without credentials when origins is
// empty; otherwise only the listed origins, with credentials so browsers
// send the refresh cookie.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		allowAll := cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		})
		return func(c *gin.Context) {
			// Force ACAO: * even for requests without an Origin header.
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			allowAll(c)
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	restricted := cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		restricted(c)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
