// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, permission gates,
// idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/ai"
	"github.com/parentrak/parentrak-backend/internal/config"
	"github.com/parentrak/parentrak-backend/internal/domain"
	"github.com/parentrak/parentrak-backend/internal/email"
	"github.com/parentrak/parentrak-backend/internal/http/handlers"
	"github.com/parentrak/parentrak-backend/internal/http/middleware"
	"github.com/parentrak/parentrak-backend/internal/permissions"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
	"github.com/parentrak/parentrak-backend/internal/services"
	"github.com/parentrak/parentrak-backend/internal/storage"
)

// Deps are the process-level collaborators built by main.
type Deps struct {
	DB     *gorm.DB
	Broker realtime.Broker
	AI     *ai.Client
	Mailer *email.Mailer
	Store  storage.Store
	// Permissions is built from DB and cfg.PermissionTTL when nil.
	Permissions *permissions.Cache
	Log         zerolog.Logger
}

// idempotencyStore adapts the repository free functions to
// handlers.IdempotencyStore.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
	log zerolog.Logger
}

// Lookup proxies repo.GetIdempotency.
func (s idempotencyStore) Lookup(ctx context.Context, userID, scope, key string) (string, bool) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, time.Now().UTC())
	if err != nil {
		return "", false
	}
	return rec.RowID, true
}

// Record proxies repo.CreateIdempotency. Losing a race to a concurrent retry
// is fine: the first writer's row wins.
func (s idempotencyStore) Record(ctx context.Context, userID, scope, key, rowID string, status int) {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, rowID, status, s.ttl)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		s.log.Warn().Err(err).Str("scope", scope).Msg("record idempotency key")
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads get their own cap)
//  6. Metrics
//  7. Gzip (never on the websocket or /metrics)
//  8. CORS and Security headers
//
// Inside the API group: Auth, then Idempotency validator (before the rate
// limiter so replays bypass it), then the rate limiter, then per-route
// permission gates.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-User-Email"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxUpload := cfg.Storage.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	r.Use(limitBody(1<<20, maxUpload+(1<<20), "/documents", "/voice-notes"))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithExcludedPathsRegexs([]string{`/feed/ws$`}),
	))

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		"X-User-ID", "X-User-Role", "X-User-Name",
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Content-Disposition", middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := originSet(cfg.CORS.AllowedOrigins)
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{cfg.APIBasePath + "/me", cfg.APIBasePath + "/permissions"},
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

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if cfg.Storage.Dir != "" {
		r.Static("/files", cfg.Storage.Dir)
	}

	h, gate := buildHandlers(d, cfg, maxUpload)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret:     []byte(cfg.JWTSecret),
		Roles:      profileRoles(d.DB),
		QueryToken: true,
	}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, d.DB, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api.Use(rl.Handler())

	need := func(f domain.Feature) gin.HandlerFunc { return middleware.RequireFeature(gate, f) }
	{
		// Profile
		api.GET("/me", h.Me)
		api.PUT("/me/role", h.SetRole)
		api.GET("/profiles/:id", h.GetProfile)

		// Children and care teams
		api.POST("/children", need(domain.FeatureAddChild), h.CreateChild)
		api.GET("/children", h.ListChildren)
		api.GET("/children/:id", h.GetChild)
		api.POST("/children/:id/care-team", need(domain.FeatureAddChild), h.AddCareTeamMember)
		api.GET("/children/:id/care-team", h.ListCareTeam)

		// Timeline
		api.GET("/children/:id/logs", need(domain.FeatureViewLogs), h.ListLogs)
		api.POST("/children/:id/logs", need(domain.FeatureCreateLogs), h.CreateLog)
		api.GET("/children/:id/logs/search", need(domain.FeatureViewLogs), h.SearchLogs)
		api.GET("/children/:id/logs/export", need(domain.FeatureExportData), h.ExportLogs)
		api.POST("/children/:id/documents", need(domain.FeatureCreateLogs), h.UploadDocument)
		api.POST("/children/:id/voice-notes", need(domain.FeatureCreateLogs), h.UploadVoiceNote)

		// Messages
		api.GET("/children/:id/messages", need(domain.FeatureViewMessages), h.ListMessages)
		api.POST("/children/:id/messages", need(domain.FeatureSendMessages), h.PostMessage)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadCount)
		api.PATCH("/notifications/:id", h.MarkNotificationRead)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)

		// Appointments
		api.GET("/children/:id/appointments", need(domain.FeatureManageAppointments), h.ListAppointments)
		api.POST("/children/:id/appointments", need(domain.FeatureManageAppointments), h.CreateAppointment)
		api.POST("/appointments/:id/respond", h.RespondAppointment)

		// Milestones
		api.GET("/milestones", h.MilestoneCatalog)
		api.GET("/children/:id/milestones", need(domain.FeatureManageMilestones), h.MilestoneProgress)
		api.PUT("/children/:id/milestones/:milestone", need(domain.FeatureManageMilestones), h.UpdateMilestone)

		// Insights
		api.GET("/children/:id/insights", need(domain.FeatureViewInsights), h.Insights)
		api.POST("/children/:id/summary", need(domain.FeatureViewInsights), h.Summary)
		api.GET("/children/:id/digest", need(domain.FeatureExportData), h.Digest)
		api.POST("/translate", h.Translate)

		// Permissions
		api.GET("/permissions", h.MyPermissions)
		api.GET("/permissions/check", h.CheckPermission)
		api.PUT("/admin/permissions", middleware.RequireRole(domain.RoleAdmin), h.UpdatePermissions)

		// Realtime
		api.GET("/children/:id/feed/ws", h.Feed)
	}
}

// buildHandlers performs dependency injection: services <- repo/db/broker.
func buildHandlers(d Deps, cfg config.Config, maxUpload int64) (*handlers.Handlers, *permissions.Cache) {
	gate := d.Permissions
	if gate == nil {
		gate = permissions.NewCache(permissions.DBLoader{DB: d.DB}, cfg.PermissionTTL)
	}
	broker := d.Broker
	if broker == nil {
		buf := cfg.Realtime.Buffer
		broker = realtime.NewMemoryBroker(buf)
	}
	assistant := d.AI
	if assistant == nil {
		assistant = ai.New(cfg.AI, d.Log)
	}

	h := handlers.New(handlers.Deps{
		Profiles: &services.ProfileService{DB: d.DB},
		Children: &services.ChildService{DB: d.DB, NameMaxLen: 80, NameLocale: language.English},
		Logs: &services.LogService{
			DB:             d.DB,
			Pub:            broker,
			AI:             assistant,
			Store:          d.Store,
			Log:            d.Log,
			SearchMinScore: cfg.SearchMinScore,
		},
		Messages: &services.MessageService{
			DB:              d.DB,
			Pub:             broker,
			Log:             d.Log,
			MaxContentRunes: 4000,
			NotifyCareTeam:  true,
		},
		Notifications: &services.NotificationService{DB: d.DB, Pub: broker, Log: d.Log},
		Appointments:  &services.AppointmentService{DB: d.DB, Pub: broker, Mailer: d.Mailer, Log: d.Log},
		Milestones:    &services.MilestoneService{DB: d.DB},
		Insights:      &services.InsightService{DB: d.DB, AI: assistant, Log: d.Log},
		Permissions:   &services.PermissionService{DB: d.DB, Cache: gate},
		Feed: &realtime.Streamer{
			Broker:       broker,
			Upgrader:     websocket.Upgrader{CheckOrigin: checkOrigin(cfg.CORS.AllowedOrigins)},
			WriteTimeout: cfg.Realtime.WriteTimeout,
			PingInterval: cfg.Realtime.PingInterval,
			Log:          d.Log.With().Str("component", "feed").Logger(),
		},
		Idempotency:    idempotencyStore{db: d.DB, ttl: cfg.IdempotencyTTL, log: d.Log},
		MaxUploadBytes: maxUpload,
	})
	return h, gate
}

// profileRoles resolves the stored role of a user once onboarding set it.
func profileRoles(db *gorm.DB) middleware.RoleLookup {
	return func(ctx context.Context, userID string) (domain.Role, bool, error) {
		p, err := repo.GetProfile(ctx, db, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return p.Role, p.RoleSet, nil
	}
}

// checkOrigin allows websocket upgrades from the CORS allowlist, or from
// anywhere when no allowlist is configured.
func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := originSet(origins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func originSet(origins []string) map[string]struct{} {
	m := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		m[o] = struct{}{}
	}
	return m
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Paths ending in one of uploadSuffixes
// get uploadBytes instead.
func limitBody(maxBytes, uploadBytes int64, uploadSuffixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		for _, s := range uploadSuffixes {
			if strings.HasSuffix(c.Request.URL.Path, s) {
				limit = uploadBytes
				break
			}
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
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
