// Command server runs the Parentrak API.
//
//	@title						Parentrak API
//	@version					1.0
//	@description				Child-care coordination: timelines, messages, notifications, appointments, milestones and AI insights shared by a child's care team.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				"Bearer <access token>"
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/docs"
	"github.com/parentrak/parentrak-backend/internal/ai"
	"github.com/parentrak/parentrak-backend/internal/config"
	"github.com/parentrak/parentrak-backend/internal/email"
	httpapi "github.com/parentrak/parentrak-backend/internal/http"
	"github.com/parentrak/parentrak-backend/internal/observability"
	"github.com/parentrak/parentrak-backend/internal/permissions"
	"github.com/parentrak/parentrak-backend/internal/realtime"
	"github.com/parentrak/parentrak-backend/internal/repo"
	"github.com/parentrak/parentrak-backend/internal/storage"
	"github.com/parentrak/parentrak-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	sysutil.LoadDotEnv()
	cfg := config.MustLoad()
	lg := sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, lg zerolog.Logger) error {
	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			lg.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if err := repo.Seed(ctx, db); err != nil {
		return err
	}

	broker, closeBroker, err := newBroker(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeBroker()

	mailer, err := email.New(ctx, cfg.Email, lg)
	if err != nil {
		return err
	}
	store, err := storage.NewLocalStore(cfg.Storage)
	if err != nil {
		return err
	}

	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:          db,
		Broker:      broker,
		AI:          ai.New(cfg.AI, lg),
		Mailer:      mailer,
		Store:       store,
		Permissions: permissions.NewCache(permissions.DBLoader{DB: db}, cfg.PermissionTTL),
		Log:         lg,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	// Shutdown does not track hijacked websocket connections; closing the
	// broker ends their streams.
	srv.RegisterOnShutdown(func() { _ = broker.Close() })

	go purgeIdempotency(ctx, db, time.Hour, lg)

	errc := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr).Str("version", version).Str("db", cfg.DB.Driver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	lg.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

// newBroker returns the Redis broker when REDIS_ADDR is set, otherwise an
// in-process one.
func newBroker(ctx context.Context, cfg config.Config, lg zerolog.Logger) (realtime.Broker, func(), error) {
	if cfg.Redis.Addr == "" {
		b := realtime.NewMemoryBroker(cfg.Realtime.Buffer)
		return b, func() { _ = b.Close() }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	b := realtime.NewRedisBroker(client, cfg.Realtime.Buffer, lg)
	return b, func() {
		_ = b.Close()
		if err := client.Close(); err != nil {
			lg.Warn().Err(err).Msg("redis close")
		}
	}, nil
}

// purgeIdempotency drops expired Idempotency-Key rows every interval until
// ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration, lg zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				lg.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				lg.Debug().Int64("purged", n).Msg("idempotency keys expired")
			}
		}
	}
}
