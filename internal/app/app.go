// Package app wires the configuration into running infrastructure: database,
// optional cache and geo resolver, services, router and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	api "github.com/vadimbarashkov/linktrack/internal/api/http"
	"github.com/vadimbarashkov/linktrack/internal/cache"
	"github.com/vadimbarashkov/linktrack/internal/config"
	"github.com/vadimbarashkov/linktrack/internal/database/postgres"
	"github.com/vadimbarashkov/linktrack/internal/enrichment"
	"github.com/vadimbarashkov/linktrack/internal/geo"
	"github.com/vadimbarashkov/linktrack/internal/service"
)

// Run starts the service and blocks until ctx is cancelled or the server
// fails. Shutdown is graceful: the listener drains before Run returns.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := setupLogger(cfg.Env)

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	var targetCache service.TargetCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%s: failed to connect to redis: %w", op, err)
		}

		targetCache = cache.NewRedis(client, cfg.Redis.TTL)
		logger.Info("target cache enabled", slog.String("addr", cfg.Redis.Addr()))
	}

	var resolver geo.Resolver
	if cfg.GeoIP.Path != "" {
		maxmind, err := geo.NewMaxMindResolver(cfg.GeoIP.Path)
		if err != nil {
			return fmt.Errorf("%s: failed to open geoip database: %w", op, err)
		}
		defer maxmind.Close()

		resolver = maxmind
		logger.Info("geoip lookups enabled", slog.String("path", cfg.GeoIP.Path))
	} else {
		logger.Info("geoip lookups disabled")
	}

	enricher := enrichment.New(resolver)

	linkRepo := postgres.NewLinkRepository(db)
	trackingRepo := postgres.NewTrackingRepository(db)

	linkSvc := service.NewLinkService(linkRepo, trackingRepo, targetCache, logger.Logger, cfg.ShortKeyLength)
	redirectSvc := service.NewRedirectService(linkRepo, trackingRepo, targetCache, enricher, logger.Logger, service.RedirectOptions{
		StorageTimeout:          cfg.Tracking.StorageTimeout,
		TrackingTimeout:         cfg.Tracking.TrackingTimeout,
		BreakerFailureThreshold: cfg.Tracking.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.Tracking.BreakerOpenTimeout,
	})

	router := api.NewRouter(logger, linkSvc, redirectSvc, api.RouterOptions{
		DB:              db,
		AdminAPIKey:     cfg.Admin.APIKey,
		RateLimit:       cfg.RateLimit.Requests,
		RateWindow:      cfg.RateLimit.Window,
		SwaggerFilePath: cfg.HTTPServer.SwaggerFile,
		CacheEnabled:    targetCache != nil,
		GeoIPEnabled:    resolver != nil,
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

// setupLogger prepares the request logger. Outside dev it switches to JSON
// output at info level.
func setupLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel: slog.LevelDebug,
		Concise:  true,
	}

	switch env {
	case config.EnvStage, config.EnvProd:
		opts.LogLevel = slog.LevelInfo
		opts.JSON = true
		opts.Concise = false
	}

	return httplog.NewLogger("linktrack", opts)
}
