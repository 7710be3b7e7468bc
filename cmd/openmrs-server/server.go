package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-api/internal/config"
	"github.com/openmrs/openmrs-api/internal/domain/admin"
	"github.com/openmrs/openmrs-api/internal/platform/auth"
	"github.com/openmrs/openmrs-api/internal/platform/db"
	"github.com/openmrs/openmrs-api/internal/platform/middleware"
	"github.com/openmrs/openmrs-api/internal/platform/validation"
)

const version = "0.1.0"

// Endpoints that accept whole lists get the larger body limit.
var bulkRoutes = []string{
	"/api/v1/globalproperties",
	"/api/v1/patients/:patientId/allergies",
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BulkBodyLimit, bulkRoutes...))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, logger))
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, auth.AuthSkipper))
	e.Use(middleware.Audit(logger, nil))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	api := e.Group("/api/v1")
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
		rl.BurstSize = cfg.RateLimitBurst
	}
	api.Use(middleware.RateLimit(rl))
	a.registerRoutes(api)

	return e
}

// propertyCache shares global properties through Redis when REDIS_URL is
// set and keeps them in process otherwise.
func propertyCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (admin.PropertyCache, func(), error) {
	if cfg.RedisURL == "" {
		return admin.NewInMemoryPropertyCache(cfg.GPCacheTTL), func() {}, nil
	}
	client, err := admin.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("global property cache backed by redis")
	return admin.NewRedisPropertyCache(client, cfg.GPCacheTTL), func() { _ = client.Close() }, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	cache, closeCache, err := propertyCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	e := newServer(cfg, pool, newApp(pool, cfg, cache, logger), logger)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
