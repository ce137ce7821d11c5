package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/doseledger/doseledger/internal/config"
	"github.com/doseledger/doseledger/internal/domain/dosing"
	"github.com/doseledger/doseledger/internal/domain/finance"
	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/internal/platform/auth"
	"github.com/doseledger/doseledger/internal/platform/cache"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/internal/platform/middleware"
	"github.com/doseledger/doseledger/internal/platform/validate"
)

const version = "0.1.0"

// services bundles what the router mounts.
type services struct {
	patients *patient.Service
	dosing   *dosing.Service
	finance  *finance.Service
	db       db.Pinger
}

// newServices wires the Postgres repositories. The dashboard cache is Redis
// when REDIS_URL is set and in-process otherwise.
func newServices(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*services, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	var dashCache cache.Cache = cache.NewMemory()
	cleanup := func() {}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "doseledger")
		if err != nil {
			return nil, nil, err
		}
		dashCache = rc
		cleanup = func() { _ = rc.Close() }
		logger.Info().Msg("connected to redis")
	}

	patientRepo := patient.NewRepoPG(pool)
	medRepo := dosing.NewMedicationRepoPG(pool)
	injRepo := dosing.NewInjectionRepoPG(pool)
	recordRepo := finance.NewRecordRepoPG(pool)

	financeSvc := finance.NewService(injRepo, medRepo, recordRepo, patientRepo, db.NewTxRunner(pool),
		finance.WithCache(dashCache, cfg.DashboardCacheTTL),
		finance.WithLocation(loc),
		finance.WithSavingsParams(savingsParams(cfg)),
	)

	return &services{
		patients: patient.NewService(patientRepo, patient.NewPortalProvisionerPG(pool)),
		dosing:   dosing.NewService(medRepo, injRepo),
		finance:  financeSvc,
		db:       pool,
	}, cleanup, nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

// newRouter builds the echo instance with the middleware stack and every
// route mounted.
func newRouter(cfg *config.Config, logger zerolog.Logger, svc *services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(svc.db))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	patient.NewHandler(svc.patients).RegisterRoutes(apiV1)
	dosing.NewHandler(svc.dosing).RegisterRoutes(apiV1)
	finance.NewHandler(svc.finance).RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	// Database
	ctx := logger.WithContext(context.Background())
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svc, cleanup, err := newServices(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer cleanup()

	e := newRouter(cfg, logger, svc)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
