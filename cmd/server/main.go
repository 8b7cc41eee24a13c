package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/db"
	"github.com/Clark-Hu/restroom-finder/internal/auth"
	"github.com/Clark-Hu/restroom-finder/internal/cache"
	"github.com/Clark-Hu/restroom-finder/internal/config"
	"github.com/Clark-Hu/restroom-finder/internal/events"
	httpserver "github.com/Clark-Hu/restroom-finder/internal/http"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/metrics"
	"github.com/Clark-Hu/restroom-finder/internal/ratelimit"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
	"github.com/Clark-Hu/restroom-finder/internal/service"
	"github.com/Clark-Hu/restroom-finder/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if cfg.AutoMigrate {
		if _, err := store.Migrate(dbCtx, st.Pool(), db.Migrations, "migrations", logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	repo := repository.New(st)
	m := metrics.New()

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}

	restroomOpts := service.RestroomServiceOptions{
		Limit:             cfg.NearbyLimit,
		MaxDistanceMeters: cfg.NearbyMaxDistanceMeters,
		Metrics:           m,
		Logger:            logger,
	}
	var rateLimit func(http.Handler) http.Handler

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(dbCtx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		if cfg.NearbyCacheTTLSecs > 0 {
			ttl := time.Duration(cfg.NearbyCacheTTLSecs) * time.Second
			restroomOpts.Cache = cache.NewJSON[[]service.RestroomView](rdb, "restroom:", ttl)
		}
		rateLimit = newRateLimit(cfg, rdb, logger, m)
		logger.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(dbCtx, cfg.AMQPURL, cfg.RatingEventsQueue, logger)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		publisher = amqpPub
		logger.Info("rating events enabled", zap.String("queue", cfg.RatingEventsQueue))
	}
	defer func() { _ = publisher.Close() }()

	server := httpserver.New(cfg, httpserver.Deps{
		Auth:      service.NewAuthService(repo.Users, repo.Counters, auth.NewHasher(cfg.BcryptCost), issuer, logger),
		Restrooms: service.NewRestroomService(repo.Restrooms, restroomOpts),
		Ratings: service.NewRatingService(repo.Ratings, service.RatingServiceOptions{
			MaxScore: cfg.RatingMaxScore,
			Events:   publisher,
			Metrics:  m,
			Logger:   logger,
		}),
		Tokens:    issuer,
		Health:    st,
		Metrics:   m,
		RateLimit: rateLimit,
		Logger:    logger,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	return nil
}

func newRateLimit(cfg config.Config, rdb *redis.Client, logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	limitCfg := ratelimit.Config{
		Enabled:        cfg.RateLimitEnabled,
		Prefix:         "ratelimit",
		Capacity:       cfg.RateLimitCapacity,
		RefillTokens:   cfg.RateLimitRefillTokens,
		RefillInterval: cfg.RateLimitInterval,
		TTL:            10 * time.Minute,
	}
	return ratelimit.Middleware(limitCfg, rdb, logger, func(*http.Request) { m.ObserveRateLimited() })
}
