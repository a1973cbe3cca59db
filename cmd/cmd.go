package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"marshmallow-backend/internal/config"
	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/handlers"
	"marshmallow-backend/internal/notify"
	"marshmallow-backend/internal/repository"
	"marshmallow-backend/internal/repository/memstore"
	"marshmallow-backend/internal/services"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Run starts the API server and the background consumers and blocks until
// SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	origin := instanceID(cfg.Server.InstanceID)

	// Connect to database
	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	clock := services.NewMonotonicClock()
	bus := events.NewBus(origin)

	// Redis is optional; without it the process runs single-instance
	var claimer notify.Claimer = notify.NewMemoryClaimer(cfg.Redis.DedupeTTL)
	var relay *events.RedisRelay
	if cfg.Redis.Addr != "" {
		rdb, err := connectRedis(ctx, cfg.Redis, cfg.Database.ConnectTimeout)
		if err != nil {
			return err
		}
		defer rdb.Close()
		claimer = notify.NewRedisClaimer(rdb, cfg.Redis.DedupeTTL)
		relay = events.NewRedisRelay(rdb, bus, cfg.Redis.Channel, log.Logger)
	}

	// Initialize services
	pairing := services.NewPairingService(store.Users(), store.Couples(), clock)
	userService := services.NewUserService(store.Users(), pairing, cfg.JWT.Secret, cfg.JWT.TokenTTL(), clock)
	eventService := services.NewEventService(store, pairing, clock, bus)
	devices := services.NewDeviceRegistry(store.DeviceTokens())
	live := services.NewLiveHub(store.Messages(), store.Couples(), clock, cfg.Live.SnapshotLimit)
	verifier := services.NewJWTIdentityVerifier(cfg.Identity.Secret, cfg.Identity.Issuer)

	var mediaHandler *handlers.MediaHandler
	if cfg.AWS.S3Bucket != "" {
		media, err := services.NewMediaService(ctx, pairing, services.MediaOptions{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
			URLTTL:    cfg.AWS.URLTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to create media service: %w", err)
		}
		mediaHandler = handlers.NewMediaHandler(media)
	} else {
		log.Warn().Msg("aws.s3_bucket is not set, media uploads are disabled")
	}

	var pusher notify.Pusher = notify.LogPusher{}
	if cfg.APNs.Enabled() {
		apns, err := notify.NewAPNsPusher(notify.APNsOptions{
			KeyFile:      cfg.APNs.KeyFile,
			KeyID:        cfg.APNs.KeyID,
			TeamID:       cfg.APNs.TeamID,
			CertFile:     cfg.APNs.CertFile,
			CertPassword: cfg.APNs.CertPassword,
			Topic:        cfg.APNs.Topic,
			Production:   cfg.APNs.Production,
		})
		if err != nil {
			return fmt.Errorf("failed to create APNs client: %w", err)
		}
		pusher = apns
	} else {
		log.Warn().Msg("APNs is not configured, notifications are logged only")
	}

	dispatcher := notify.NewDispatcher(store, pairing, devices, pusher, claimer, notify.MetricsReporter{}, notify.Options{
		Origin:  origin,
		Workers: cfg.Notify.Workers,
		Timeout: cfg.Notify.Timeout,
	})

	// Background consumers of the change feed
	var wg sync.WaitGroup
	liveFeed := bus.Subscribe("live")
	notifyFeed := bus.Subscribe("notify")
	consumers := map[string]func(context.Context) error{
		"live":     func(ctx context.Context) error { return live.Run(ctx, liveFeed) },
		"dispatch": func(ctx context.Context) error { return dispatcher.Run(ctx, notifyFeed) },
	}
	if relay != nil {
		consumers["relay"] = relay.Run
	}
	for name, run := range consumers {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("consumer", name).Msg("Consumer stopped")
			}
		}(name, run)
	}

	// Initialize handlers
	router := handlers.NewRouter(handlers.Handlers{
		User:      handlers.NewUserHandler(userService, verifier),
		Couple:    handlers.NewCoupleHandler(pairing),
		Event:     handlers.NewEventHandler(eventService),
		Device:    handlers.NewDeviceHandler(devices),
		Media:     mediaHandler,
		WebSocket: handlers.NewWebSocketHandler(live, pairing, eventService, userService),
	}, userService, handlers.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestLogging: cfg.Log.Level == "debug",
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("instance", origin).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	live.Close()
	liveFeed.Close()
	notifyFeed.Close()
	wg.Wait()

	log.Info().Msg("Server exited")
	return nil
}

// openStore returns the configured store and a function releasing it
func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	var db *pgxpool.Pool
	connect := func() error {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		db = pool
		return nil
	}
	if err := retry(ctx, "database", cfg.ConnectTimeout, connect); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("Database schema is up to date")
	}

	return repository.NewPostgresStore(db), db.Close, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	err := retry(ctx, "redis", timeout, func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("Redis connection established")
	return rdb, nil
}

// retry runs op with exponential backoff until it succeeds or maxElapsed passes
func retry(ctx context.Context, what string, maxElapsed time.Duration, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 5 * time.Second
	exp.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(op, backoff.WithContext(exp, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("target", what).Dur("retry_in", wait).Msg("Connection failed, retrying")
	})
}

func instanceID(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "marshmallow"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// setupLogger configures zerolog logger
func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if strings.EqualFold(cfg.Format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
