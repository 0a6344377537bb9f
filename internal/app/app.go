package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/overlaylabs/copresence/internal/auth"
	"github.com/overlaylabs/copresence/internal/comments"
	"github.com/overlaylabs/copresence/internal/config"
	"github.com/overlaylabs/copresence/internal/httpserver"
	"github.com/overlaylabs/copresence/internal/httpserver/deps"
	"github.com/overlaylabs/copresence/internal/hub"
	"github.com/overlaylabs/copresence/internal/logger"
	"github.com/overlaylabs/copresence/internal/redis"
	"github.com/overlaylabs/copresence/internal/registry"
	"github.com/overlaylabs/copresence/internal/scheduler"
	redisstore "github.com/overlaylabs/copresence/internal/store/redis"
	"github.com/overlaylabs/copresence/internal/tracking"
	"github.com/overlaylabs/copresence/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	hub         *hub.Hub
	sweeper     *scheduler.SessionSweeper
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	// Initialize Redis store
	store := redisstore.NewStore(redisClient)

	// In-memory session registry and cursor tracking engine
	reg := registry.New(registry.WithTTL(cfg.SessionTTL))
	engine := tracking.NewEngine(tracking.Options{
		ThrottleWindow: cfg.CursorThrottle,
		TrailCap:       cfg.TrailCap,
		TrailBatch:     cfg.TrailBatch,
		PathCap:        cfg.PathCap,
		PathKeep:       cfg.PathKeep,
	}, loggerClient)

	// Comment service persists through the Redis store
	commentSvc := comments.NewService(store, loggerClient)

	// Restore persisted sessions into the registry on startup
	syncer := scheduler.NewStoreSyncer(store, reg, loggerClient)
	if err := syncer.Sync(context.Background()); err != nil {
		loggerClient.Warn("failed to sync sessions from redis on startup, starting empty",
			logger.Error(err))
	}

	// Create manual sweep trigger channel
	sweepTrigger := make(chan struct{}, 1)

	sweeper := scheduler.NewSessionSweeper(
		reg,
		engine,
		store,
		loggerClient,
		cfg.SweepInterval,
		sweepTrigger,
	)

	h := hub.New(reg, engine, commentSvc, store, loggerClient,
		hub.WithSessionFlush(cfg.SessionFlush))

	verifier := auth.NewVerifier([]byte(cfg.TokenSecret))

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedHosts:   cfg.AllowedHosts,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustProxy:     cfg.TrustProxy,
		RedisClient:    redisClient,
		Hub:            h,
		Registry:       reg,
		Engine:         engine,
		Comments:       commentSvc,
		Verifier:       verifier,
		SendBuffer:     cfg.SendBuffer,
		SweepTrigger:   sweepTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		hub:         h,
		sweeper:     sweeper,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Copresence v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Copresence %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session sweeper
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	a.logger.Info("session sweeper started",
		logger.Duration("interval", a.cfg.SweepInterval))

	// Start the broadcast loop
	go a.hub.Run(ctx)
	a.logger.Info("broadcast hub started")

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	// Stop session sweeper
	a.sweeper.Stop()

	// Disconnect all live websocket clients before closing the listener
	a.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ Copresence stopped cleanly")
	return nil
}
