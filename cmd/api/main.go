package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/klarolink/notifications/internal/api"
	"github.com/klarolink/notifications/internal/auth"
	"github.com/klarolink/notifications/internal/config"
	"github.com/klarolink/notifications/internal/domain"
	"github.com/klarolink/notifications/internal/fcm"
	"github.com/klarolink/notifications/internal/realtime"
	"github.com/klarolink/notifications/internal/repository"
	"github.com/klarolink/notifications/internal/storage"
)

const adminTokenExpiry = 12 * time.Hour

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	issueFor := pflag.String("issue-admin-token", "", "print an admin token for this subject and exit")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		if err := issueAdminToken(os.Stdout, cfg.Admin.JWTSecret, *issueFor); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue admin token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting KlaroLink notification service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("ws_port", cfg.Realtime.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Cross-process relay
	var relay realtime.Relay
	if cfg.Redis.URL != "" {
		redisRelay, err := realtime.NewRedisRelay(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisRelay.Close()
		relay = redisRelay
		logger.Info("Redis relay enabled", zap.String("channel", cfg.Redis.Channel))
	} else {
		logger.Warn("REDIS_URL not set - broadcasts reach this process's connections only")
	}

	hub := realtime.NewServer(realtime.Options{
		Path:              cfg.Realtime.Path,
		DefaultCategories: cfg.Realtime.DefaultCategories,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		AllowedOrigins:    cfg.Realtime.AllowedOrigins,
	}, repo, repo, relay, logger.Named("realtime"))

	// Push is optional
	var pusher domain.Pusher
	fcmClient, err := fcm.NewClient(ctx, logger, cfg.Push.CredentialsFile, cfg.Push.TopicPrefix)
	if err != nil {
		logger.Warn("Failed to initialize Firebase client - push notifications will be disabled", zap.Error(err))
	} else {
		pusher = fcmClient
		logger.Info("Firebase client initialized")
	}

	archive, err := initArchive(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize archive storage", zap.Error(err))
	}

	notificationService := domain.NewNotificationService(repo, hub, pusher, logger.Named("notifications"))

	var jwtManager *auth.JWTManager
	if cfg.Admin.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.Admin.JWTSecret, adminTokenExpiry)
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set - admin notification API is unauthenticated")
	}

	router := api.NewRouter(
		api.NewNotificationHandler(notificationService, logger),
		api.NewHealthHandler(repo, hub),
		jwtManager,
		cfg.Realtime.AllowedOrigins,
		logger,
	)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	go hub.Run(workerCtx)
	repo.StartCleanupWorker(workerCtx, repository.CleanupOptions{
		Interval:   cfg.Retention.CleanupInterval,
		Retention:  cfg.Retention.ArchiveAfter,
		StaleAfter: 3 * cfg.Realtime.HeartbeatInterval,
		Archive:    archive,
	}, logger.Named("cleanup"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := hub.ListenAndServe(":" + cfg.Realtime.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Notification socket server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("Notification socket shutdown error", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// issueAdminToken writes a signed admin token for subject to w.
func issueAdminToken(w io.Writer, secret, subject string) error {
	if secret == "" {
		return errors.New("ADMIN_JWT_SECRET is not set")
	}
	token, err := auth.NewJWTManager(secret, adminTokenExpiry).GenerateToken(subject, auth.RoleAdmin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Log.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func initArchive(ctx context.Context, cfg config.StorageConfig) (storage.FileStorage, error) {
	switch cfg.Type {
	case "s3", "r2":
		return storage.NewS3Storage(ctx, cfg)
	case "none":
		return nil, nil
	default:
		return storage.NewLocalFileStorage(cfg.LocalDir)
	}
}
