package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"orgmedia/internal/api"
	"orgmedia/internal/auth"
	"orgmedia/internal/config"
	"orgmedia/internal/db"
	"orgmedia/internal/jobs"
	"orgmedia/internal/pubsub"
	"orgmedia/internal/schema"
	"orgmedia/internal/service"
	"orgmedia/internal/storage"
	"orgmedia/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Check for migrate command
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrations(cfg.DB); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		os.Exit(0)
	}
	if len(os.Args) > 1 && os.Args[1] != "serve" {
		log.Fatalf("Unknown command: %s (use 'serve' or 'migrate')", os.Args[1])
	}

	logger, err := newLogger(cfg.App)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, cfg.DB.DSN, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	store, uploadsDir, err := newStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	// Pub/sub bus and WebSocket hub
	bus := pubsub.New(rdb, logger)
	hub := ws.NewHub(logger, pubsub.AllowedChannel)
	hub.SetReplayer(replayAdapter{streams: bus.Streams()})
	go hub.Run()
	defer hub.Close()
	bus.SetWSHub(hub)

	// Progress published by upload clients reaches dashboards through Redis
	go func() {
		if err := bus.Relay(ctx, pubsub.UploadPrefix+"*"); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Progress relay stopped", zap.Error(err))
		}
	}()

	// Background jobs
	jobServer, jobClient := jobs.NewJobServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, dbPool.Queries, store, bus, logger)

	policy, err := cfg.Upload.Policy()
	if err != nil {
		logger.Fatal("Invalid upload policy", zap.Error(err))
	}
	mediaSvc := service.NewMediaService(dbPool.Queries, store, policy, bus, logger)
	mediaSvc.SetJobClient(service.NewAsynqJobClient(jobClient))
	jobServer.SetInvalidator(mediaSvc)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()

	schemas := schema.NewCompilerWithCache(16)
	for _, s := range []map[string]interface{}{schema.AlbumCreate, schema.AdvertCreate} {
		if err := schemas.Prepare(ctx, s); err != nil {
			logger.Fatal("Failed to compile request schema", zap.Error(err))
		}
	}

	// HTTP router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Timeout middleware - skip for WebSocket upgrades and uploads
	r.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") ||
				strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
				next.ServeHTTP(w, req)
				return
			}
			timeout.ServeHTTP(w, req)
		})
	})

	r.Mount("/", api.Routes(api.Dependencies{
		Media:          mediaSvc,
		Schemas:        schemas,
		Hub:            hub,
		Auth:           auth.NewJWTConfig(cfg.Auth.JWTSecret),
		Log:            logger,
		UploadsDir:     uploadsDir,
		PublicPath:     cfg.Storage.PublicPath,
		MaxUploadBytes: policy.MaxBatchBytes,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server",
		zap.String("addr", cfg.App.Addr),
		zap.String("storage", cfg.Storage.Backend))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func newLogger(app config.AppConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if app.IsDev() {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(app.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// newStorage returns the configured backend and, for local storage, the
// directory served under the public path.
func newStorage(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Storage, string, error) {
	if cfg.Backend == config.StorageS3 {
		s3Store, err := storage.NewS3Storage(ctx, cfg.S3Options(), log)
		if err != nil {
			return nil, "", err
		}
		if err := s3Store.Health(ctx); err != nil {
			log.Warn("Bucket not reachable", zap.String("bucket", cfg.S3Bucket), zap.Error(err))
		}
		return s3Store, "", nil
	}

	local, err := storage.NewLocalStorage(cfg.RootDir, cfg.PublicPath)
	if err != nil {
		return nil, "", err
	}
	return local, local.Root(), nil
}

// replayAdapter adapts pubsub.Streams to ws.Replayer
type replayAdapter struct {
	streams *pubsub.Streams
}

func (a replayAdapter) Replay(ctx context.Context, channel, afterID string, limit int64) ([]ws.StreamEvent, error) {
	events, err := a.streams.Replay(ctx, channel, afterID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]ws.StreamEvent, len(events))
	for i, e := range events {
		out[i] = ws.StreamEvent{
			Channel:   e.Channel,
			ID:        e.ID,
			Event:     e.Event,
			Timestamp: e.Timestamp,
		}
	}
	return out, nil
}
