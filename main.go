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

	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/database"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/service"
	"github.com/gogotex/gogotex/backend/go-collab/internal/presence"
	"github.com/gogotex/gogotex/backend/go-collab/internal/protocol"
	"github.com/gogotex/gogotex/backend/go-collab/internal/room"
	"github.com/gogotex/gogotex/backend/go-collab/internal/storage"
	"github.com/gogotex/gogotex/backend/go-collab/internal/ws"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetFormat(os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: store=%s archive=%v redis=%v rate_limit=%v",
		cfg.Store.Backend, cfg.Archive.Enabled, cfg.Redis.Host != "", cfg.RateLimit.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("connected to Redis: %s", cfg.Redis.Addr())
		}
		defer func() { _ = redisClient.Close() }()
	}

	opts := []service.Option{service.WithTimeout(cfg.Store.Timeout)}
	if mc := storage.FromArchiveConfig(cfg.Archive); mc != nil {
		archive, err := storage.NewMinIOStorage(ctx, mc)
		if err != nil {
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			opts = append(opts, service.WithArchive(archive))
			logger.Infof("archiving snapshots to bucket %s", mc.Bucket)
		}
	}

	svc, cleanup, err := buildService(ctx, cfg, redisClient, opts)
	if err != nil {
		logger.Fatalf("document store: %v", err)
	}
	defer cleanup()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	rooms := room.NewManager(presence.NewRegistry())
	wsHandler := ws.NewHandler(ctx, rooms, svc, ws.Config{
		SendBuffer:      cfg.Session.SendBuffer,
		MaxMessageBytes: cfg.Session.MaxMessageBytes,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Engine:          protocol.OptionsFromConfig(cfg.Session),
	})

	r := newRouter(cfg, svc, wsHandler, redisClient)
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("collab service listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	// hijacked websocket connections are not tracked by http.Server
	wsHandler.Close()
}

// buildService selects the document store backend. The returned cleanup
// releases backend connections.
func buildService(ctx context.Context, cfg *config.Config, redisClient *redis.Client, opts []service.Option) (*service.Service, func(), error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case config.BackendMongo:
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB, database.DefaultBackoff)
		if err != nil {
			return nil, noop, err
		}
		col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
		svc, err := service.NewMongoService(ctx, col, opts...)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, noop, err
		}
		logger.Infof("using MongoDB collection %s.%s", cfg.MongoDB.Database, cfg.MongoDB.Collection)
		return svc, func() { _ = client.Disconnect(context.Background()) }, nil
	case config.BackendRedis:
		if redisClient == nil {
			return nil, noop, fmt.Errorf("redis backend selected without REDIS_HOST")
		}
		logger.Infof("using Redis document store with prefix %q", cfg.Redis.Prefix)
		return service.NewRedisService(redisClient, cfg.Redis.Prefix, opts...), noop, nil
	default:
		logger.Warn("using in-memory document store; documents do not survive a restart")
		return service.NewMemoryService(opts...), noop, nil
	}
}
