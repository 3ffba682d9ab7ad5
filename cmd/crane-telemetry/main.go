package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ladiesman540/crane-platform/internal/auth"
	"github.com/ladiesman540/crane-platform/internal/config"
	"github.com/ladiesman540/crane-platform/internal/httpapi"
	"github.com/ladiesman540/crane-platform/internal/ingest"
	"github.com/ladiesman540/crane-platform/internal/mqtt"
	"github.com/ladiesman540/crane-platform/internal/observability"
	"github.com/ladiesman540/crane-platform/internal/ratelimit"
	"github.com/ladiesman540/crane-platform/internal/realtime"
	"github.com/ladiesman540/crane-platform/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CRANE_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, promHandler, tracer, err := observability.Setup(ctx, cfg.OTel.ServiceName)
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry()

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	var (
		keyCache      auth.KeyCache = auth.NewMemoryCache(cfg.APIKey.CacheTTL)
		loginLimiter  ratelimit.Limiter
		ingestLimiter ratelimit.Limiter
	)
	loginCfg := ratelimit.LimiterConfig{RPS: cfg.RateLimit.LoginRPS, Burst: cfg.RateLimit.LoginBurst}
	ingestCfg := ratelimit.LimiterConfig{RPS: cfg.RateLimit.IngestRPS, Burst: cfg.RateLimit.IngestBurst}
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, limiter will fail open", "addr", addr, "error", err)
		}
		keyCache = auth.NewRedisCache(rdb, cfg.APIKey.CacheTTL)
		loginLimiter = ratelimit.NewRedis(rdb, loginCfg)
		ingestLimiter = ratelimit.NewRedis(rdb, ingestCfg)
		slog.Info("using redis for api key cache and rate limits", "addr", addr)
	} else {
		loginLimiter = ratelimit.NewLocal(loginCfg)
		ingestLimiter = ratelimit.NewLocal(ingestCfg)
	}

	hub := realtime.NewHub(cfg.Realtime.SendBuffer)
	engine := ingest.NewEngine(repo, hub)
	keys := auth.NewAPIKeyVerifier(repo, keyCache)
	authSvc := auth.NewService(repo, auth.NewTokens(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL))

	if cfg.MQTT.BrokerURL != "" {
		mq, err := startBridge(ctx, cfg.MQTT, keys, engine)
		if err != nil {
			slog.Error("mqtt bridge failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
	}

	srv, err := httpapi.New(httpapi.Options{
		Repo:           repo,
		Engine:         engine,
		Keys:           keys,
		Auth:           authSvc,
		Hub:            hub,
		Metrics:        promHandler,
		Tracer:         tracer,
		ServiceName:    cfg.OTel.ServiceName,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		LoginLimiter:   loginLimiter,
		IngestLimiter:  ingestLimiter,
	})
	if err != nil {
		slog.Error("http server setup failed", "error", err)
		os.Exit(1)
	}
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("crane-telemetry listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
}

// startBridge checks the bridge's API key before connecting, then feeds every
// message on the gateway topic through the ingest engine. The bridge
// re-verifies the key per message.
func startBridge(ctx context.Context, cfg config.MQTTConfig, keys *auth.APIKeyVerifier, engine *ingest.Engine) (*mqtt.Client, error) {
	key, err := keys.Verify(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	mq, err := mqtt.Connect(mqtt.Options{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, err
	}
	bridge := &ingest.Bridge{Engine: engine, Keys: keys, APIKey: cfg.APIKey, AllowRetains: cfg.AllowRetained}
	if err := mq.Subscribe(cfg.Topic, func(m mqtt.Message) {
		bridge.HandleMessage(ctx, m)
	}); err != nil {
		mq.Close()
		return nil, err
	}
	slog.Info("mqtt ingest subscribed", "topic", cfg.Topic, "key_id", key.ID, "label", key.Label)
	return mq, nil
}

func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
