package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cassiomorais/settlement/internal/infrastructure/config"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/settlement/internal/infrastructure/redis"
	"github.com/cassiomorais/settlement/internal/repository/postgres"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the shared process-level dependencies of the api and worker
// binaries.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Keys    *wechat.KeyMaterial
	Gateway *wechat.Client
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	keys, err := wechat.LoadKeyMaterial(wechat.KeyConfig{
		MerchantSerial:    cfg.Wechat.SerialNo,
		PrivateKeyPath:    cfg.Wechat.PrivateKeyPath,
		PlatformKeySerial: cfg.Wechat.PlatformKeyID,
		PlatformKeyPath:   cfg.Wechat.PlatformKeyPath,
		APIv3Key:          cfg.Wechat.APIv3Key,
	})
	if err != nil {
		return nil, fmt.Errorf("load gateway key material: %w", err)
	}
	logger.Info().Str("merchant_serial", cfg.Wechat.SerialNo).Msg("Gateway key material loaded")

	signer := wechat.NewRequestSigner(keys, cfg.Wechat.MchID)
	gateway := wechat.NewClient(signer, cfg.Wechat.AppID, cfg.Wechat.MchID, cfg.Wechat.NotifyURL,
		wechat.WithBaseURL(cfg.Wechat.BaseURL),
		wechat.WithHTTPClient(&http.Client{Timeout: cfg.Wechat.HTTPTimeout}),
		wechat.WithMetrics(metrics),
	)

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Keys:    keys,
		Gateway: gateway,
	}, nil
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
