package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/settlement/internal/bootstrap"
	"github.com/cassiomorais/settlement/internal/controller"
	"github.com/cassiomorais/settlement/internal/repository/postgres"
	"github.com/cassiomorais/settlement/internal/service"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/cassiomorais/settlement/pkg/retry"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "settlement-api", "settlement")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	orderRepo := postgres.NewOrderRepository(app.Pool)
	memberRepo := postgres.NewMemberRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Services ---
	queryRetry := retry.Config{
		MaxAttempts:  app.Config.Order.QueryMaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
	settlementSvc := service.NewSettlementService(
		orderRepo, memberRepo, outboxRepo, txManager, app.Gateway, app.Metrics, queryRetry)
	orderSvc := service.NewOrderService(
		orderRepo, memberRepo, outboxRepo, txManager, settlementSvc, app.Gateway,
		app.Metrics, app.Config.Order.ExpiryTTL)
	notificationSvc := service.NewNotificationService(
		wechat.NewCallbackVerifier(app.Keys),
		wechat.NewResourceDecryptor(app.Keys),
		settlementSvc, app.Metrics)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:                app.Pool,
		RedisClient:         app.Redis,
		OrderService:        orderSvc,
		NotificationService: notificationSvc,
		Metrics:             app.Metrics,
		CORSConfig:          app.Config.Server.CORS,
		RateLimitPerMinute:  app.Config.Server.RateLimit,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
