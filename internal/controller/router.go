package controller

import (
	"time"

	"github.com/cassiomorais/settlement/internal/infrastructure/config"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/settlement/internal/middleware"
	"github.com/cassiomorais/settlement/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool                *pgxpool.Pool
	RedisClient         *redis.Client
	OrderService        *service.OrderService
	NotificationService *service.NotificationService
	Metrics             *observability.Metrics
	CORSConfig          config.CORSConfig
	RateLimitPerMinute  int
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	orderH := NewOrderController(deps.OrderService)
	notifyH := NewNotifyController(deps.NotificationService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Recharge
		r.Get("/recharge/packages", orderH.ListPackages)
		r.Post("/recharge/orders", orderH.CreateRecharge)

		// Membership
		r.Post("/membership/orders", orderH.CreateMembership)

		// Orders
		r.Get("/orders/{order_no}", orderH.GetOrder)
		r.Post("/orders/{order_no}/close", orderH.CloseOrder)
		r.Post("/orders/{order_no}/refund", orderH.RefundOrder)

		// Gateway webhook. The gateway treats 429 like any other
		// failure and redelivers later.
		if deps.RateLimitPerMinute > 0 {
			r.With(customMW.RateLimit(deps.RateLimitPerMinute)).
				Post("/payments/notify", notifyH.HandleNotify)
		} else {
			r.Post("/payments/notify", notifyH.HandleNotify)
		}
	})

	return r
}
