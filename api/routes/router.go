package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborline/checkout-engine/api/controllers"
	"github.com/harborline/checkout-engine/api/middleware"
	"github.com/harborline/checkout-engine/internal/payments"
	"github.com/harborline/checkout-engine/internal/shipping"
	"github.com/harborline/checkout-engine/internal/totals"
	"github.com/harborline/checkout-engine/pkg/config"
	"github.com/harborline/checkout-engine/pkg/db"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/redis"
)

// RouterParams bundles everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	EventsP  redis.Pinger
	Gatherer prometheus.Gatherer

	Shipping shipping.Service
	Totals   totals.Service
	Payments payments.Service
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	var redisPinger redis.Pinger
	if p.Redis != nil {
		redisPinger = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, redisPinger, p.EventsP))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	var idempotencyStore redis.IdempotencyStore
	if p.Redis != nil {
		idempotencyStore = p.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, p.Logger))

		r.Route("/quotes", func(r chi.Router) {
			r.Post("/", controllers.QuoteCreate(p.Shipping, p.Logger))
			r.Post("/select", controllers.QuoteSelect(p.Shipping, p.Logger))
		})

		r.Post("/totals", controllers.TotalsCompute(p.Totals, p.Logger))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.TransactionInit(p.Payments, p.Logger))
			r.Get("/", controllers.TransactionByOrder(p.Payments, p.Logger))
			r.Get("/{transactionId}", controllers.TransactionDetail(p.Payments, p.Logger))
			r.Post("/{transactionId}/capture", controllers.TransactionCapture(p.Payments, p.Logger))
			r.Post("/{transactionId}/refund", controllers.TransactionRefund(p.Payments, p.Logger))
			r.Post("/{transactionId}/reconcile", controllers.TransactionReconcile(p.Payments, p.Logger))
		})
	})

	return r
}
