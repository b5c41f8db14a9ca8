package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harborline/checkout-engine/api/routes"
	"github.com/harborline/checkout-engine/internal/payments"
	"github.com/harborline/checkout-engine/internal/payments/squaregw"
	"github.com/harborline/checkout-engine/internal/registry"
	"github.com/harborline/checkout-engine/internal/rules"
	"github.com/harborline/checkout-engine/internal/shipping"
	"github.com/harborline/checkout-engine/internal/totals"
	"github.com/harborline/checkout-engine/pkg/config"
	"github.com/harborline/checkout-engine/pkg/db"
	"github.com/harborline/checkout-engine/pkg/enums"
	"github.com/harborline/checkout-engine/pkg/events"
	"github.com/harborline/checkout-engine/pkg/logger"
	"github.com/harborline/checkout-engine/pkg/metrics"
	"github.com/harborline/checkout-engine/pkg/migrate"
	"github.com/harborline/checkout-engine/pkg/pubsub"
	"github.com/harborline/checkout-engine/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(promRegistry)

	var publisher events.Publisher = events.NoopPublisher{}
	var eventsPinger redis.Pinger
	if cfg.GCP.ProjectID != "" {
		psClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher, err = events.NewPubSubPublisher(psClient.PaymentEventsPublisher(), logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create event publisher", err)
			os.Exit(1)
		}
		eventsPinger = psClient
	} else {
		logg.Warn(context.Background(), "no gcp project configured, payment events disabled")
	}

	registryService, err := registry.NewService(registry.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create module registry", err)
		os.Exit(1)
	}

	rulesService, err := rules.NewService(rules.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create rule evaluator", err)
		os.Exit(1)
	}

	adapters := registry.NewAdapterRegistry()
	if err := adapters.Register(enums.ModuleKindShipping, shipping.AdapterCodeFlatRate, shipping.NewFlatRateAdapter()); err != nil {
		logg.Error(context.Background(), "failed to register flat rate adapter", err)
		os.Exit(1)
	}
	if err := adapters.Register(enums.ModuleKindShipping, shipping.AdapterCodeTableRate, shipping.NewTableRateAdapter()); err != nil {
		logg.Error(context.Background(), "failed to register table rate adapter", err)
		os.Exit(1)
	}
	if cfg.Square.AccessToken != "" {
		squareGateway, err := squaregw.New(cfg.Square, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create square gateway", err)
			os.Exit(1)
		}
		if err := adapters.Register(enums.ModuleKindPayment, squaregw.AdapterCode, squareGateway); err != nil {
			logg.Error(context.Background(), "failed to register square gateway", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "no square credentials configured, square payments disabled")
	}

	shippingService, err := shipping.NewService(registryService, adapters, cfg.Shipping.ModuleTimeout, logg, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	totalsService, err := totals.NewService(registryService, rulesService, logg, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create totals service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		payments.NewRepository(dbClient.DB()),
		registryService,
		adapters,
		redisClient,
		publisher,
		logg,
		engineMetrics,
		cfg.Payments.IdempotencyWindow,
		cfg.Payments.GatewayTimeout,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			EventsP:  eventsPinger,
			Gatherer: promRegistry,
			Shipping: shippingService,
			Totals:   totalsService,
			Payments: paymentsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
