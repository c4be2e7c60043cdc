package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gorilla/mux"
	"github.com/jogardn/food-storefront/internal/account"
	"github.com/jogardn/food-storefront/internal/auth"
	"github.com/jogardn/food-storefront/internal/cache"
	"github.com/jogardn/food-storefront/internal/catalog"
	"github.com/jogardn/food-storefront/internal/circuitbreaker"
	"github.com/jogardn/food-storefront/internal/config"
	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/httpapi"
	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/jogardn/food-storefront/internal/orders"
	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/jogardn/food-storefront/internal/pricing"
	"github.com/jogardn/food-storefront/internal/reaper"
	"github.com/jogardn/food-storefront/internal/store"
	"github.com/jogardn/food-storefront/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const paymentBreaker = "payment-provider"

type server struct {
	db       *sql.DB
	breakers *circuitbreaker.Manager
	logger   *logrus.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := cfg.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseDSN(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	st := store.New(db, logger)
	if err := st.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to create tables")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var catalogCache *cache.ReadThrough
	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("Redis unavailable, catalog reads go to the database")
	} else {
		defer redisClient.Close()
		catalogCache = cache.New(redisClient, logger)
		catalogCache.SetMetrics(m)
	}

	hub := websocket.NewHub(cfg.PublicBaseURL, logger)
	go hub.Run(ctx)

	var publisher events.Publisher = events.NewDirectPublisher(hub)
	if cfg.KafkaEnabled() {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		publisher = producer

		// Every instance serves its own websocket subscribers, so each one
		// needs the full event stream.
		hostname, _ := os.Hostname()
		consumer, err := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID+"-"+hostname, sarama.OffsetNewest, hub, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Order event consumer stopped")
			}
		}()
	} else {
		logger.Info("KAFKA_BROKERS not set, order events go straight to websocket subscribers")
	}
	publisher = events.NewMeteredPublisher(publisher, m)

	breakers := circuitbreaker.NewManager(logger)
	breaker := breakers.GetOrCreate(paymentBreaker, circuitbreaker.Config{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		MaxProbes:   1,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			m.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.BreakerState.WithLabelValues(paymentBreaker).Set(float64(circuitbreaker.StateClosed))

	var provider payment.Provider
	if cfg.PaymentMockURL != "" {
		logger.WithField("url", cfg.PaymentMockURL).Warn("Using the local payment mock")
		provider = payment.NewMockProvider(cfg.PaymentMockURL, logger)
	} else {
		provider = payment.NewStripeProvider(cfg.StripeSecretKey, logger)
	}
	provider = payment.NewGuardedProvider(provider, breaker)

	orderService := orders.NewService(orders.ServiceConfig{
		Resolver: pricing.NewResolver(st),
		Manager:  orders.NewManager(st, logger),
		Coordinator: orders.NewCoordinator(st, provider, orders.CheckoutConfig{
			Currency:      cfg.Currency,
			PublicBaseURL: cfg.PublicBaseURL,
			SessionTTL:    cfg.CheckoutSessionTTL,
		}, logger),
		Publisher: publisher,
		Mode:      cfg.CheckoutMode,
		Metrics:   m,
	}, logger)
	webhooks := orders.NewWebhookProcessor(payment.NewStripeVerifier(cfg.StripeWebhookSecret), st, publisher, logger)

	orderHandler := orders.NewHandler(orderService, orders.NewStatusService(st), webhooks, logger)
	orderHandler.SetWatcher(hub)
	orderHandler.SetMetrics(m)

	authenticator := auth.NewAuthenticator(cfg.AuthJWTSecret, logger)
	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx, 10*time.Minute)

	srv := &server{db: db, breakers: breakers, logger: logger}

	router := mux.NewRouter()
	router.Use(httpapi.Recover(logger))
	router.Use(httpapi.Logging(logger, m))
	router.HandleFunc("/health", srv.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler(registry)).Methods(http.MethodGet)

	catalog.NewHandler(catalog.NewService(st, catalogCache, logger), logger).RegisterRoutes(router)
	orderHandler.RegisterRoutes(router, func(next http.Handler) http.Handler {
		return limiter.Middleware(authenticator.Middleware(next))
	})
	account.NewHandler(account.NewService(st, logger), logger).RegisterRoutes(router, authenticator.Middleware)

	if cfg.ReapInterval > 0 {
		sweeper := reaper.NewSweeper(st, publisher, reaper.Config{PendingTTL: cfg.PendingOrderTTL}, logger)
		sweeper.SetMetrics(m)
		go sweeper.Run(ctx, cfg.ReapInterval)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.CORS(cfg.PublicBaseURL)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":          cfg.HTTPPort,
			"checkout_mode": cfg.CheckoutMode,
			"kafka":         cfg.KafkaEnabled(),
		}).Info("Starting storefront API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server gracefully stopped")
}

func (s *server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check: database unreachable")
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else if s.breakers.AnyOpen() {
		status = "degraded"
	}

	httpapi.RespondWithJSON(w, code, map[string]interface{}{
		"status":           status,
		"service":          "storefront-api",
		"circuit_breakers": s.breakers.Snapshots(),
	})
}
