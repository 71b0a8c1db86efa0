package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-payments/internal/api"
	"ms-payments/internal/auth"
	"ms-payments/internal/config"
	"ms-payments/internal/database/migrations"
	"ms-payments/internal/kafka"
	"ms-payments/internal/ledger"
	ledgerdb "ms-payments/internal/ledger/db"
	ledgerredis "ms-payments/internal/ledger/redis"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/orchestrator"
	"ms-payments/internal/provider"
	"ms-payments/internal/qr"
	"ms-payments/internal/registry"
	registrydb "ms-payments/internal/registry/db"
	"ms-payments/internal/sse"
	"ms-payments/internal/webhook"
)

// eventFanout forwards each ledger event to every configured sink: the
// Kafka producer for other services, the SSE emitter for live dashboards.
type eventFanout struct {
	sinks []ledger.EventPublisher
	log   *logger.Logger
}

func (f *eventFanout) PublishPaymentEvent(event models.PaymentEvent) error {
	for _, sink := range f.sinks {
		if err := sink.PublishPaymentEvent(event); err != nil {
			f.log.Warn("EVENTS", fmt.Sprintf("Event sink failed for %s on payment %s: %v", event.Type, event.PaymentID, err))
		}
	}
	return nil
}

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Payment Core initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := connectDatabase(cfg, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()

	// Event sinks: SSE always, Kafka when a broker is configured.
	emitter := sse.NewPaymentEventEmitter()
	fanout := &eventFanout{sinks: []ledger.EventPublisher{emitter}, log: log}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{
			cfg.Kafka.Topics.PaymentEvents,
			cfg.Kafka.Topics.OrderEvents,
		}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentEvents)
		defer producer.Close()
		fanout.sinks = append(fanout.sinks, producer)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	// Payment method providers
	settingsStore := &registrydb.DB{Bun: bunDB}
	reg := registry.NewRegistry(settingsStore, log)

	if stripeProvider, err := provider.NewStripeProvider(cfg.Provider.StripeSecretKey, log); err != nil {
		log.Warn("REGISTRY", fmt.Sprintf("Stripe provider not registered: %v", err))
	} else if err := reg.Register(stripeProvider); err != nil {
		log.Fatal("REGISTRY", fmt.Sprintf("Failed to register stripe provider: %v", err))
	}

	qrgen := qr.NewQRGenerator(cfg.Provider.QRSecret)
	bankTransfer := provider.NewBankTransferProvider(qrgen, log)
	if err := reg.Register(bankTransfer); err != nil {
		log.Fatal("REGISTRY", fmt.Sprintf("Failed to register bank transfer provider: %v", err))
	}

	// Ledger and orchestrator
	db := &ledgerdb.DB{Bun: bunDB}
	lock := ledgerredis.NewLock(redisClient, cfg.Redis.PaymentLockTTL)
	ledgerService := ledger.NewService(db, lock, reg, fanout, log)
	orchestratorService := orchestrator.NewService(ledgerService, db, reg, auth.Authorizer{}, log, cfg.Provider.CallTimeout)

	// Order-cancelled feed from the order service
	if cfg.Kafka.Enabled {
		orderConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrderEvents, cfg.Kafka.GroupID)
		defer orderConsumer.Close()
		orderHandler := kafka.NewOrderEventHandler(ledgerService, db, log)
		go orderConsumer.Start(orderHandler.Handle)
		log.Info("KAFKA", fmt.Sprintf("Order event consumer started on topic %s", cfg.Kafka.Topics.OrderEvents))
	}

	handler := api.NewHandler(reg, ledgerService, orchestratorService, db, log)
	sseHandler := api.NewSSEHandler(log, emitter)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public routes ---
	r.Get("/api/shops/{shopId}/payment-methods/available", handler.ListAvailableMethods)
	r.Get("/api/payments/{paymentId}/qr", handler.GetPaymentQR)

	// --- Protected routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
		log.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/shops/{shopId}/payment-methods", func(r chi.Router) {
				r.Get("/", handler.ListMethods)
				r.Put("/{methodName}", handler.SetMethodEnabled)
			})

			r.Route("/orders/{orderId}/payments", func(r chi.Router) {
				r.Post("/", handler.CreatePayments)
				r.Get("/", handler.GetOrderPayments)
				r.Post("/approve", handler.ApprovePayments)
				r.Post("/capture", handler.CapturePayments)
				r.Post("/cancel", handler.CancelPayments)
				r.Get("/stream", sseHandler.HandleOrderPayments)
			})

			r.Post("/payments/{paymentId}/refund", handler.RefundPayment)
			r.Get("/shops/{shopId}/payments/stream", sseHandler.HandleShopPayments)
		})
	})
	log.Info("ROUTER", "Payment routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Processor webhooks arrive on a separate listener so they are never
	// behind the operator auth middleware.
	gin.SetMode(gin.ReleaseMode)
	webhookRouter := gin.New()
	webhookRouter.Use(gin.Recovery())
	stripeWebhook := webhook.NewStripeHandler(ledgerService, log)
	webhookRouter.POST("/webhooks/stripe", stripeWebhook.HandleWebhook)

	webhookServer := &http.Server{
		Addr:    cfg.Server.WebhookPort,
		Handler: webhookRouter,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Payment Core running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Webhook listener running on %s", cfg.Server.WebhookPort))
		if err := webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("Webhook server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := webhookServer.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Webhook server shutdown failed: %v", err))
	}
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Payment Core shutdown complete")
	}
}
