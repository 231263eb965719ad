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

	"ms-booking/internal/analytics"
	"ms-booking/internal/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/checkin"
	"ms-booking/internal/clock"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/events"
	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/reservation"
	resdb "ms-booking/internal/reservation/db"
	resredis "ms-booking/internal/reservation/redis"
	"ms-booking/internal/sse"
	ticketsdb "ms-booking/internal/tickets/db"
	"ms-booking/internal/tickets/qr"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, falling back to polling only: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func newPublisher(cfg *config.Config, log *logger.Logger) events.Publisher {
	switch cfg.NotifyTransport {
	case "kafka":
		if err := events.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		log.Info("KAFKA", fmt.Sprintf("Publishing notifications to %v", cfg.Kafka.Brokers))
		return events.NewKafkaPublisher(cfg.Kafka.Brokers)
	case "rabbitmq":
		p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Error("AMQP", fmt.Sprintf("RabbitMQ unavailable, notifications disabled: %v", err))
			return events.NopPublisher{}
		}
		log.Info("AMQP", fmt.Sprintf("Publishing notifications to exchange %s", cfg.AMQP.Exchange))
		return p
	default:
		log.Info("APP", "Notifications disabled")
		return events.NopPublisher{}
	}
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.OIDCIssuer, err))
		}
		log.Info("AUTH", "Verifying tokens against "+cfg.OIDCIssuer)
		return v
	}
	if cfg.JWTSecret == "" {
		log.Fatal("CONFIG", "either OIDC_ISSUER or JWT_SECRET must be set")
	}
	log.Info("AUTH", "Verifying HS256 tokens with shared secret")
	return auth.NewHMACVerifier(cfg.JWTSecret)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Info("APP", "Starting Booking Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		runner.Close()
	}

	clk := clock.NewSystem()
	publisher := newPublisher(cfg, log)
	defer publisher.Close()
	notifier := events.NewNotifier(publisher, cfg.Kafka.Topics, log)

	ledger := inventory.NewLedger(bunDB, clk, log)
	catalog := inventory.NewCatalog(bunDB, clk, log)

	storeOpts := []reservation.Option{
		reservation.WithHoldDuration(cfg.Reservation.HoldDuration),
		reservation.WithNotifier(notifier),
	}
	reaperOpts := []reservation.ReaperOption{
		reservation.WithBatchSize(cfg.Reservation.ReaperBatch),
		reservation.WithAuditor(ledger),
	}

	var holds *resredis.HoldTracker
	if cfg.Redis.Enabled {
		if client := connectRedis(ctx, cfg.Redis, log); client != nil {
			defer client.Close()
			holds = resredis.NewHoldTracker(client, log)
			storeOpts = append(storeOpts, reservation.WithHoldTracker(holds))
			reaperOpts = append(reaperOpts, reservation.WithSweepLock(resredis.NewSweepLock(client, cfg.Reservation.ReaperLockTTL)))
		}
	}

	store := reservation.NewStore(&resdb.DB{Bun: bunDB}, ledger, clk, log, storeOpts...)
	reaper := reservation.NewReaper(store, log, reaperOpts...)

	finalizer := booking.NewFinalizer(&bookingdb.DB{Bun: bunDB}, store, ledger, clk, log, booking.WithNotifier(notifier))

	if cfg.QRSecret == "" {
		log.Warn("CONFIG", "QR_SECRET not set, QR codes will not survive a restart")
		cfg.QRSecret = fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
	}
	qrGen := qr.NewGenerator(cfg.QRSecret)
	feed := sse.NewCheckInEmitter()
	tickets := &ticketsdb.DB{Bun: bunDB}
	gate := checkin.NewGate(tickets, clk, log,
		checkin.WithNotifier(notifier),
		checkin.WithNotifier(feed),
		checkin.WithPayloadOpener(qrGen),
	)

	handler := &api.Handler{
		Catalog:      catalog,
		Ledger:       ledger,
		Reservations: store,
		Bookings:     finalizer,
		Gate:         gate,
		Tickets:      tickets,
		Stats:        analytics.NewService(analytics.NewDB(bunDB)),
		Sweeper:      reaper,
		Feed:         feed,
		QR:           qrGen,
		Logger:       log,
	}
	router := api.NewRouter(handler, newVerifier(ctx, cfg.Auth, log))

	if cfg.Reservation.ReaperInterval > 0 {
		go reaper.Run(ctx, cfg.Reservation.ReaperInterval)
	} else {
		log.Warn("REAPER", "periodic sweep disabled, relying on lazy expiry")
	}

	if holds != nil {
		if err := holds.EnableExpiryEvents(ctx); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
		}
		go holds.SubscribeExpirations(ctx, func(ctx context.Context, token string) {
			if _, err := store.ExpireByToken(ctx, token); err != nil {
				log.Error("REDIS", fmt.Sprintf("expire on key event failed: %v", err))
			}
		})
	}

	if cfg.NotifyTransport == "kafka" {
		consumer := events.NewPaymentConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentResults, cfg.Kafka.GroupID, finalizer, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("KAFKA", fmt.Sprintf("payment consumer stopped: %v", err))
			}
		}()
	}

	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		// no WriteTimeout: the check-in stream stays open
	}

	go func() {
		log.Info("HTTP", "Booking Service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}
