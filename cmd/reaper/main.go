// reaper runs the expiry sweep outside the API process. With --once it
// sweeps a single time and exits, which suits a cron job.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-booking/internal/clock"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/events"
	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/reservation"
	resdb "ms-booking/internal/reservation/db"
	resredis "ms-booking/internal/reservation/redis"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.Load()

	var once bool
	flagSet := pflag.NewFlagSet("reaper", pflag.ContinueOnError)
	flagSet.BoolVar(&once, "once", false, "sweep once and exit")
	flagSet.DurationVar(&cfg.Reservation.ReaperInterval, "interval", cfg.Reservation.ReaperInterval, "time between sweeps")
	flagSet.IntVar(&cfg.Reservation.ReaperBatch, "batch", cfg.Reservation.ReaperBatch, "reservations released per sweep")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	log, err := logger.NewLogger(cfg.LogDir)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	clk := clock.NewSystem()
	ledger := inventory.NewLedger(bunDB, clk, log)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NotifyTransport == "kafka" {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers)
	}
	defer publisher.Close()

	store := reservation.NewStore(&resdb.DB{Bun: bunDB}, ledger, clk, log,
		reservation.WithNotifier(events.NewNotifier(publisher, cfg.Kafka.Topics, log)))

	opts := []reservation.ReaperOption{
		reservation.WithBatchSize(cfg.Reservation.ReaperBatch),
		reservation.WithAuditor(ledger),
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("sweep lock unavailable, running unguarded: %v", err))
		} else {
			opts = append(opts, reservation.WithSweepLock(resredis.NewSweepLock(client, cfg.Reservation.ReaperLockTTL)))
		}
	}
	reaper := reservation.NewReaper(store, log, opts...)

	if once || cfg.Reservation.ReaperInterval <= 0 {
		n, err := reaper.RunOnce(ctx)
		log.Info("REAPER", fmt.Sprintf("released %d reservations", n))
		return err
	}
	reaper.Run(ctx, cfg.Reservation.ReaperInterval)
	return nil
}
