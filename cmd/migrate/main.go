// migrate applies or rolls back the booking schema.
//
//	migrate            # up to latest
//	migrate --down     # roll everything back
//	migrate --to 2     # move to a specific version
//	migrate --version  # print the current version
package main

import (
	"context"
	"fmt"
	"os"

	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"

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
	var (
		down        bool
		to          uint
		showVersion bool
		dsn         string
	)
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.BoolVar(&down, "down", false, "roll back all migrations")
	flagSet.UintVar(&to, "to", 0, "migrate up or down to this version")
	flagSet.BoolVar(&showVersion, "version", false, "print the current schema version and exit")
	flagSet.StringVar(&dsn, "dsn", "", "postgres DSN (default: $POSTGRES_DSN)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if dsn != "" {
		cfg.Database.DSN = dsn
	}

	log := logger.NewWriterLogger(os.Stdout)
	ctx := context.Background()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, log)
	defer runner.Close()
	if err := runner.Initialize(ctx); err != nil {
		return err
	}

	switch {
	case showVersion:
	case down:
		err = runner.MigrateDown()
	case flagSet.Changed("to"):
		err = runner.MigrateTo(to)
	default:
		err = runner.RunMigrations()
	}
	if err != nil {
		return err
	}

	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
