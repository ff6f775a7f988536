package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/saviobatista/sbs-approach/internal/db/migrations"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// Actions
const (
	actionMigrate  = "migrate"
	actionRollback = "rollback"
	actionStatus   = "status"
)

func action(rollback, status bool) (string, error) {
	switch {
	case rollback && status:
		return "", errors.New("-rollback and -status are mutually exclusive")
	case rollback:
		return actionRollback, nil
	case status:
		return actionStatus, nil
	default:
		return actionMigrate, nil
	}
}

// runMigrations performs act against db, writing status lines to out
func runMigrations(ctx context.Context, db *sql.DB, act string, out io.Writer, log *logger.Logger) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrator := migrations.New(db).WithLogger(log)

	switch act {
	case actionRollback:
		err := migrator.Rollback(ctx, migrations.All)
		if errors.Is(err, migrations.ErrNothingToRollback) {
			log.Info("Nothing to roll back")
			return nil
		}
		return err
	case actionStatus:
		status, err := migrator.Status(ctx, migrations.All)
		if err != nil {
			return err
		}
		for _, s := range status {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Fprintf(out, "%-8s %s\n", mark, s.Name)
		}
		return nil
	default:
		return migrator.Migrate(ctx, migrations.All)
	}
}

func main() {
	dbURL := flag.String("db", os.Getenv("DB_CONN_STR"), "Database connection string (default $DB_CONN_STR)")
	rollback := flag.Bool("rollback", false, "Rollback the last migration")
	status := flag.Bool("status", false, "List migrations and whether they are applied")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	act, err := action(*rollback, *status)
	if err != nil {
		log.Error("Invalid flags", logger.Error(err))
		os.Exit(2)
	}
	if *dbURL == "" {
		log.Error("No database given, set -db or DB_CONN_STR")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = runMigrations(ctx, db, act, os.Stdout, log)
	cancel()
	db.Close()
	if err != nil {
		log.Error("Migration failed", logger.String("action", act), logger.Error(err))
		os.Exit(1)
	}
}
