package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/sbs-approach/internal/redis"
	"github.com/saviobatista/sbs-approach/internal/routes"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// Harvest runs one harvest. routes.Harvester implements it.
type Harvest interface {
	Run(ctx context.Context) (map[string]string, error)
}

// harvestLoop harvests once, then every interval until ctx is done when
// every is positive. A failed harvest in the loop is logged and retried on
// the next tick; in one-shot mode it is returned.
func harvestLoop(ctx context.Context, h Harvest, every time.Duration, log *logger.Logger) error {
	if _, err := h.Run(ctx); err != nil {
		if every <= 0 {
			return err
		}
		log.Error("Harvest failed", logger.Error(err))
	}
	if every <= 0 {
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := h.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("Harvest failed", logger.Error(err))
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	url := flag.String("url", envOr("ROUTES_URL", routes.DefaultURL), "Flight status URL")
	file := flag.String("file", envOr("ROUTES_FILE", "sfo-routes.json"), "Routes file to update")
	redisAddr := flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address to mirror routes to (optional)")
	every := flag.Duration("every", 0, "Harvest repeatedly at this interval instead of once")
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:  envOr("LOG_LEVEL", "info"),
		Format: envOr("LOG_FORMAT", "console"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	var store routes.Store
	if *redisAddr != "" {
		client, err := redis.New(*redisAddr)
		if err != nil {
			log.Error("Failed to create Redis client", logger.Error(err))
			os.Exit(1)
		}
		defer client.Close()
		store = client
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := routes.NewHarvester(*url, *file, store, log)
	if err := harvestLoop(ctx, h, *every, log); err != nil {
		log.Error("Harvest failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
