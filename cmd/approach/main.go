package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/sbs-approach/internal/airspace"
	"github.com/saviobatista/sbs-approach/internal/announce"
	"github.com/saviobatista/sbs-approach/internal/api"
	"github.com/saviobatista/sbs-approach/internal/capture"
	"github.com/saviobatista/sbs-approach/internal/config"
	"github.com/saviobatista/sbs-approach/internal/db"
	"github.com/saviobatista/sbs-approach/internal/db/migrations"
	"github.com/saviobatista/sbs-approach/internal/display"
	"github.com/saviobatista/sbs-approach/internal/feed"
	"github.com/saviobatista/sbs-approach/internal/ingest"
	"github.com/saviobatista/sbs-approach/internal/nats"
	"github.com/saviobatista/sbs-approach/internal/parser"
	"github.com/saviobatista/sbs-approach/internal/redis"
	"github.com/saviobatista/sbs-approach/internal/stats"
	"github.com/saviobatista/sbs-approach/internal/tracker"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/internal/watchdog"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

const (
	statsLogInterval     = time.Minute
	statsPersistInterval = 5 * time.Minute

	// drainTimeout bounds the last announcer pass and the queue flush
	drainTimeout = 30 * time.Second

	// sentinelTTL is how long a Redis sentinel key outlives its last refresh
	sentinelTTL = 5 * watchdog.DefaultPeriod
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", logger.Error(err))
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		log.Error("Stopped with error", logger.Error(err))
		a.close()
		os.Exit(1)
	}
}

// RouteLoader reads the shared route table. redis.Client implements it.
type RouteLoader interface {
	LoadRoutes(ctx context.Context) (map[string]string, error)
}

// loadOrigins reads the routes file, falling back to the shared store when
// the file does not exist. A missing table is not an error.
func loadOrigins(ctx context.Context, path string, store RouteLoader, log *logger.Logger) (airspace.Origins, error) {
	if _, err := os.Stat(path); err == nil || store == nil {
		origins, err := airspace.LoadOrigins(path)
		if err != nil {
			return airspace.Origins{}, err
		}
		log.Info("Loaded routes", logger.String("file", path), logger.Int("routes", origins.Len()))
		return origins, nil
	}

	routes, err := store.LoadRoutes(ctx)
	if err != nil {
		return airspace.Origins{}, err
	}
	log.Info("Loaded routes from Redis", logger.Int("routes", len(routes)))
	return airspace.NewOrigins(routes), nil
}

// app holds every long-lived component of the announcer
type app struct {
	cfg    *config.Config
	logger *logger.Logger

	stats    *stats.Stats
	registry *airspace.Registry
	queue    *announce.Queue
	tracker  *tracker.Tracker
	monitor  *watchdog.Monitor
	source   ingest.Source
	board    display.Board

	natsClient  *nats.Client
	redisClient *redis.Client
	dbClient    *db.Client
	closeOnce   sync.Once
	closers     []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		logger: log,
		stats:  stats.New(log),
		queue:  announce.NewQueue(cfg.QueueSize),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if err := a.connect(ctx); err != nil {
		return nil, err
	}

	var routeStore RouteLoader
	if a.redisClient != nil {
		routeStore = a.redisClient
	}
	origins, err := loadOrigins(ctx, cfg.RoutesFile, routeStore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	a.registry, err = airspace.NewRegistry(airspace.Config{
		Corridor:   cfg.Corridor,
		Origins:    origins,
		StaleAfter: cfg.StaleAfter,
		Logger:     log,
		Recorder:   a.stats,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	assembler := parser.NewAssembler()
	a.tracker = tracker.New(a.registry, a.queue, cfg.StaleAfter, log).WithPruner(assembler)
	if a.natsClient != nil {
		a.tracker.WithPublisher(a.natsClient)
	}

	if a.source, err = a.newSource(assembler); err != nil {
		return nil, err
	}

	sentinel, err := a.newSentinel()
	if err != nil {
		return nil, err
	}
	a.monitor = watchdog.NewMonitor(sentinel, watchdog.WithLogger(log))

	if a.board, err = newBoard(cfg.Board, log); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.board.Close)

	return a, nil
}

// connect opens the optional NATS, Redis and Postgres connections
func (a *app) connect(ctx context.Context) error {
	if a.cfg.NATSURL != "" {
		client, err := nats.New(a.cfg.NATSURL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create NATS client: %w", err)
		}
		a.natsClient = client
		a.closers = append(a.closers, func() error { client.Close(); return nil })
	}

	if a.cfg.RedisAddr != "" {
		client, err := redis.New(a.cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to create Redis client: %w", err)
		}
		a.redisClient = client
		a.closers = append(a.closers, client.Close)
	}

	if a.cfg.DBConnStr != "" {
		client, err := db.New(a.cfg.DBConnStr)
		if err != nil {
			return fmt.Errorf("failed to create database client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx); err != nil {
			return err
		}
		migrator := migrations.New(client.DB()).WithLogger(a.logger)
		if err := migrator.Migrate(ctx, migrations.All); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		a.dbClient = client
		a.stats.SetStore(client)
	}
	return nil
}

func (a *app) newSource(assembler *parser.Assembler) (ingest.Source, error) {
	switch a.cfg.IngestMode {
	case config.IngestSBS:
		reader := capture.New(a.cfg.Sources, a.logger)
		return ingest.NewSBS(reader, assembler, a.stats, a.logger), nil
	case config.IngestJSON:
		return feed.NewPoller(a.cfg.FeedURL, a.cfg.PollInterval, a.logger), nil
	case config.IngestNATS:
		if a.natsClient == nil {
			return nil, errors.New("NATS ingest needs NATS_URL")
		}
		return ingest.NewNATS(a.natsClient, a.logger), nil
	default:
		return nil, fmt.Errorf("unsupported ingest mode: %s", a.cfg.IngestMode)
	}
}

func (a *app) newSentinel() (watchdog.Sentinel, error) {
	switch {
	case a.cfg.WatchdogFile != "":
		s, err := watchdog.OpenFileSentinel(a.cfg.WatchdogFile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case a.cfg.WatchdogKey != "":
		if a.redisClient == nil {
			return nil, errors.New("WATCHDOG_KEY needs REDIS_ADDR")
		}
		return redis.NewSentinel(a.redisClient, a.cfg.WatchdogKey, sentinelTTL), nil
	default:
		return watchdog.NopSentinel{}, nil
	}
}

func newBoard(kind string, log *logger.Logger) (display.Board, error) {
	switch kind {
	case config.BoardTerminal:
		board, err := display.NewTerminalBoard()
		if err != nil {
			return nil, fmt.Errorf("failed to open terminal board: %w", err)
		}
		return board, nil
	case config.BoardLog:
		return display.NewLogBoard(log, nil), nil
	default:
		return nil, fmt.Errorf("unsupported board: %s", kind)
	}
}

// run starts every task and blocks until ctx is done or a task fails.
// Shutdown stops ingestion first, announces whatever is still due and waits
// for the board to show it before stopping the remaining tasks.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(context.Background())
	ingestCtx, stopIngest := context.WithCancel(gctx)
	defer stopIngest()
	workCtx, stopWork := context.WithCancel(gctx)
	defer stopWork()

	// Ingestion is not registered: an empty sky delivers no reports
	announcerTask := a.monitor.Register("announcer", 3*a.cfg.AnnounceEvery)
	evictorTask := a.monitor.Register("evictor", 3*a.cfg.EvictEvery)
	presenterTask := a.monitor.Register("presenter", 3*a.cfg.ShowFor)

	var ingesting sync.WaitGroup
	ingesting.Add(2)
	g.Go(func() error {
		defer ingesting.Done()
		return a.source.Run(ingestCtx, func(r types.PositionReport) {
			_ = a.tracker.Ingest(r)
		})
	})
	g.Go(func() error {
		defer ingesting.Done()
		return a.tracker.RunAnnouncer(ingestCtx, a.cfg.AnnounceEvery, announcerTask)
	})

	g.Go(func() error {
		return a.tracker.RunEvictor(workCtx, a.cfg.EvictEvery, evictorTask)
	})
	g.Go(func() error {
		return display.NewPresenter(a.board, a.queue, a.cfg.ShowFor, a.logger).
			WithTask(presenterTask).
			Run(workCtx)
	})
	if tb, ok := a.board.(*display.TerminalBoard); ok {
		g.Go(func() error { return tb.Run(workCtx) })
	}
	g.Go(func() error { return a.monitor.Run(workCtx) })
	g.Go(func() error {
		a.stats.StartLogging(workCtx, statsLogInterval)
		return nil
	})
	if a.dbClient != nil {
		g.Go(func() error {
			a.stats.StartPersistence(workCtx, statsPersistInterval, stats.DefaultRetention)
			return nil
		})
	}
	if a.cfg.HTTPAddr != "" {
		router := api.NewRouter(a.registry, a.stats, a.monitor, a.logger).
			WithMetrics(stats.NewRegistry(a.stats))
		g.Go(func() error { return api.Serve(workCtx, a.cfg.HTTPAddr, router.Routes(), a.logger) })
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down")
		case <-gctx.Done():
		}
		stopIngest()
		ingesting.Wait()
		if gctx.Err() == nil {
			a.drain()
		}
		stopWork()
		return nil
	})

	a.logger.Info("Announcer started",
		logger.String("ingest", a.cfg.IngestMode),
		logger.String("board", a.cfg.Board),
		logger.Int("gates", len(a.cfg.Corridor.Gates)))
	return g.Wait()
}

// drain runs a final announcer pass and waits for the queue to empty
func (a *app) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if n, err := a.tracker.Announce(ctx); err != nil {
		a.logger.Warn("Final announcer pass incomplete",
			logger.Int("queued", n),
			logger.Int("unqueued", a.tracker.Backlog()),
			logger.Error(err))
	} else if n > 0 {
		a.logger.Info("Final announcer pass", logger.Int("queued", n))
	}

	a.queue.Close()
	if err := a.queue.Flush(ctx); err != nil {
		a.logger.Warn("Announcements left unshown", logger.Int("remaining", a.queue.Len()), logger.Error(err))
	}
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.logger.Warn("Failed to close resource", logger.Error(err))
			}
		}
	})
}
