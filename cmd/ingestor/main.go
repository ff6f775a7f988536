package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/sbs-approach/internal/capture"
	"github.com/saviobatista/sbs-approach/internal/config"
	"github.com/saviobatista/sbs-approach/internal/ingest"
	"github.com/saviobatista/sbs-approach/internal/nats"
	"github.com/saviobatista/sbs-approach/internal/parser"
	"github.com/saviobatista/sbs-approach/internal/stats"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

const defaultNATSURL = "nats://nats:4222"

// ReportPublisher sends reports to the announcers. nats.Client implements it.
type ReportPublisher interface {
	PublishReport(env *types.ReportEnvelope) error
}

// Forwarder wraps every assembled report in an envelope and publishes it
type Forwarder struct {
	publisher ReportPublisher
	source    string
	now       func() time.Time
	logger    *logger.Logger

	published uint64
	failed    uint64
}

// NewForwarder creates a forwarder stamping envelopes with source
func NewForwarder(publisher ReportPublisher, source string, log *logger.Logger) *Forwarder {
	return &Forwarder{
		publisher: publisher,
		source:    source,
		now:       time.Now,
		logger:    log.Named("forwarder"),
	}
}

// Handle publishes one report. Failures are logged and counted, never fatal.
func (f *Forwarder) Handle(r types.PositionReport) {
	env := &types.ReportEnvelope{
		Report:     r,
		ReceivedAt: f.now().UTC(),
		Source:     f.source,
	}
	if err := f.publisher.PublishReport(env); err != nil {
		atomic.AddUint64(&f.failed, 1)
		f.logger.Warn("Failed to publish report",
			logger.String("id", r.AircraftID),
			logger.Error(err))
		return
	}
	atomic.AddUint64(&f.published, 1)
}

// Counts returns how many reports were published and how many failed
func (f *Forwarder) Counts() (published, failed uint64) {
	return atomic.LoadUint64(&f.published), atomic.LoadUint64(&f.failed)
}

// run forwards reports from source until ctx is done, pruning partial
// assembler state every pruneEvery
func run(ctx context.Context, source ingest.Source, fwd *Forwarder, assembler *parser.Assembler, pruneEvery, maxAge time.Duration, log *logger.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return source.Run(gctx, fwd.Handle)
	})
	g.Go(func() error {
		ticker := time.NewTicker(pruneEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := assembler.Prune(maxAge); n > 0 {
					published, failed := fwd.Counts()
					log.Debug("Pruned partial aircraft",
						logger.Int("pruned", n),
						logger.Int("tracked", assembler.Len()),
						logger.Uint64("published", published),
						logger.Uint64("failed", failed))
				}
			}
		}
	})

	return g.Wait()
}

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
	log = log.Named("ingestor")

	natsURL := cfg.NATSURL
	if natsURL == "" {
		natsURL = defaultNATSURL
	}
	client, err := nats.New(natsURL, log)
	if err != nil {
		log.Error("Failed to create NATS client", logger.Error(err))
		os.Exit(1)
	}
	defer client.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "ingestor"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counters := stats.New(log)
	go counters.StartLogging(ctx, time.Minute)

	assembler := parser.NewAssembler()
	source := ingest.NewSBS(capture.New(cfg.Sources, log), assembler, counters, log)
	fwd := NewForwarder(client, hostname, log)

	log.Info("Forwarding reports",
		logger.Strings("sources", cfg.Sources),
		logger.String("nats", natsURL),
		logger.String("subject", nats.SubjectReports))

	if err := run(ctx, source, fwd, assembler, cfg.EvictEvery, cfg.StaleAfter, log); err != nil {
		log.Error("Ingestor stopped with error", logger.Error(err))
		client.Close()
		os.Exit(1)
	}
	published, failed := fwd.Counts()
	log.Info("Shutting down", logger.Uint64("published", published), logger.Uint64("failed", failed))
}
