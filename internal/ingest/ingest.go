package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/sbs-approach/internal/capture"
	"github.com/saviobatista/sbs-approach/internal/parser"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// Source produces position reports until ctx is done. feed.Poller
// implements it too.
type Source interface {
	Run(ctx context.Context, handle func(types.PositionReport)) error
}

// Counter counts SBS lines by transmission type. stats.Stats implements it.
type Counter interface {
	IncrementMessageType(msgType int)
}

type nopCounter struct{}

func (nopCounter) IncrementMessageType(int) {}

// LineReader supplies raw SBS lines. capture.Capture implements it.
type LineReader interface {
	Start() error
	Stop()
	Messages() <-chan capture.Message
}

// SBS turns BaseStation lines into position reports
type SBS struct {
	reader    LineReader
	assembler *parser.Assembler
	counter   Counter
	logger    *logger.Logger
}

// NewSBS creates an SBS source. counter may be nil.
func NewSBS(reader LineReader, assembler *parser.Assembler, counter Counter, log *logger.Logger) *SBS {
	if counter == nil {
		counter = nopCounter{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SBS{
		reader:    reader,
		assembler: assembler,
		counter:   counter,
		logger:    log.Named("sbs"),
	}
}

// Process parses one line and feeds it to the assembler
func (s *SBS) Process(msg capture.Message) (types.PositionReport, bool) {
	parsed, err := parser.ParseMessage(msg.Line, msg.Timestamp)
	if err != nil {
		s.logger.Debug("Dropping line",
			logger.String("source", msg.Source),
			logger.String("line", msg.Line),
			logger.Error(err))
		return types.PositionReport{}, false
	}
	if parsed == nil {
		s.counter.IncrementMessageType(0)
		return types.PositionReport{}, false
	}
	s.counter.IncrementMessageType(int(parsed.TransmissionType))
	return s.assembler.Add(parsed)
}

// Run reads lines until ctx is done
func (s *SBS) Run(ctx context.Context, handle func(types.PositionReport)) error {
	if err := s.reader.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	defer s.reader.Stop()

	msgs := s.reader.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if report, ok := s.Process(msg); ok {
				handle(report)
			}
		}
	}
}

// ReportSubscriber delivers reports published by an ingestor. nats.Client
// implements it.
type ReportSubscriber interface {
	SubscribeReports(handler func(*types.ReportEnvelope)) (*nats.Subscription, error)
}

// NATS receives reports from another process
type NATS struct {
	subscriber ReportSubscriber
	now        func() time.Time
	logger     *logger.Logger
}

// NewNATS creates a NATS source
func NewNATS(subscriber ReportSubscriber, log *logger.Logger) *NATS {
	if log == nil {
		log = logger.Nop()
	}
	return &NATS{subscriber: subscriber, now: time.Now, logger: log.Named("nats-source")}
}

// Run subscribes and hands each report on, aged by its transit time, until
// ctx is done
func (n *NATS) Run(ctx context.Context, handle func(types.PositionReport)) error {
	sub, err := n.subscriber.SubscribeReports(func(env *types.ReportEnvelope) {
		handle(env.Aged(n.now()))
	})
	if err != nil {
		return err
	}
	n.logger.Info("Subscribed to reports")

	<-ctx.Done()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warn("Failed to unsubscribe", logger.Error(err))
		}
	}
	return nil
}
