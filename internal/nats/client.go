package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

const (
	SubjectReports       = "approach.reports"
	SubjectAnnouncements = "approach.announcements"

	StreamReports       = "APPROACH_REPORTS"
	StreamAnnouncements = "APPROACH_ANNOUNCEMENTS"
)

// Client represents a NATS client
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// New creates a new NATS client and makes sure both streams exist
func New(url string, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}

	nc, err := nats.Connect(url,
		nats.Name("sbs-approach"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Reports are only useful for a few minutes; announcements are kept a day
	streams := []*nats.StreamConfig{
		{Name: StreamReports, Subjects: []string{SubjectReports}, Storage: nats.FileStorage, MaxAge: 10 * time.Minute},
		{Name: StreamAnnouncements, Subjects: []string{SubjectAnnouncements}, Storage: nats.FileStorage, MaxAge: 24 * time.Hour},
	}
	for _, cfg := range streams {
		if _, err := js.AddStream(cfg); err != nil && !strings.Contains(err.Error(), "stream name already in use") {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
	}

	return &Client{
		conn:   nc,
		js:     js,
		logger: log.Named("nats"),
	}, nil
}

// PublishReport publishes a position report envelope
func (c *Client) PublishReport(env *types.ReportEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if _, err := c.js.Publish(SubjectReports, data); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}

// SubscribeReports delivers reports published from now on. Reports already
// in the stream are skipped since they would be stale.
func (c *Client) SubscribeReports(handler func(*types.ReportEnvelope)) (*nats.Subscription, error) {
	sub, err := c.js.Subscribe(SubjectReports, func(msg *nats.Msg) {
		var env types.ReportEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			c.logger.Warn("Error unmarshaling report", logger.Error(err))
			return
		}
		handler(&env)
	}, nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

// PublishAnnouncement publishes an announcement for other consumers
func (c *Client) PublishAnnouncement(a types.Announcement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}

	if _, err := c.js.Publish(SubjectAnnouncements, data); err != nil {
		return fmt.Errorf("failed to publish announcement: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
