package capture

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// DefaultIdleTimeout is how long a source may stay silent before the
// connection is considered dead and re-established
const DefaultIdleTimeout = 30 * time.Second

// Message is one line received from an SBS source
type Message struct {
	Source    string
	Line      string
	Timestamp time.Time
}

// Capture reads line-delimited SBS messages from one or more TCP sources
// and reconnects with exponential backoff when a source goes away
type Capture struct {
	sources []string
	conns   map[string]net.Conn
	msgChan chan Message
	wg      sync.WaitGroup
	mu      sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	logger      *logger.Logger
	dialer      net.Dialer
	idleTimeout time.Duration
	newBackOff  func() backoff.BackOff
}

// New creates a new Capture instance
func New(sources []string, log *logger.Logger) *Capture {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Capture{
		sources:     sources,
		conns:       make(map[string]net.Conn),
		msgChan:     make(chan Message, 1000),
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.Named("capture"),
		dialer:      net.Dialer{Timeout: 5 * time.Second},
		idleTimeout: DefaultIdleTimeout,
		newBackOff:  newExponentialBackOff,
	}
}

func newExponentialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Start begins reading from every source
func (c *Capture) Start() error {
	if len(c.sources) == 0 {
		return errors.New("no sources configured")
	}
	for _, source := range c.sources {
		c.wg.Add(1)
		go c.connectToSource(source)
	}
	return nil
}

// Stop closes every connection and waits for the readers to exit. The
// Messages channel is closed afterwards.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		for _, conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		close(c.msgChan)
	})
}

// Messages returns the channel for receiving messages
func (c *Capture) Messages() <-chan Message {
	return c.msgChan
}

// configureTCPKeepalive configures TCP keepalive settings
func (c *Capture) configureTCPKeepalive(conn net.Conn, source string) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		c.logger.Warn("Failed to set keepalive", logger.String("source", source), logger.Error(err))
	}
	if err := tcpConn.SetKeepAlivePeriod(2 * time.Second); err != nil {
		c.logger.Warn("Failed to set keepalive period", logger.String("source", source), logger.Error(err))
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		c.logger.Warn("Failed to set no delay", logger.String("source", source), logger.Error(err))
	}
}

func (c *Capture) dial(source string) (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		var err error
		conn, err = c.dialer.DialContext(c.ctx, "tcp", source)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Connection failed, retrying",
			logger.String("source", source),
			logger.Duration("wait", wait),
			logger.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), c.ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Capture) connectToSource(source string) {
	defer c.wg.Done()

	var disconnectTime time.Time
	c.logger.Info("Attempting to connect", logger.String("source", source))

	for c.ctx.Err() == nil {
		conn, err := c.dial(source)
		if err != nil {
			return
		}
		c.configureTCPKeepalive(conn, source)

		if disconnectTime.IsZero() {
			c.logger.Info("Successfully connected", logger.String("source", source))
		} else {
			c.logger.Info("Connection reestablished",
				logger.String("source", source),
				logger.Duration("outage", time.Since(disconnectTime)),
			)
		}

		c.mu.Lock()
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conns[source] = conn
		c.mu.Unlock()

		err = c.handleConnection(source, conn)

		c.mu.Lock()
		delete(c.conns, source)
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			return
		}
		disconnectTime = time.Now()
		c.logger.Warn("Connection lost", logger.String("source", source), logger.Error(err))
	}
}

func (c *Capture) handleConnection(source string, conn net.Conn) error {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return errors.New("connection closed by source")
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case c.msgChan <- Message{Source: source, Line: line, Timestamp: time.Now()}:
		case <-c.ctx.Done():
			return nil
		}
	}
}
