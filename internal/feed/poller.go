// Package feed polls a tar1090/dump1090 aircraft.json endpoint
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// DefaultInterval is the default poll interval
const DefaultInterval = time.Second

// requiredFields must all be present for an aircraft entry to be usable.
// hex and flight are strings, the rest numbers.
var requiredFields = []string{"hex", "flight", "track", "gs", "lat", "lon", "seen_pos"}

const firstNumericField = 2

// ParseAircraft extracts position reports from an aircraft.json document.
// Entries lacking a required field, or carrying one of the wrong type, are
// skipped and counted.
func ParseAircraft(body []byte) ([]types.PositionReport, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, errors.New("invalid JSON document")
	}
	list := gjson.GetBytes(body, "aircraft")
	if !list.IsArray() {
		return nil, 0, errors.New("document has no aircraft array")
	}

	var (
		reports []types.PositionReport
		skipped int
	)
	list.ForEach(func(_, ac gjson.Result) bool {
		fields := gjson.GetMany(ac.Raw, requiredFields...)
		for i, f := range fields {
			want := gjson.String
			if i >= firstNumericField {
				want = gjson.Number
			}
			if f.Type != want {
				skipped++
				return true
			}
		}

		callsign := strings.TrimSpace(fields[1].String())
		if callsign == "" {
			skipped++
			return true
		}

		altitude := 0
		if alt := ac.Get("alt_baro"); alt.Type == gjson.Number {
			altitude = int(alt.Int())
		}

		reports = append(reports, types.PositionReport{
			AircraftID:  strings.ToLower(fields[0].String()),
			Callsign:    callsign,
			Heading:     fields[2].Float(),
			Speed:       fields[3].Float(),
			Altitude:    altitude,
			Latitude:    fields[4].Float(),
			Longitude:   fields[5].Float(),
			PositionAge: fields[6].Float(),
		})
		return true
	})

	return reports, skipped, nil
}

// Poller fetches aircraft.json periodically
type Poller struct {
	httpClient *http.Client
	url        string
	interval   time.Duration
	logger     *logger.Logger
	newBackOff func() backoff.BackOff
}

// NewPoller creates a poller for url
func NewPoller(url string, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		url:        url,
		interval:   interval,
		logger:     log.Named("feed"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = interval
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Fetch downloads and parses the document once
func (p *Poller) Fetch(ctx context.Context) ([]types.PositionReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	reports, skipped, err := ParseAircraft(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aircraft document: %w", err)
	}

	p.logger.Debug("Fetched aircraft",
		logger.Int("reports", len(reports)),
		logger.Int("skipped", skipped),
	)
	return reports, nil
}

// Run polls until ctx is cancelled, handing every report to handle. Failed
// fetches are retried with exponential backoff.
func (p *Poller) Run(ctx context.Context, handle func(types.PositionReport)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		var reports []types.PositionReport
		op := func() error {
			var err error
			reports, err = p.Fetch(ctx)
			return err
		}
		notify := func(err error, wait time.Duration) {
			p.logger.Warn("Fetch failed, retrying", logger.Duration("wait", wait), logger.Error(err))
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, r := range reports {
			handle(r)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
