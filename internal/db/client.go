package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/saviobatista/sbs-approach/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Ping verifies the connection
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// DB returns the underlying handle, for the migrator
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// StoreSystemStats stores one statistics snapshot
func (c *Client) StoreSystemStats(ctx context.Context, s types.SystemStats) error {
	query := `
		INSERT INTO system_stats (
			time, reports, rejected_reports, identity_violations,
			clock_violations, announcements, evictions, active_aircraft,
			message_types, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	msgTypes := make([]int64, len(s.MessageTypes))
	for i, v := range s.MessageTypes {
		msgTypes[i] = int64(v)
	}

	_, err := c.db.ExecContext(ctx, query,
		s.Time,
		int64(s.Reports),
		int64(s.RejectedReports),
		int64(s.IdentityViolations),
		int64(s.ClockViolations),
		int64(s.Announcements),
		int64(s.Evictions),
		int64(s.ActiveAircraft),
		pq.Array(msgTypes),
		int64(s.Uptime.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store system stats: %w", err)
	}
	return nil
}

// GetSystemStats retrieves statistics for a time range, newest first
func (c *Client) GetSystemStats(ctx context.Context, start, end time.Time) ([]types.SystemStats, error) {
	query := `
		SELECT
			time, reports, rejected_reports, identity_violations,
			clock_violations, announcements, evictions, active_aircraft,
			message_types, uptime_seconds
		FROM system_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query system stats: %w", err)
	}
	defer rows.Close()

	var stats []types.SystemStats
	for rows.Next() {
		var (
			s             types.SystemStats
			counters      [7]int64
			messageTypes  []int64
			uptimeSeconds int64
		)

		if err := rows.Scan(
			&s.Time,
			&counters[0],
			&counters[1],
			&counters[2],
			&counters[3],
			&counters[4],
			&counters[5],
			&counters[6],
			pq.Array(&messageTypes),
			&uptimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan system stats: %w", err)
		}

		s.Reports = uint64(counters[0])
		s.RejectedReports = uint64(counters[1])
		s.IdentityViolations = uint64(counters[2])
		s.ClockViolations = uint64(counters[3])
		s.Announcements = uint64(counters[4])
		s.Evictions = uint64(counters[5])
		s.ActiveAircraft = uint64(counters[6])
		for i, v := range messageTypes {
			if i < len(s.MessageTypes) {
				s.MessageTypes[i] = uint64(v)
			}
		}
		s.Uptime = time.Duration(uptimeSeconds) * time.Second

		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// DeleteSystemStatsBefore removes snapshots older than cutoff and returns
// how many were removed
func (c *Client) DeleteSystemStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM system_stats WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete system stats: %w", err)
	}
	return res.RowsAffected()
}
