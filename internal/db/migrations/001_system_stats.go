package migrations

// SystemStats creates the table the tracker counters are persisted to
var SystemStats = &Migration{
	Name: "001_system_stats",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			reports BIGINT NOT NULL,
			rejected_reports BIGINT NOT NULL,
			identity_violations BIGINT NOT NULL,
			clock_violations BIGINT NOT NULL,
			announcements BIGINT NOT NULL,
			evictions BIGINT NOT NULL,
			active_aircraft BIGINT NOT NULL,
			message_types BIGINT[] NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS system_stats;
	`,
}
