package migrations

// SystemStatsDaily adds a per-day rollup. Counters are cumulative per
// process run, so the daily figure is the largest value seen that day.
var SystemStatsDaily = &Migration{
	Name: "002_system_stats_daily",
	UpSQL: `
		CREATE OR REPLACE VIEW system_stats_daily AS
		SELECT
			date_trunc('day', time) AS day,
			MAX(reports) AS reports,
			MAX(rejected_reports) AS rejected_reports,
			MAX(identity_violations) AS identity_violations,
			MAX(clock_violations) AS clock_violations,
			MAX(announcements) AS announcements,
			MAX(evictions) AS evictions,
			MAX(active_aircraft) AS peak_active_aircraft
		FROM system_stats
		GROUP BY day;
	`,
	DownSQL: `
		DROP VIEW IF EXISTS system_stats_daily;
	`,
}
