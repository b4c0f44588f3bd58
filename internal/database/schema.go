package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ReportReader is a read-only, pure-Go handle onto the same snapshot-
// history file DB writes through gorm/mattn-sqlite, used by the report
// CLI command so ad-hoc queries don't compete with the writer's
// connection pool or pull in cgo.
type ReportReader struct {
	db *sql.DB
}

// NewReportReader opens dbPath read-only via the pure-Go sqlite driver.
func NewReportReader(dbPath string) (*ReportReader, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open report reader: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping report reader: %w", err)
	}
	return &ReportReader{db: db}, nil
}

// Close closes the report reader's connection.
func (r *ReportReader) Close() error {
	return r.db.Close()
}

// TopApps returns the top-N applications by total bytes since the given
// cutoff, across both uncompacted and hourly-compacted rows.
func (r *ReportReader) TopApps(since time.Time, limit int) ([]AppUsageSnapshot, error) {
	query := `
	SELECT app_id, app_name, app_display_name,
	       SUM(total_packets), SUM(total_bytes), SUM(inbound_bytes), SUM(outbound_bytes), MAX(process_count)
	FROM app_usage_snapshots
	WHERE timestamp_ms >= ?
	GROUP BY app_id
	ORDER BY SUM(total_bytes) DESC
	`
	args := []interface{}{since.UnixMilli()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top apps: %w", err)
	}
	defer rows.Close()

	var out []AppUsageSnapshot
	for rows.Next() {
		var a AppUsageSnapshot
		if err := rows.Scan(&a.AppID, &a.AppName, &a.AppDisplayName,
			&a.TotalPackets, &a.TotalBytes, &a.InboundBytes, &a.OutboundBytes, &a.ProcessCount); err != nil {
			return nil, fmt.Errorf("scan top app row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats summarizes the history store for the report command's header.
func (r *ReportReader) Stats() (DatabaseStats, error) {
	stats := DatabaseStats{}

	if err := r.db.QueryRow("SELECT COUNT(*) FROM app_usage_snapshots").Scan(&stats.TotalRows); err != nil {
		return stats, fmt.Errorf("count rows: %w", err)
	}

	var oldestMs, newestMs sql.NullInt64
	if err := r.db.QueryRow("SELECT MIN(timestamp_ms) FROM app_usage_snapshots").Scan(&oldestMs); err == nil && oldestMs.Valid {
		stats.OldestRow = time.UnixMilli(oldestMs.Int64)
	}
	if err := r.db.QueryRow("SELECT MAX(timestamp_ms) FROM app_usage_snapshots").Scan(&newestMs); err == nil && newestMs.Valid {
		stats.NewestRow = time.UnixMilli(newestMs.Int64)
	}

	if err := r.db.QueryRow("SELECT page_count * page_size as size FROM pragma_page_count(), pragma_page_size()").Scan(&stats.DatabaseSize); err != nil {
		stats.DatabaseSize = 0
	}

	return stats, nil
}
