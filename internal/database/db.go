package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/madhurdeepjain/privacyradar-core/internal/snapshot"
)

// DB wraps the gorm database holding the published Snapshot history.
type DB struct {
	*gorm.DB
}

// New creates a new database connection and migrates the snapshot-history
// schema.
func New(dbPath string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.Exec("PRAGMA journal_mode=WAL")
	sqlDB.Exec("PRAGMA synchronous=NORMAL")
	sqlDB.Exec("PRAGMA cache_size=2000")

	if err := db.AutoMigrate(&AppUsageSnapshot{}, &GlobalUsageSnapshot{}); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSnapshot persists one published Snapshot (§6 "Snapshot sampler")
// as a row per application and a row per interface, the write side of the
// history store that the report CLI reads back.
func (db *DB) RecordSnapshot(snap snapshot.Snapshot) error {
	appRows := make([]AppUsageSnapshot, 0, len(snap.Applications))
	for _, app := range snap.Applications {
		c := app.Counters
		appRows = append(appRows, AppUsageSnapshot{
			TimestampMs:    snap.TimestampMs,
			AppID:          app.AppID,
			AppName:        app.AppName,
			AppDisplayName: app.AppDisplayName,
			TotalPackets:   int64(c.TotalPackets),
			TotalBytes:     int64(c.TotalBytesSent),
			InboundBytes:   int64(c.InboundBytes),
			OutboundBytes:  int64(c.OutboundBytes),
			ProcessCount:   app.ProcessCount,
		})
	}
	if len(appRows) > 0 {
		if err := db.CreateInBatches(appRows, 100).Error; err != nil {
			return fmt.Errorf("record app usage: %w", err)
		}
	}

	globalRows := make([]GlobalUsageSnapshot, 0, len(snap.Global))
	for iface, c := range snap.Global {
		globalRows = append(globalRows, GlobalUsageSnapshot{
			TimestampMs:   snap.TimestampMs,
			Interface:     iface,
			TotalPackets:  int64(c.TotalPackets),
			TotalBytes:    int64(c.TotalBytesSent),
			InboundBytes:  int64(c.InboundBytes),
			OutboundBytes: int64(c.OutboundBytes),
		})
	}
	if len(globalRows) > 0 {
		if err := db.CreateInBatches(globalRows, 100).Error; err != nil {
			return fmt.Errorf("record global usage: %w", err)
		}
	}

	return nil
}

// CompactStats holds statistics about a compaction pass.
type CompactStats struct {
	AppRowsCompacted    int64
	GlobalRowsCompacted int64
	TotalRowsRemoved    int64
	TotalRowsCreated    int64
	TotalBytesInDB      int64
}

// Compact rolls per-tick rows older than olderThan into one hourly-summary
// row per (hour, app) and per (hour, interface), the snapshot-domain
// analog of the teacher's event compaction pass.
func (db *DB) Compact(olderThan time.Time) (*CompactStats, error) {
	stats := &CompactStats{}

	if err := db.compactApps(olderThan, stats); err != nil {
		return stats, fmt.Errorf("app compaction failed: %w", err)
	}
	if err := db.compactGlobal(olderThan, stats); err != nil {
		return stats, fmt.Errorf("global compaction failed: %w", err)
	}
	db.calculateTransferStats(stats)
	db.Exec("VACUUM")

	return stats, nil
}

func (db *DB) compactApps(olderThan time.Time, stats *CompactStats) error {
	var hours []struct {
		Hour  string
		AppID string
	}
	db.Model(&AppUsageSnapshot{}).
		Select("strftime('%Y-%m-%d %H:00:00', datetime(timestamp_ms/1000, 'unixepoch')) as hour, app_id").
		Where("timestamp_ms < ? AND compacted = ?", olderThan.UnixMilli(), false).
		Group("hour, app_id").
		Scan(&hours)

	for _, h := range hours {
		var rows []AppUsageSnapshot
		db.Where(
			"app_id = ? AND compacted = ? AND strftime('%Y-%m-%d %H:00:00', datetime(timestamp_ms/1000, 'unixepoch')) = ?",
			h.AppID, false, h.Hour,
		).Find(&rows)
		if len(rows) == 0 {
			continue
		}

		summary := AppUsageSnapshot{AppID: h.AppID, Compacted: true}
		hourTime, err := time.Parse("2006-01-02 15:04:05", h.Hour)
		if err == nil {
			summary.TimestampMs = hourTime.UnixMilli()
		}
		ids := make([]uint, 0, len(rows))
		for _, r := range rows {
			summary.AppName = r.AppName
			summary.AppDisplayName = r.AppDisplayName
			summary.TotalPackets += r.TotalPackets
			summary.TotalBytes += r.TotalBytes
			summary.InboundBytes += r.InboundBytes
			summary.OutboundBytes += r.OutboundBytes
			if r.ProcessCount > summary.ProcessCount {
				summary.ProcessCount = r.ProcessCount
			}
			ids = append(ids, r.ID)
		}

		if err := db.Create(&summary).Error; err != nil {
			continue
		}
		db.Where("id IN ?", ids).Delete(&AppUsageSnapshot{})

		stats.AppRowsCompacted += int64(len(rows))
		stats.TotalRowsRemoved += int64(len(rows))
		stats.TotalRowsCreated++
	}

	return nil
}

func (db *DB) compactGlobal(olderThan time.Time, stats *CompactStats) error {
	var hours []struct {
		Hour      string
		Interface string
	}
	db.Model(&GlobalUsageSnapshot{}).
		Select("strftime('%Y-%m-%d %H:00:00', datetime(timestamp_ms/1000, 'unixepoch')) as hour, interface").
		Where("timestamp_ms < ? AND compacted = ?", olderThan.UnixMilli(), false).
		Group("hour, interface").
		Scan(&hours)

	for _, h := range hours {
		var rows []GlobalUsageSnapshot
		db.Where(
			"interface = ? AND compacted = ? AND strftime('%Y-%m-%d %H:00:00', datetime(timestamp_ms/1000, 'unixepoch')) = ?",
			h.Interface, false, h.Hour,
		).Find(&rows)
		if len(rows) == 0 {
			continue
		}

		summary := GlobalUsageSnapshot{Interface: h.Interface, Compacted: true}
		hourTime, err := time.Parse("2006-01-02 15:04:05", h.Hour)
		if err == nil {
			summary.TimestampMs = hourTime.UnixMilli()
		}
		ids := make([]uint, 0, len(rows))
		for _, r := range rows {
			summary.TotalPackets += r.TotalPackets
			summary.TotalBytes += r.TotalBytes
			summary.InboundBytes += r.InboundBytes
			summary.OutboundBytes += r.OutboundBytes
			ids = append(ids, r.ID)
		}

		if err := db.Create(&summary).Error; err != nil {
			continue
		}
		db.Where("id IN ?", ids).Delete(&GlobalUsageSnapshot{})

		stats.GlobalRowsCompacted += int64(len(rows))
		stats.TotalRowsRemoved += int64(len(rows))
		stats.TotalRowsCreated++
	}

	return nil
}

func (db *DB) calculateTransferStats(stats *CompactStats) {
	var totalBytes sql.NullInt64
	db.Model(&AppUsageSnapshot{}).Select("COALESCE(SUM(total_bytes), 0)").Scan(&totalBytes)
	stats.TotalBytesInDB = totalBytes.Int64

	log.Info("snapshot history transfer statistics", "total", FormatBytes(stats.TotalBytesInDB))
}

// FormatBytes converts bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
