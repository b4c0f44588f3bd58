package database

import "time"

// AppUsageSnapshot is one row per application per published Snapshot
// (snapshot.Scheduler's publish cadence, §5). Rows accumulate until
// Compact rolls old ones into an hourly summary.
type AppUsageSnapshot struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	TimestampMs    int64  `gorm:"index" json:"timestamp_ms"`
	AppID          string `gorm:"index" json:"app_id"`
	AppName        string `json:"app_name"`
	AppDisplayName string `json:"app_display_name"`
	TotalPackets   int64  `json:"total_packets"`
	TotalBytes     int64  `json:"total_bytes"`
	InboundBytes   int64  `json:"inbound_bytes"`
	OutboundBytes  int64  `json:"outbound_bytes"`
	ProcessCount   int    `json:"process_count"`
	Compacted      bool   `gorm:"index" json:"compacted"`
	OriginalIDs    string `json:"original_ids,omitempty"`
}

// GlobalUsageSnapshot is one row per interface per published Snapshot.
type GlobalUsageSnapshot struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TimestampMs   int64  `gorm:"index" json:"timestamp_ms"`
	Interface     string `gorm:"index" json:"interface"`
	TotalPackets  int64  `json:"total_packets"`
	TotalBytes    int64  `json:"total_bytes"`
	InboundBytes  int64  `json:"inbound_bytes"`
	OutboundBytes int64  `json:"outbound_bytes"`
	Compacted     bool   `gorm:"index" json:"compacted"`
}

// UsageQuery filters a history read, the snapshot-domain analog of the
// teacher's EventFilter.
type UsageQuery struct {
	Limit     int    `json:"limit"`
	Since     string `json:"since"` // RFC3339 or duration like "1h", "24h"
	AppID     string `json:"app_id"`
	Interface string `json:"interface"`
}

// DatabaseStats summarizes the snapshot history store.
type DatabaseStats struct {
	TotalRows    int       `json:"total_rows"`
	OldestRow    time.Time `json:"oldest_row"`
	NewestRow    time.Time `json:"newest_row"`
	DatabaseSize int64     `json:"database_size"`
}
