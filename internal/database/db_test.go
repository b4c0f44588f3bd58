package database

import (
	"testing"
	"time"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/snapshot"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot(tsMs int64) snapshot.Snapshot {
	return snapshot.Snapshot{
		TimestampMs: tsMs,
		Global: map[string]model.CounterSnapshot{
			"eth0": {Counters: model.Counters{TotalPackets: 10, TotalBytesSent: 100, InboundBytes: 40, OutboundBytes: 60}},
		},
		Applications: []model.ApplicationRegistryEntry{
			{
				AppID: "chrome", AppName: "chrome", AppDisplayName: "Google Chrome",
				Counters:     model.Counters{TotalPackets: 5, TotalBytesSent: 50, InboundBytes: 20, OutboundBytes: 30},
				ProcessCount: 1,
			},
		},
	}
}

func TestRecordSnapshotInsertsRows(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordSnapshot(testSnapshot(1000)); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	var appCount, globalCount int64
	db.Model(&AppUsageSnapshot{}).Count(&appCount)
	db.Model(&GlobalUsageSnapshot{}).Count(&globalCount)
	if appCount != 1 {
		t.Errorf("expected 1 app row, got %d", appCount)
	}
	if globalCount != 1 {
		t.Errorf("expected 1 global row, got %d", globalCount)
	}

	var app AppUsageSnapshot
	db.First(&app)
	if app.AppID != "chrome" || app.TotalBytes != 50 || app.InboundBytes != 20 {
		t.Errorf("unexpected app row: %+v", app)
	}
}

func TestCompactRollsRowsIntoSummary(t *testing.T) {
	db := newTestDB(t)

	old := time.Now().Add(-2 * time.Hour).UnixMilli()
	if err := db.RecordSnapshot(testSnapshot(old)); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
	if err := db.RecordSnapshot(testSnapshot(old + 1000)); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	stats, err := db.Compact(time.Now().Add(-1 * time.Hour))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if stats.AppRowsCompacted != 2 || stats.GlobalRowsCompacted != 2 {
		t.Fatalf("expected both original rows rolled up per table, got %+v", stats)
	}
	if stats.TotalRowsCreated != 2 {
		t.Fatalf("expected one summary row created per table, got %+v", stats)
	}

	var appRows []AppUsageSnapshot
	db.Find(&appRows)
	if len(appRows) != 1 || !appRows[0].Compacted {
		t.Fatalf("expected a single compacted app row, got %+v", appRows)
	}
	if appRows[0].TotalPackets != 10 || appRows[0].TotalBytes != 100 {
		t.Errorf("expected summed counters, got %+v", appRows[0])
	}
}

func TestCompactLeavesRecentRowsUntouched(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordSnapshot(testSnapshot(time.Now().UnixMilli())); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	stats, err := db.Compact(time.Now().Add(-1 * time.Hour))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if stats.AppRowsCompacted != 0 || stats.GlobalRowsCompacted != 0 {
		t.Fatalf("expected nothing compacted, got %+v", stats)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{500, "500 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
	}
	for _, c := range cases {
		if got := FormatBytes(c.in); got != c.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
