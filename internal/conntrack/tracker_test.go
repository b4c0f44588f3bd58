package conntrack

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

func newTestTracker(rows []SocketRow) *Tracker {
	logger := log.New(io.Discard)
	return NewWithSource(logger, func() ([]SocketRow, error) { return rows, nil })
}

func TestRefreshDropsLoopbackConnections(t *testing.T) {
	rows := []SocketRow{
		{Protocol: model.ProtoTCP4, LocalAddr: "127.0.0.1", LocalPort: 5000, RemoteAddr: "127.0.0.1", RemotePort: 6000, HasRemote: true, PID: 1, HasPID: true},
		{Protocol: model.ProtoTCP4, LocalAddr: "192.168.1.5", LocalPort: 5001, RemoteAddr: "93.184.216.34", RemotePort: 443, HasRemote: true, PID: 2, HasPID: true},
	}
	tr := newTestTracker(rows)
	tr.refresh()

	conns := tr.GetTcpConnections()
	if len(conns) != 1 {
		t.Fatalf("expected 1 non-loopback connection, got %d", len(conns))
	}
	if conns[0].LocalPort != 5001 {
		t.Errorf("expected the non-loopback connection to survive, got port %d", conns[0].LocalPort)
	}
}

func TestRefreshDropsRowsWithoutPID(t *testing.T) {
	rows := []SocketRow{
		{Protocol: model.ProtoTCP4, LocalAddr: "10.0.0.1", LocalPort: 80, HasPID: false},
	}
	tr := newTestTracker(rows)
	tr.refresh()

	if len(tr.GetTcpConnections()) != 0 {
		t.Fatalf("expected rows without pid attribution to be dropped")
	}
}

func TestUdpWildcardListenerResolution(t *testing.T) {
	rows := []SocketRow{
		{Protocol: model.ProtoUDP4, LocalAddr: "0.0.0.0", LocalPort: 53, HasRemote: false, PID: 42, HasPID: true},
	}
	tr := newTestTracker(rows)
	tr.refresh()

	// A packet whose destination is a specific address on the same port
	// should still resolve via the wildcard listener index.
	m, ok := tr.GetUdpMapping("10.0.0.9", 53)
	if !ok {
		t.Fatalf("expected wildcard listener to resolve specific-address lookup")
	}
	if m.PID != 42 {
		t.Errorf("expected pid 42, got %d", m.PID)
	}
}

func TestUdpMappingPersistsAndEvictsAfterStale(t *testing.T) {
	tr := newTestTracker(nil)
	tr.nowMs = func() int64 { return 0 }

	tr.spliceUDP([]model.UdpPortMapping{
		{LocalAddr: "10.0.0.1", LocalPort: 9000, PID: 7, LastSeenMs: 0, IsListener: false},
	}, 0)

	if _, ok := tr.GetUdpMapping("10.0.0.1", 9000); !ok {
		t.Fatalf("expected freshly spliced mapping to be present")
	}

	// Advance time past the stale window with no refresh of this mapping.
	tr.spliceUDP(nil, (31 * time.Second).Milliseconds())
	if _, ok := tr.GetUdpMapping("10.0.0.1", 9000); ok {
		t.Errorf("expected stale non-listener mapping to be evicted after 30s")
	}
}

func TestUdpListenerMappingNeverEvicted(t *testing.T) {
	tr := newTestTracker(nil)
	tr.spliceUDP([]model.UdpPortMapping{
		{LocalAddr: "0.0.0.0", LocalPort: 123, PID: 1, LastSeenMs: 0, IsListener: true},
	}, 0)

	tr.spliceUDP(nil, (10 * time.Minute).Milliseconds())
	if _, ok := tr.GetUdpMapping("0.0.0.0", 123); !ok {
		t.Errorf("expected listener mapping to survive regardless of age")
	}
}

func TestBackfillProcNameFillsEmptyOnly(t *testing.T) {
	rows := []SocketRow{
		{Protocol: model.ProtoTCP4, LocalAddr: "10.0.0.1", LocalPort: 443, RemoteAddr: "10.0.0.2", RemotePort: 51000, HasRemote: true, PID: 9, HasPID: true},
	}
	tr := newTestTracker(rows)
	tr.refresh()

	tr.BackfillProcName("10.0.0.1", 443, "curl")
	conns := tr.GetTcpConnections()
	if conns[0].ProcName != "curl" {
		t.Fatalf("expected backfilled proc name curl, got %q", conns[0].ProcName)
	}

	tr.BackfillProcName("10.0.0.1", 443, "wget")
	conns = tr.GetTcpConnections()
	if conns[0].ProcName != "curl" {
		t.Errorf("expected backfill to be a no-op once a name is set, got %q", conns[0].ProcName)
	}
}
