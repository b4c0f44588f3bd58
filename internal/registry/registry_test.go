package registry

import (
	"testing"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

func alwaysRoot(pid int32) int32 { return pid }

func noProcessInfo(pid int32) (string, int32, bool, uint64, bool, bool) {
	return "", 0, false, 0, false, false
}

func TestRecordSystemPacketBucketsUnderSystem(t *testing.T) {
	m := New(alwaysRoot, noProcessInfo, []string{"10.0.0.1"})
	pkt := &model.PacketRecord{
		Interface: "eth0", TimestampMs: 1, CapturedLen: 100,
		IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{},
		ProcName: "SYSTEM", PID: 0, Attributed: true,
		SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
	}
	m.Record(pkt)

	if pkt.AppName != "System" || pkt.AppRegistryID != "system" {
		t.Fatalf("expected system classification, got appName=%q id=%q", pkt.AppName, pkt.AppRegistryID)
	}
	apps := m.ApplicationSnapshot()
	if len(apps) != 1 || apps[0].Counters.TotalPackets != 1 {
		t.Fatalf("expected one application entry with 1 packet, got %+v", apps)
	}
}

func TestRecordUnknownPacketBucketsUnderUnknown(t *testing.T) {
	m := New(alwaysRoot, noProcessInfo, []string{"10.0.0.1"})
	pkt := &model.PacketRecord{
		IPv4: &model.IPv4Header{}, UDP: &model.UDPHeader{},
		ProcName: "UNKNOWN", CapturedLen: 50,
	}
	m.Record(pkt)
	if pkt.AppRegistryID != "unknown" {
		t.Fatalf("expected unknown bucket, got %q", pkt.AppRegistryID)
	}
}

func TestRecordAttributedPacketCreatesProcessEntry(t *testing.T) {
	m := New(alwaysRoot, noProcessInfo, []string{"10.0.0.1"})
	pkt := &model.PacketRecord{
		Interface: "eth0", CapturedLen: 200,
		IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{},
		ProcName: "chrome.exe", PID: 123, Attributed: true,
		DstIP: "93.184.216.34",
	}
	m.Record(pkt)

	if pkt.AppDisplayName != "Google Chrome" {
		t.Fatalf("expected friendly display name, got %q", pkt.AppDisplayName)
	}
	procs := m.ProcessSnapshot()
	if len(procs) != 1 {
		t.Fatalf("expected 1 process registry entry, got %d", len(procs))
	}
	if !procs[0].IsRootProcess {
		t.Errorf("expected process to be marked root (alwaysRoot stub)")
	}
	if _, ok := procs[0].RemoteIPs["93.184.216.34"]; !ok {
		t.Errorf("expected remote ip to be recorded")
	}
}

func TestRecordMissingInterfaceUsesCatchAll(t *testing.T) {
	m := New(alwaysRoot, noProcessInfo, []string{"10.0.0.1"})
	m.Record(&model.PacketRecord{IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{}})
	snap := m.GlobalSnapshot()
	if _, ok := snap[unknownInterface]; !ok {
		t.Fatalf("expected missing interface to bucket under %q, got keys %v", unknownInterface, snap)
	}
}

func TestDisplayNameFallsBackToTitleCase(t *testing.T) {
	if got := displayNameFor("my-custom_app"); got != "My Custom App" {
		t.Errorf("expected title-cased fallback, got %q", got)
	}
}
