package proccon

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/conntrack"
	"github.com/madhurdeepjain/privacyradar-core/internal/match"
	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/procs"
)

func newTestManager(t *testing.T, rows []conntrack.SocketRow, procEntries []model.ProcessEntry, localIPs []string) *Manager {
	t.Helper()
	logger := log.New(io.Discard)
	ct := conntrack.NewWithSource(logger, func() ([]conntrack.SocketRow, error) { return rows, nil })
	pt := procs.NewWithEnumerator(logger, func() ([]model.ProcessEntry, error) { return procEntries, nil })
	m := match.New()
	mgr := New(logger, ct, pt, m, localIPs)

	ct.Start()
	defer ct.Stop()
	pt.Start()
	defer pt.Stop()
	mgr.syncConnectionInfo()
	return mgr
}

func TestEnqueueTCPAttributesViaMatcher(t *testing.T) {
	rows := []conntrack.SocketRow{
		{Protocol: model.ProtoTCP4, LocalAddr: "10.0.0.1", LocalPort: 443, RemoteAddr: "10.0.0.2", RemotePort: 51000, HasRemote: true, PID: 5, HasPID: true},
	}
	procEntries := []model.ProcessEntry{{PID: 5, Name: "sshd", HasPPID: true, PPID: 1}}
	mgr := newTestManager(t, rows, procEntries, []string{"10.0.0.1"})

	pkt := &model.PacketRecord{
		IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{}, Protocol: "TCP",
		SrcIP: "10.0.0.2", SrcPort: 51000, DstIP: "10.0.0.1", DstPort: 443,
	}
	mgr.EnqueuePacket(pkt)

	if !pkt.Attributed || pkt.ProcName != "sshd" {
		t.Fatalf("expected attribution to sshd, got attributed=%v procName=%q", pkt.Attributed, pkt.ProcName)
	}
	flushed := mgr.FlushQueue()
	if len(flushed) != 1 {
		t.Fatalf("expected 1 flushed packet, got %d", len(flushed))
	}
	if len(mgr.FlushQueue()) != 0 {
		t.Fatalf("expected second flush to be empty")
	}
}

func TestEnqueueUDPAlwaysPushedEvenUnattributed(t *testing.T) {
	mgr := newTestManager(t, nil, nil, []string{"10.0.0.1"})

	pkt := &model.PacketRecord{
		IPv4: &model.IPv4Header{}, UDP: &model.UDPHeader{}, Protocol: "UDP",
		SrcIP: "10.0.0.1", SrcPort: 51000, DstIP: "8.8.8.8", DstPort: 53,
	}
	mgr.EnqueuePacket(pkt)

	if pkt.Attributed {
		t.Fatalf("expected unattributed UDP packet")
	}
	if pkt.ProcName != "UNKNOWN" {
		t.Errorf("expected UNKNOWN proc name, got %q", pkt.ProcName)
	}
	if len(mgr.FlushQueue()) != 1 {
		t.Fatalf("expected unattributed UDP packet to still be enqueued")
	}
}

func TestEnqueueUDPResolvesViaLocalSideMapping(t *testing.T) {
	rows := []conntrack.SocketRow{
		{Protocol: model.ProtoUDP4, LocalAddr: "10.0.0.1", LocalPort: 51000, HasRemote: false, PID: 9, HasPID: true},
	}
	procEntries := []model.ProcessEntry{{PID: 9, Name: "dig"}}
	mgr := newTestManager(t, rows, procEntries, []string{"10.0.0.1"})

	pkt := &model.PacketRecord{
		IPv4: &model.IPv4Header{}, UDP: &model.UDPHeader{}, Protocol: "UDP",
		SrcIP: "10.0.0.1", SrcPort: 51000, DstIP: "8.8.8.8", DstPort: 53,
	}
	mgr.EnqueuePacket(pkt)

	if !pkt.Attributed || pkt.ProcName != "dig" {
		t.Fatalf("expected attribution to dig via local-side UDP mapping, got attributed=%v procName=%q", pkt.Attributed, pkt.ProcName)
	}
}
