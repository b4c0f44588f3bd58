package match

import (
	"testing"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

func TestBuildKeyIsOrderIndependent(t *testing.T) {
	k1 := buildKey("10.0.0.1", 443, "10.0.0.2", 51000, true, "TCP4")
	k2 := buildKey("10.0.0.2", 51000, "10.0.0.1", 443, true, "TCP4")
	if k1 != k2 {
		t.Fatalf("expected endpoint order to not matter: %q != %q", k1, k2)
	}
}

func TestBuildKeyPartialWhenNoRemote(t *testing.T) {
	k := buildKey("10.0.0.1", 53, "", 0, false, "UDP4")
	if k != "10.0.0.1:53|UDP4" {
		t.Fatalf("unexpected partial key: %q", k)
	}
}

func TestBuildKeyNullOnMissingFields(t *testing.T) {
	cases := []struct {
		addr1 string
		port1 uint16
		proto string
	}{
		{"", 443, "TCP4"},
		{"10.0.0.1", 0, "TCP4"},
		{"10.0.0.1", 443, ""},
	}
	for _, c := range cases {
		if got := buildKey(c.addr1, c.port1, "", 0, false, c.proto); got != "" {
			t.Errorf("expected null key for %+v, got %q", c, got)
		}
	}
}

func TestMatchPacketResolvesEitherDirection(t *testing.T) {
	m := New()
	m.UpdateConnectionMap([]model.ConnectionEntry{
		{
			Protocol: model.ProtoTCP4, LocalAddr: "10.0.0.1", LocalPort: 443,
			RemoteAddr: "10.0.0.2", RemotePort: 51000, HasRemote: true,
			PID: 7, HasPID: true, ProcName: "sshd",
		},
	})

	pkt := &model.PacketRecord{
		IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{}, Protocol: "TCP",
		SrcIP: "10.0.0.2", SrcPort: 51000, DstIP: "10.0.0.1", DstPort: 443,
	}

	entry, ok := m.MatchPacket(pkt)
	if !ok {
		t.Fatalf("expected match")
	}
	if entry.PID != 7 {
		t.Errorf("expected pid 7, got %d", entry.PID)
	}

	reversed := &model.PacketRecord{
		IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{}, Protocol: "TCP",
		SrcIP: "10.0.0.1", SrcPort: 443, DstIP: "10.0.0.2", DstPort: 51000,
	}
	entry, ok = m.MatchPacket(reversed)
	if !ok || entry.PID != 7 {
		t.Fatalf("expected reversed-direction packet to match the same connection")
	}
}

func TestMatchPacketNoMatch(t *testing.T) {
	m := New()
	m.UpdateConnectionMap(nil)
	pkt := &model.PacketRecord{IPv4: &model.IPv4Header{}, TCP: &model.TCPHeader{}, Protocol: "TCP", SrcIP: "1.2.3.4", SrcPort: 80, DstIP: "5.6.7.8", DstPort: 9000}
	if _, ok := m.MatchPacket(pkt); ok {
		t.Fatalf("expected no match against empty map")
	}
}
