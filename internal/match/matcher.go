// Package match joins decoded packets to connection-table entries using
// bidirectional 5-tuple keys (§4.6).
package match

import (
	"sync/atomic"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/netaddr"
)

// Matcher holds the atomically-swapped ConnectionMap.
type Matcher struct {
	connMap atomic.Pointer[map[string]model.ConnectionEntry]
}

// New returns a Matcher with an empty map.
func New() *Matcher {
	m := &Matcher{}
	empty := map[string]model.ConnectionEntry{}
	m.connMap.Store(&empty)
	return m
}

// UpdateConnectionMap builds a brand-new map from conns and swaps it in
// atomically, so a concurrent MatchPacket always sees a complete map, never
// a torn one (§3, §4.6, §5).
func (m *Matcher) UpdateConnectionMap(conns []model.ConnectionEntry) {
	next := make(map[string]model.ConnectionEntry, len(conns))
	for _, c := range conns {
		key := connectionKey(c)
		if key == "" {
			continue
		}
		next[key] = c
	}
	m.connMap.Store(&next)
}

// MatchPacket resolves pkt's owning connection, if any.
func (m *Matcher) MatchPacket(pkt *model.PacketRecord) (model.ConnectionEntry, bool) {
	key := packetKey(pkt)
	if key == "" {
		return model.ConnectionEntry{}, false
	}
	connMap := *m.connMap.Load()
	entry, ok := connMap[key]
	return entry, ok
}

// connectionKey builds the bidirectional key for a connection-table entry.
func connectionKey(c model.ConnectionEntry) string {
	return buildKey(c.LocalAddr, c.LocalPort, c.RemoteAddr, c.RemotePort, c.HasRemote, c.Protocol.String())
}

// packetKey builds the same key shape for a packet, using (srcIP, srcPort)
// as one endpoint and (dstIP, dstPort) as the other — endpoint order
// doesn't matter because buildKey sorts them (§4.6).
func packetKey(pkt *model.PacketRecord) string {
	proto := protocolFamily(pkt)
	if proto == "" {
		return ""
	}
	return buildKey(pkt.SrcIP, pkt.SrcPort, pkt.DstIP, pkt.DstPort, true, proto)
}

// protocolFamily maps a packet's flat protocol/IP-version fields onto the
// connection-table protocol family so packet and connection keys agree.
func protocolFamily(pkt *model.PacketRecord) string {
	switch {
	case pkt.IsTCP() && pkt.IPv4 != nil:
		return model.ProtoTCP4.String()
	case pkt.IsTCP() && pkt.IPv6 != nil:
		return model.ProtoTCP6.String()
	case pkt.IsUDP() && pkt.IPv4 != nil:
		return model.ProtoUDP4.String()
	case pkt.IsUDP() && pkt.IPv6 != nil:
		return model.ProtoUDP6.String()
	default:
		return ""
	}
}

// buildKey implements §4.6's key construction: sorted bidirectional pair
// when both endpoints are known, single-endpoint key otherwise. Any null
// address, zero port, or empty protocol yields a null key ("").
func buildKey(addr1 string, port1 uint16, addr2 string, port2 uint16, hasRemote bool, proto string) string {
	if addr1 == "" || port1 == 0 || proto == "" {
		return ""
	}
	a := netaddr.AddrPort(addr1, port1)

	if !hasRemote || addr2 == "" || port2 == 0 {
		return a + "|" + proto
	}

	b := netaddr.AddrPort(addr2, port2)
	if a <= b {
		return a + "|" + b + "|" + proto
	}
	return b + "|" + a + "|" + proto
}
