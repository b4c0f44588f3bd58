// Package decode parses a raw captured frame into a model.PacketRecord.
// The decoder is stateless and reentrant: it holds no shared state between
// calls and never panics on malformed input (§4.2, §7 DecodeError). A frame
// too short for an Ethernet header is skipped; a frame whose upper layers
// fail to parse is kept as an ethernet-only record.
package decode

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/netaddr"
)

// Decode parses a raw link-layer frame captured on ifaceName at timestampMs
// into a PacketRecord. It returns (nil, false) rather than an error when not
// even the 14-byte Ethernet header can be read, or when decoding panics —
// decode failure is not exceptional on a live capture, it's routine line
// noise. When a layer above Ethernet fails to decode, the result is an
// ethernet-only record, as for a non-IP frame.
func Decode(data []byte, ifaceName string, timestampMs int64) (rec *model.PacketRecord, ok bool) {
	defer func() {
		// A malformed frame must never take down the capture loop.
		if r := recover(); r != nil {
			rec, ok = nil, false
		}
	}()

	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	if packet.ErrorLayer() != nil {
		ethOnly, decOK := decodeEthernetOnly(data, ifaceName, timestampMs)
		if !decOK {
			return nil, false
		}
		return ethOnly, true
	}

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, false
	}
	eth, okEth := ethLayer.(*layers.Ethernet)
	if !okEth {
		return nil, false
	}

	r := &model.PacketRecord{
		TimestampMs: timestampMs,
		CapturedLen: len(data),
		Interface:   ifaceName,
		Ethernet: model.EthernetHeader{
			SrcMAC: eth.SrcMAC.String(),
			DstMAC: eth.DstMAC.String(),
			Type:   ethertypeName(eth.EthernetType),
		},
		Protocol: ethertypeName(eth.EthernetType),
	}

	switch eth.EthernetType {
	case layers.EthernetTypeIPv4:
		decodeIPv4(packet, r)
	case layers.EthernetTypeIPv6:
		decodeIPv6(packet, r)
	default:
		// Non-IP ethertype: keep the ethernet-only record (ARP/WoL/etc.)
		// so system counters can still see it (§4.2 step 1).
	}

	return r, true
}

// decodeEthernetOnly handles a frame whose upper layers failed to decode,
// but whose 14-byte ethernet header is still readable directly.
func decodeEthernetOnly(data []byte, ifaceName string, timestampMs int64) (*model.PacketRecord, bool) {
	if len(data) < 14 {
		return nil, false
	}
	dst := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", data[0], data[1], data[2], data[3], data[4], data[5])
	src := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", data[6], data[7], data[8], data[9], data[10], data[11])
	etype := layers.EthernetType(uint16(data[12])<<8 | uint16(data[13]))
	return &model.PacketRecord{
		TimestampMs: timestampMs,
		CapturedLen: len(data),
		Interface:   ifaceName,
		Ethernet: model.EthernetHeader{
			SrcMAC: src,
			DstMAC: dst,
			Type:   ethertypeName(etype),
		},
		Protocol: ethertypeName(etype),
	}, true
}

func decodeIPv4(packet gopacket.Packet, r *model.PacketRecord) {
	layer := packet.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		return
	}
	ip4, ok := layer.(*layers.IPv4)
	if !ok {
		return
	}
	r.IPv4 = &model.IPv4Header{
		SrcIP:    netaddr.Normalize(ip4.SrcIP.String()),
		DstIP:    netaddr.Normalize(ip4.DstIP.String()),
		Protocol: uint8(ip4.Protocol),
		TTL:      ip4.TTL,
		HdrLen:   int(ip4.IHL) * 4,
		Length:   int(ip4.Length),
	}
	r.Protocol = ipProtocolName(ip4.Protocol)
	r.SrcIP = r.IPv4.SrcIP
	r.DstIP = r.IPv4.DstIP

	switch ip4.Protocol {
	case layers.IPProtocolTCP:
		decodeTCP(packet, r)
	case layers.IPProtocolUDP:
		decodeUDP(packet, r)
	case layers.IPProtocolICMPv4:
		decodeICMPv4(packet, r)
	}
}

func decodeIPv6(packet gopacket.Packet, r *model.PacketRecord) {
	layer := packet.Layer(layers.LayerTypeIPv6)
	if layer == nil {
		return
	}
	ip6, ok := layer.(*layers.IPv6)
	if !ok {
		return
	}
	r.IPv6 = &model.IPv6Header{
		SrcIP:      netaddr.Normalize(ip6.SrcIP.String()),
		DstIP:      netaddr.Normalize(ip6.DstIP.String()),
		NextHeader: uint8(ip6.NextHeader),
		HopLimit:   ip6.HopLimit,
		Length:     int(ip6.Length),
	}
	r.Protocol = ipProtocolName(ip6.NextHeader)
	r.SrcIP = r.IPv6.SrcIP
	r.DstIP = r.IPv6.DstIP

	// No extension-header chain (§4.2 step 3): only a directly-following
	// TCP/UDP/ICMPv6 next header is parsed further.
	switch ip6.NextHeader {
	case layers.IPProtocolTCP:
		decodeTCP(packet, r)
	case layers.IPProtocolUDP:
		decodeUDP(packet, r)
	case layers.IPProtocolICMPv6:
		decodeICMPv6(packet, r)
	}
}

func decodeTCP(packet gopacket.Packet, r *model.PacketRecord) {
	layer := packet.Layer(layers.LayerTypeTCP)
	if layer == nil {
		return
	}
	tcp, ok := layer.(*layers.TCP)
	if !ok {
		return
	}
	r.TCP = &model.TCPHeader{
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
		Seq:     tcp.Seq,
		Ack:     tcp.Ack,
		SYN:     tcp.SYN,
		ACK:     tcp.ACK,
		FIN:     tcp.FIN,
		RST:     tcp.RST,
	}
	r.SrcPort = r.TCP.SrcPort
	r.DstPort = r.TCP.DstPort
}

func decodeUDP(packet gopacket.Packet, r *model.PacketRecord) {
	layer := packet.Layer(layers.LayerTypeUDP)
	if layer == nil {
		return
	}
	udp, ok := layer.(*layers.UDP)
	if !ok {
		return
	}
	r.UDP = &model.UDPHeader{
		SrcPort: uint16(udp.SrcPort),
		DstPort: uint16(udp.DstPort),
		Length:  uint16(udp.Length),
	}
	r.SrcPort = r.UDP.SrcPort
	r.DstPort = r.UDP.DstPort
}

func decodeICMPv4(packet gopacket.Packet, r *model.PacketRecord) {
	layer := packet.Layer(layers.LayerTypeICMPv4)
	if layer == nil {
		return
	}
	icmp, ok := layer.(*layers.ICMPv4)
	if !ok {
		return
	}
	r.ICMP = &model.ICMPHeader{
		Type: icmp.TypeCode.Type(),
		Code: icmp.TypeCode.Code(),
	}
}

func decodeICMPv6(packet gopacket.Packet, r *model.PacketRecord) {
	layer := packet.Layer(layers.LayerTypeICMPv6)
	if layer == nil {
		return
	}
	icmp, ok := layer.(*layers.ICMPv6)
	if !ok {
		return
	}
	r.ICMP = &model.ICMPHeader{
		Type: icmp.TypeCode.Type(),
		Code: icmp.TypeCode.Code(),
	}
}
