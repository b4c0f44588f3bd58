package decode

import "github.com/google/gopacket/layers"

// ipProtocols maps an IP protocol/next-header number to the protocol name
// used throughout the pipeline (§4.2 step 2/3, "IP_PROTOCOLS").
var ipProtocols = map[layers.IPProtocol]string{
	layers.IPProtocolTCP:  "TCP",
	layers.IPProtocolUDP:  "UDP",
	layers.IPProtocolICMPv4: "ICMP",
	layers.IPProtocolICMPv6: "ICMP",
}

func ipProtocolName(p layers.IPProtocol) string {
	if name, ok := ipProtocols[p]; ok {
		return name
	}
	return p.String()
}

// ethertypeName maps an EtherType to a short protocol name preserved for
// non-IP frames (ARP, WoL, 802.1Q, ...) so system-wide counters can still
// see them (§4.2 step 1).
func ethertypeName(t layers.EthernetType) string {
	switch t {
	case layers.EthernetTypeIPv4:
		return "IPv4"
	case layers.EthernetTypeIPv6:
		return "IPv6"
	case layers.EthernetTypeARP:
		return "ARP"
	case layers.EthernetTypeLLC:
		return "LLC"
	case layers.EthernetTypeQinQ:
		return "802.1ad"
	default:
		return t.String()
	}
}
