package model

// Counters is the common per-bucket counter set shared by the global,
// application and process registries (§3). All counters are 64-bit; derived
// percentages are computed at snapshot time, not on every update.
type Counters struct {
	TotalPackets      uint64
	TotalBytesSent    uint64
	TotalBytesReceived uint64
	InboundBytes      uint64
	OutboundBytes     uint64
	IPv4Packets       uint64
	IPv6Packets       uint64
	TCPPackets        uint64
	UDPPackets        uint64
	FirstSeenMs       int64
	LastSeenMs        int64
}

// Widen folds a new observation into the counter set, widening
// firstSeen/lastSeen monotonically and classifying bytes by direction and
// protocol. size is the captured frame length.
func (c *Counters) Widen(tsMs int64, size int, dir Direction, isIPv4, isIPv6, isTCP, isUDP bool) {
	c.TotalPackets++
	c.TotalBytesSent += uint64(size)
	switch dir {
	case DirectionInbound:
		c.InboundBytes += uint64(size)
	default:
		c.OutboundBytes += uint64(size)
	}
	if isIPv4 {
		c.IPv4Packets++
	}
	if isIPv6 {
		c.IPv6Packets++
	}
	if isTCP {
		c.TCPPackets++
	}
	if isUDP {
		c.UDPPackets++
	}
	if c.FirstSeenMs == 0 || tsMs < c.FirstSeenMs {
		c.FirstSeenMs = tsMs
	}
	if tsMs > c.LastSeenMs {
		c.LastSeenMs = tsMs
	}
}

// CounterSnapshot is a read-only, percentage-annotated copy of Counters,
// computed once at snapshot emission (§4.8) rather than per packet.
type CounterSnapshot struct {
	Counters
	IPv4Percent int
	IPv6Percent int
	TCPPercent  int
	UDPPercent  int
}

func pct(part, whole uint64) int {
	if whole == 0 {
		return 0
	}
	return int(part * 100 / whole)
}

// Snapshot computes the percentage fields from the current counters.
func (c Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Counters:    c,
		IPv4Percent: pct(c.IPv4Packets, c.TotalPackets),
		IPv6Percent: pct(c.IPv6Packets, c.TotalPackets),
		TCPPercent:  pct(c.TCPPackets, c.TotalPackets),
		UDPPercent:  pct(c.UDPPackets, c.TotalPackets),
	}
}

// GlobalRegistryEntry aggregates traffic for a single interface.
type GlobalRegistryEntry struct {
	Interface string
	Counters  Counters
}

// InterfaceStats is the per-interface sub-counter set embedded in the
// application and process registries.
type InterfaceStats struct {
	Interface string
	Counters  Counters
}

// ApplicationRegistryEntry aggregates traffic for one application identity.
type ApplicationRegistryEntry struct {
	AppID          string
	AppName        string
	AppDisplayName string
	Counters       Counters
	ProcessCount   int
	ProcessIDs     map[string]struct{}
	RemoteIPs      map[string]struct{}
	Domains        map[string]struct{}
	GeoLocations   map[string]any
	PerInterface   map[string]*InterfaceStats
}

// NewApplicationRegistryEntry returns an initialized, empty entry.
func NewApplicationRegistryEntry(appID, appName, appDisplayName string) *ApplicationRegistryEntry {
	return &ApplicationRegistryEntry{
		AppID:          appID,
		AppName:        appName,
		AppDisplayName: appDisplayName,
		ProcessIDs:     make(map[string]struct{}),
		RemoteIPs:      make(map[string]struct{}),
		Domains:        make(map[string]struct{}),
		GeoLocations:   make(map[string]any),
		PerInterface:   make(map[string]*InterfaceStats),
	}
}

// ProcessRegistryEntry aggregates traffic for one process instance. It is
// created on first attributed packet and never removed during a session —
// it is the historical record for that process.
type ProcessRegistryEntry struct {
	Key          string // appName + ":" + pid + ":" + startTime-proxy
	PID          int32
	AppName      string
	IsRootProcess bool
	ParentPID    int32
	ExePath      string
	Counters     Counters
	RemoteIPs    map[string]struct{}
	PerInterface map[string]*InterfaceStats
}

// NewProcessRegistryEntry returns an initialized, empty entry.
func NewProcessRegistryEntry(key string, pid int32, appName string) *ProcessRegistryEntry {
	return &ProcessRegistryEntry{
		Key:          key,
		PID:          pid,
		AppName:      appName,
		RemoteIPs:    make(map[string]struct{}),
		PerInterface: make(map[string]*InterfaceStats),
	}
}
