// Package proccon orchestrates attribution: it enqueues decoded packets,
// resolves pid/procName via the matcher and UDP side-tables, and exposes
// the enriched packets to the Registry Manager (§4.7).
package proccon

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/conntrack"
	"github.com/madhurdeepjain/privacyradar-core/internal/match"
	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/procs"
)

// DefaultSyncInterval is the ProcCon sync cadence from §5.
const DefaultSyncInterval = 1000 * time.Millisecond

// unknownProcName is attached when no process name can be resolved (§4.7).
const unknownProcName = "UNKNOWN"

// Manager is the Process<->Connection Manager.
type Manager struct {
	logger   *log.Logger
	interval time.Duration

	conns   *conntrack.Tracker
	procs   *procs.Tracker
	matcher *match.Matcher

	localIPs map[string]bool

	nowMs func() int64

	mu    sync.Mutex
	queue []*model.PacketRecord

	lifecycleMu sync.Mutex
	stopCh      chan struct{}
	running     bool
	wg          sync.WaitGroup
}

// New creates a Manager wired to the three collaborators and a fixed set of
// local addresses (the host's own bound addresses, used for UDP
// directionality resolution).
func New(logger *log.Logger, connTracker *conntrack.Tracker, procTracker *procs.Tracker, matcher *match.Matcher, localIPs []string) *Manager {
	ips := make(map[string]bool, len(localIPs))
	for _, ip := range localIPs {
		ips[ip] = true
	}
	return &Manager{
		logger:   logger,
		interval: DefaultSyncInterval,
		conns:    connTracker,
		procs:    procTracker,
		matcher:  matcher,
		localIPs: ips,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Start begins the sync timer. Idempotent.
func (m *Manager) Start() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.syncConnectionInfo()

	m.wg.Add(1)
	go func(stop chan struct{}) {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.syncConnectionInfo()
			}
		}
	}(m.stopCh)
}

// Stop cancels the sync timer.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	if !m.running {
		m.lifecycleMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.lifecycleMu.Unlock()
	m.wg.Wait()
}

// syncConnectionInfo implements §4.7's four-step sync: read connections,
// resolve names, back-fill the tracker's caches, and publish a fresh
// ConnectionMap to the matcher.
func (m *Manager) syncConnectionInfo() {
	conns := m.conns.GetConnections()
	for i := range conns {
		if !conns[i].HasPID {
			continue
		}
		name := m.procs.GetProcessName(conns[i].PID)
		if name == "" {
			name = unknownProcName
		}
		conns[i].ProcName = name

		if name != unknownProcName {
			m.conns.BackfillProcName(conns[i].LocalAddr, conns[i].LocalPort, name)
		}
	}
	m.matcher.UpdateConnectionMap(conns)
}

// EnqueuePacket resolves attribution for pkt and pushes it onto the
// internal queue. UDP packets are always enqueued, even unattributed, per
// §4.7 step 4's rationale: UDP's connectionless nature means many
// legitimate flows never surface in the socket table.
func (m *Manager) EnqueuePacket(pkt *model.PacketRecord) {
	if pkt.IsUDP() {
		m.attributeUDP(pkt)
	} else {
		m.attributeDirect(pkt)
	}

	m.mu.Lock()
	m.queue = append(m.queue, pkt)
	m.mu.Unlock()
}

// attributeDirect handles every non-UDP packet with a synchronous matcher
// lookup. Only TCP packets yield a matcher key, so ICMP and non-IP packets
// always come back UNKNOWN.
func (m *Manager) attributeDirect(pkt *model.PacketRecord) {
	entry, ok := m.matcher.MatchPacket(pkt)
	if !ok {
		pkt.ProcName = unknownProcName
		pkt.Attributed = false
		return
	}
	pkt.PID = entry.PID
	pkt.ProcName = entry.ProcName
	if pkt.ProcName == "" {
		pkt.ProcName = unknownProcName
	}
	pkt.Attributed = pkt.ProcName != unknownProcName
}

// attributeUDP implements §4.7's UDP side-resolution: prefer the local
// side of the flow, then fall back to the matcher for the rare case a UDP
// "connection" actually appears in the connection-table-derived map.
func (m *Manager) attributeUDP(pkt *model.PacketRecord) {
	srcIsLocal := m.localIPs[pkt.SrcIP]
	dstIsLocal := m.localIPs[pkt.DstIP]

	var mapping model.UdpPortMapping
	var ok bool
	switch {
	case dstIsLocal:
		mapping, ok = m.conns.GetUdpMapping(pkt.DstIP, pkt.DstPort)
	case srcIsLocal:
		mapping, ok = m.conns.GetUdpMapping(pkt.SrcIP, pkt.SrcPort)
	}

	if !ok {
		if entry, matched := m.matcher.MatchPacket(pkt); matched {
			pkt.PID = entry.PID
			pkt.ProcName = entry.ProcName
			if pkt.ProcName == "" {
				pkt.ProcName = unknownProcName
			}
			pkt.Attributed = pkt.ProcName != unknownProcName
			return
		}
		pkt.ProcName = unknownProcName
		pkt.Attributed = false
		return
	}

	name := mapping.ProcName
	if name == "" {
		name = m.procs.GetProcessName(mapping.PID)
		if name == "" {
			name = unknownProcName
		}
	}

	now := m.nowMs()
	addr, port := pkt.DstIP, pkt.DstPort
	if !dstIsLocal {
		addr, port = pkt.SrcIP, pkt.SrcPort
	}
	m.conns.SetUdpProcName(addr, port, name, now)

	pkt.PID = mapping.PID
	pkt.ProcName = name
	pkt.Attributed = name != unknownProcName
}

// FlushQueue atomically swaps the queue for nil and returns its prior
// contents, caller-owned.
func (m *Manager) FlushQueue() []*model.PacketRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}
