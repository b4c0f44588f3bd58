// Package conntrack periodically enumerates the OS socket table and
// maintains a TCP connection map plus a UDP port-mapping table with
// staleness eviction (§4.5).
package conntrack

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/netaddr"
)

// DefaultPollInterval is the connection-poll cadence from §5.
const DefaultPollInterval = 300 * time.Millisecond

// udpStaleAfter is the eviction window for non-listener UDP mappings (§3,
// §8 invariant 5).
const udpStaleAfter = 30 * time.Second

// hardEnumerationBound caps how long a single poll may run before it's
// abandoned and the next tick runs against the previous snapshot (§5).
const hardEnumerationBound = 5 * time.Second

// SocketRow is one row of the OS socket table, the §6 "Socket-table
// source" contract.
type SocketRow struct {
	Protocol   model.Protocol
	LocalAddr  string
	LocalPort  uint16
	RemoteAddr string
	RemotePort uint16
	HasRemote  bool
	State      model.State
	PID        int32
	HasPID     bool
}

// Tracker polls the socket table on a timer.
type Tracker struct {
	logger   *log.Logger
	interval time.Duration
	queryFn  func() ([]SocketRow, error)
	nowMs    func() int64

	tcpList  atomic.Pointer[[]model.ConnectionEntry]
	tcpIndex atomic.Pointer[map[string]*model.ConnectionEntry]

	udpMu  sync.Mutex
	udpMap map[string]*model.UdpPortMapping

	pollMu  sync.Mutex // serializes refreshes; a tick that can't acquire it is skipped
	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New creates a Tracker using the platform's native socket-table source.
func New(logger *log.Logger) *Tracker {
	return NewWithSource(logger, QuerySocketTable)
}

// NewWithSource creates a Tracker with a custom socket-table source, used
// by tests.
func NewWithSource(logger *log.Logger, queryFn func() ([]SocketRow, error)) *Tracker {
	t := &Tracker{
		logger:   logger,
		interval: DefaultPollInterval,
		queryFn:  queryFn,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
		udpMap:   make(map[string]*model.UdpPortMapping),
	}
	emptyList := []model.ConnectionEntry{}
	emptyIndex := map[string]*model.ConnectionEntry{}
	t.tcpList.Store(&emptyList)
	t.tcpIndex.Store(&emptyIndex)
	return t
}

// Start begins polling on t.interval. Idempotent.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.refresh()

	t.wg.Add(1)
	go func(stop chan struct{}) {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// Skip this tick if a refresh is already in flight
				// rather than overlapping enumerations (§4.5, §5).
				if t.pollMu.TryLock() {
					t.pollMu.Unlock()
					t.refresh()
				} else {
					t.logger.Debug("connection poll skipped, previous refresh still running")
				}
			}
		}
	}(t.stopCh)
}

// Stop cancels the poll timer.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) refresh() {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	done := make(chan struct{})
	var rows []SocketRow
	var err error
	go func() {
		rows, err = t.queryFn()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(hardEnumerationBound):
		t.logger.Debug("socket table enumeration exceeded bound, abandoning cycle")
		return
	}

	if err != nil {
		t.logger.Debug("socket table enumeration failed, keeping previous snapshot", "error", err)
		return
	}

	now := t.nowMs()
	var tcpList []model.ConnectionEntry
	tcpIndex := make(map[string]*model.ConnectionEntry)
	var freshUDP []model.UdpPortMapping

	for _, row := range rows {
		localAddr := netaddr.Normalize(row.LocalAddr)
		remoteAddr := netaddr.Normalize(row.RemoteAddr)

		if row.LocalPort == 0 || !row.HasPID {
			continue
		}
		if isLoopbackOnly(localAddr, remoteAddr, row.HasRemote) {
			continue
		}

		entry := model.ConnectionEntry{
			Protocol:   row.Protocol,
			LocalAddr:  localAddr,
			LocalPort:  row.LocalPort,
			RemoteAddr: remoteAddr,
			RemotePort: row.RemotePort,
			HasRemote:  row.HasRemote,
			State:      row.State,
			PID:        row.PID,
			HasPID:     row.HasPID,
		}

		if row.Protocol.IsTCP() {
			tcpList = append(tcpList, entry)
			tcpIndex[netaddr.AddrPort(localAddr, row.LocalPort)] = &tcpList[len(tcpList)-1]
			continue
		}

		// UDP: build a fresh mapping, listener or not.
		isListener := !row.HasRemote
		freshUDP = append(freshUDP, model.UdpPortMapping{
			LocalAddr:  localAddr,
			LocalPort:  row.LocalPort,
			PID:        row.PID,
			LastSeenMs: now,
			IsListener: isListener,
		})
	}

	// Re-point every index entry once tcpList has stopped growing: a pointer
	// taken inside the loop may refer to a backing array that a later append
	// replaced, and only the slice published below is seen by readers.
	for i := range tcpList {
		tcpIndex[netaddr.AddrPort(tcpList[i].LocalAddr, tcpList[i].LocalPort)] = &tcpList[i]
	}

	t.tcpList.Store(&tcpList)
	t.tcpIndex.Store(&tcpIndex)

	t.spliceUDP(freshUDP, now)
}

// spliceUDP folds freshly observed UDP rows into the persistent map without
// clearing it first (§4.5 step 3, §9 "UDP map persistence across cycles").
// Non-listener entries older than udpStaleAfter are evicted before the
// splice.
func (t *Tracker) spliceUDP(fresh []model.UdpPortMapping, now int64) {
	t.udpMu.Lock()
	defer t.udpMu.Unlock()

	for key, m := range t.udpMap {
		if !m.IsListener && now-m.LastSeenMs > udpStaleAfter.Milliseconds() {
			delete(t.udpMap, key)
		}
	}

	for i := range fresh {
		m := fresh[i]
		specific := netaddr.AddrPort(m.LocalAddr, m.LocalPort)
		t.udpMap[specific] = &m
		if m.IsListener {
			// Listeners are indexed twice: addr:port and :port, so a
			// packet whose destination only matches the port can still
			// resolve (§3, §4.5 step 2, §8 boundary case).
			wildcard := ":" + itoa(m.LocalPort)
			t.udpMap[wildcard] = &m
		}
	}
}

// GetTcpConnections returns the current TCP connection list.
func (t *Tracker) GetTcpConnections() []model.ConnectionEntry {
	return *t.tcpList.Load()
}

// GetConnections returns every currently tracked connection (TCP plus the
// live UDP mappings), matching §4.5's getConnections().
func (t *Tracker) GetConnections() []model.ConnectionEntry {
	out := append([]model.ConnectionEntry(nil), t.GetTcpConnections()...)

	t.udpMu.Lock()
	seen := make(map[string]bool, len(t.udpMap))
	for _, m := range t.udpMap {
		specific := netaddr.AddrPort(m.LocalAddr, m.LocalPort)
		if seen[specific] {
			continue
		}
		seen[specific] = true
		proto := model.ProtoUDP4
		if isV6(m.LocalAddr) {
			proto = model.ProtoUDP6
		}
		state := model.StateEstablished
		if m.IsListener {
			state = model.StateListening
		}
		out = append(out, model.ConnectionEntry{
			Protocol:  proto,
			LocalAddr: m.LocalAddr,
			LocalPort: m.LocalPort,
			State:     state,
			PID:       m.PID,
			HasPID:    true,
			ProcName:  m.ProcName,
		})
	}
	t.udpMu.Unlock()
	return out
}

// GetUdpMap returns a copy of every live UDP mapping.
func (t *Tracker) GetUdpMap() map[string]model.UdpPortMapping {
	t.udpMu.Lock()
	defer t.udpMu.Unlock()
	out := make(map[string]model.UdpPortMapping, len(t.udpMap))
	for k, v := range t.udpMap {
		out[k] = *v
	}
	return out
}

// GetUdpMapping resolves addr:port, falling back to the wildcard :port
// entry if it exists and is a listener (§4.5 getUdpMapping).
func (t *Tracker) GetUdpMapping(addr string, port uint16) (model.UdpPortMapping, bool) {
	t.udpMu.Lock()
	defer t.udpMu.Unlock()

	specific := netaddr.AddrPort(addr, port)
	if m, ok := t.udpMap[specific]; ok {
		return *m, true
	}
	wildcard := ":" + itoa(port)
	if m, ok := t.udpMap[wildcard]; ok && m.IsListener {
		return *m, true
	}
	return model.UdpPortMapping{}, false
}

// SetUdpProcName fills in procName for an existing mapping and bumps
// lastSeen, used by the Process<->Connection Manager when it resolves a
// packet through a mapping that doesn't yet have a name (§4.7).
func (t *Tracker) SetUdpProcName(addr string, port uint16, procName string, now int64) {
	t.udpMu.Lock()
	defer t.udpMu.Unlock()
	specific := netaddr.AddrPort(addr, port)
	if m, ok := t.udpMap[specific]; ok {
		m.ProcName = procName
		m.LastSeenMs = now
	}
	wildcard := ":" + itoa(port)
	if m, ok := t.udpMap[wildcard]; ok {
		m.ProcName = procName
		m.LastSeenMs = now
	}
}

// BackfillProcName fills procName on TCP connections and UDP mappings that
// don't have one yet (§4.7 syncConnectionInfo step 3).
func (t *Tracker) BackfillProcName(localAddr string, localPort uint16, procName string) {
	index := *t.tcpIndex.Load()
	key := netaddr.AddrPort(localAddr, localPort)
	if entry, ok := index[key]; ok && entry.ProcName == "" {
		entry.ProcName = procName
	}

	t.udpMu.Lock()
	if m, ok := t.udpMap[key]; ok && m.ProcName == "" {
		m.ProcName = procName
	}
	t.udpMu.Unlock()
}

func isLoopbackOnly(localAddr, remoteAddr string, hasRemote bool) bool {
	if !isLoopback(localAddr) {
		return false
	}
	if !hasRemote {
		return true
	}
	return isLoopback(remoteAddr)
}

func isLoopback(addr string) bool {
	if addr == "" {
		return false
	}
	if len(addr) >= 4 && addr[:4] == "127." {
		return true
	}
	return addr == "0000:0000:0000:0000:0000:0000:0000:0001" || addr == "::1"
}

func isV6(addr string) bool {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			return true
		}
	}
	return false
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	n := v
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
