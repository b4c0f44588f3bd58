// Package registry aggregates enriched packet records into global,
// per-application and per-process registries (§4.8).
package registry

import (
	"strconv"
	"strings"
	"sync"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

const unknownInterface = "<unknown-interface>"

// rootAncestorFn resolves a pid's root ancestor, satisfied by
// *procs.Tracker without creating an import cycle.
type rootAncestorFn func(pid int32) int32

// processInfoFn resolves a pid's exePath/ppid/startTime for ProcessRegistry
// creation and keying, satisfied by *procs.Tracker.GetProcess without an
// import cycle.
type processInfoFn func(pid int32) (exePath string, ppid int32, hasPPID bool, startTime uint64, hasStartTime bool, ok bool)

// Manager owns the three registries. All mutation happens on the single
// goroutine that calls Record; readers take the read lock (or, for
// snapshot emission, a point-in-time copy).
type Manager struct {
	findRootAncestor rootAncestorFn
	processInfo      processInfoFn
	localIPs         map[string]bool

	mu     sync.RWMutex
	global map[string]*model.GlobalRegistryEntry
	apps   map[string]*model.ApplicationRegistryEntry
	procs  map[string]*model.ProcessRegistryEntry
}

// New creates an empty Manager. localIPs is the set of the host's own
// bound addresses, used to classify packet direction (§4.8 step 2).
func New(findRootAncestor rootAncestorFn, processInfo processInfoFn, localIPs []string) *Manager {
	ips := make(map[string]bool, len(localIPs))
	for _, ip := range localIPs {
		ips[ip] = true
	}
	return &Manager{
		findRootAncestor: findRootAncestor,
		processInfo:      processInfo,
		localIPs:         ips,
		global:           make(map[string]*model.GlobalRegistryEntry),
		apps:             make(map[string]*model.ApplicationRegistryEntry),
		procs:            make(map[string]*model.ProcessRegistryEntry),
	}
}

// Record applies one enriched packet to all three registries (§4.8,
// steps 1-6). It never fails: any missing/invalid field is folded into a
// catch-all bucket instead.
func (m *Manager) Record(pkt *model.PacketRecord) {
	appID, appName, appDisplayName := classifyApp(pkt.ProcName, pkt.PID)
	direction := m.classifyDirection(pkt)

	iface := pkt.Interface
	if iface == "" {
		iface = unknownInterface
	}

	isIPv4 := pkt.IPv4 != nil
	isIPv6 := pkt.IPv6 != nil
	isTCP := pkt.IsTCP()
	isUDP := pkt.IsUDP()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.widenGlobal(iface, pkt, direction, isIPv4, isIPv6, isTCP, isUDP)
	app := m.upsertApplication(appID, appName, appDisplayName)
	app.Counters.Widen(pkt.TimestampMs, pkt.CapturedLen, direction, isIPv4, isIPv6, isTCP, isUDP)
	m.widenInterface(app.PerInterface, iface, pkt, direction, isIPv4, isIPv6, isTCP, isUDP)
	if pkt.DstIP != "" {
		app.RemoteIPs[pkt.DstIP] = struct{}{}
	}

	if pkt.PID != 0 || pkt.Attributed {
		proc := m.upsertProcess(appName, pkt.PID)
		proc.Counters.Widen(pkt.TimestampMs, pkt.CapturedLen, direction, isIPv4, isIPv6, isTCP, isUDP)
		m.widenInterface(proc.PerInterface, iface, pkt, direction, isIPv4, isIPv6, isTCP, isUDP)
		if pkt.DstIP != "" {
			proc.RemoteIPs[pkt.DstIP] = struct{}{}
		}
		app.ProcessIDs[proc.Key] = struct{}{}
		app.ProcessCount = len(app.ProcessIDs)
	}

	pkt.Direction = direction
	pkt.AppRegistryID = appID
	pkt.AppName = appName
	pkt.AppDisplayName = appDisplayName
}

func (m *Manager) widenGlobal(iface string, pkt *model.PacketRecord, dir model.Direction, isIPv4, isIPv6, isTCP, isUDP bool) {
	g, ok := m.global[iface]
	if !ok {
		g = &model.GlobalRegistryEntry{Interface: iface}
		m.global[iface] = g
	}
	g.Counters.Widen(pkt.TimestampMs, pkt.CapturedLen, dir, isIPv4, isIPv6, isTCP, isUDP)
}

func (m *Manager) widenInterface(perInterface map[string]*model.InterfaceStats, iface string, pkt *model.PacketRecord, dir model.Direction, isIPv4, isIPv6, isTCP, isUDP bool) {
	stats, ok := perInterface[iface]
	if !ok {
		stats = &model.InterfaceStats{Interface: iface}
		perInterface[iface] = stats
	}
	stats.Counters.Widen(pkt.TimestampMs, pkt.CapturedLen, dir, isIPv4, isIPv6, isTCP, isUDP)
}

func (m *Manager) upsertApplication(appID, appName, appDisplayName string) *model.ApplicationRegistryEntry {
	app, ok := m.apps[appID]
	if !ok {
		app = model.NewApplicationRegistryEntry(appID, appName, appDisplayName)
		m.apps[appID] = app
	}
	return app
}

func (m *Manager) upsertProcess(appName string, pid int32) *model.ProcessRegistryEntry {
	exePath, ppid, hasPPID, startTime, hasStartTime, infoOK := m.processInfo(pid)

	// The start-time proxy distinguishes this process instance from a
	// future unrelated process that the OS reuses pid for under the same
	// appName; without it a reused pid would silently inherit the prior
	// instance's historical counters.
	startProxy := "0"
	if hasStartTime {
		startProxy = strconv.FormatUint(startTime, 10)
	}
	key := appName + ":" + strconv.Itoa(int(pid)) + ":" + startProxy

	proc, ok := m.procs[key]
	if !ok {
		proc = model.NewProcessRegistryEntry(key, pid, appName)
		proc.IsRootProcess = m.findRootAncestor(pid) == pid
		if infoOK {
			proc.ExePath = exePath
			if hasPPID {
				proc.ParentPID = ppid
			}
		}
		m.procs[key] = proc
	}
	return proc
}

// classifyApp implements §4.8 step 1's app-identity derivation.
func classifyApp(procName string, pid int32) (appID, appName, appDisplayName string) {
	switch {
	case procName == "" || procName == "UNKNOWN":
		return "unknown", "Unknown", "Unknown"
	case pid == 0, strings.EqualFold(procName, "system"):
		return "system", "System", "System"
	default:
		normalized := strings.ToLower(strings.TrimSuffix(procName, ".exe"))
		return normalized, normalized, displayNameFor(normalized)
	}
}

// classifyDirection implements §4.8 step 2: a packet is outbound iff its
// source is one of the host's own addresses, falling back to outbound
// when that can't be determined.
func (m *Manager) classifyDirection(pkt *model.PacketRecord) model.Direction {
	if pkt.SrcIP != "" && m.localIPs[pkt.SrcIP] {
		return model.DirectionOutbound
	}
	if pkt.DstIP != "" && m.localIPs[pkt.DstIP] {
		return model.DirectionInbound
	}
	return model.DirectionOutbound
}

// GlobalSnapshot returns a percentage-annotated copy of every interface's
// counters.
func (m *Manager) GlobalSnapshot() map[string]model.CounterSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]model.CounterSnapshot, len(m.global))
	for iface, g := range m.global {
		out[iface] = g.Counters.Snapshot()
	}
	return out
}

// ApplicationSnapshot returns a shallow copy of the application registry,
// safe for a snapshot consumer to read without holding the manager's lock.
func (m *Manager) ApplicationSnapshot() []model.ApplicationRegistryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ApplicationRegistryEntry, 0, len(m.apps))
	for _, a := range m.apps {
		out = append(out, *a)
	}
	return out
}

// ProcessSnapshot returns a shallow copy of the process registry.
func (m *Manager) ProcessSnapshot() []model.ProcessRegistryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ProcessRegistryEntry, 0, len(m.procs))
	for _, p := range m.procs {
		out = append(out, *p)
	}
	return out
}
