// Package analyzer is the lifecycle orchestrator: it wires together
// capture, the process and connection trackers, the matcher, the
// process<->connection manager, the registry and the snapshot scheduler,
// and drives them on the cadences in §5 (§4.9 "Analyzer Runner").
package analyzer

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/capture"
	"github.com/madhurdeepjain/privacyradar-core/internal/conntrack"
	"github.com/madhurdeepjain/privacyradar-core/internal/ifaces"
	"github.com/madhurdeepjain/privacyradar-core/internal/match"
	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/proccon"
	"github.com/madhurdeepjain/privacyradar-core/internal/procs"
	"github.com/madhurdeepjain/privacyradar-core/internal/registry"
	"github.com/madhurdeepjain/privacyradar-core/internal/snapshot"
)

// PacketTickInterval is the 10 Hz packet-processing cadence from §5.
const PacketTickInterval = 100 * time.Millisecond

// Runner is the Analyzer Runner.
type Runner struct {
	logger *log.Logger

	procTracker *procs.Tracker
	connTracker *conntrack.Tracker
	matcher     *match.Matcher
	manager     *proccon.Manager
	reg         *registry.Manager
	scheduler   *snapshot.Scheduler

	onPacketBatch func([]*model.PacketRecord)

	mu       sync.Mutex
	running  bool
	iface    string
	localIPs []string
	capture  *capture.Capture
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Runner. snapshotInterval of zero selects
// snapshot.DefaultInterval.
func New(logger *log.Logger, snapshotInterval time.Duration, onSnapshot func(snapshot.Snapshot), onPacketBatch func([]*model.PacketRecord)) *Runner {
	procTracker := procs.New(logger)
	connTracker := conntrack.New(logger)
	matcher := match.New()

	r := &Runner{
		logger:        logger,
		procTracker:   procTracker,
		connTracker:   connTracker,
		matcher:       matcher,
		onPacketBatch: onPacketBatch,
	}

	r.scheduler = snapshot.New(logger, snapshotInterval, snapshot.Sampler{
		Global:       func() map[string]model.CounterSnapshot { return r.reg.GlobalSnapshot() },
		Applications: func() []model.ApplicationRegistryEntry { return r.reg.ApplicationSnapshot() },
		Processes:    func() []model.ProcessRegistryEntry { return r.reg.ProcessSnapshot() },
		Connections:  func() []model.ConnectionEntry { return r.connTracker.GetConnections() },
	}, onSnapshot)

	return r
}

// processInfo adapts procs.Tracker.GetProcess to registry's injection
// point without an import cycle.
func (r *Runner) processInfo(pid int32) (exePath string, ppid int32, hasPPID bool, startTime uint64, hasStartTime bool, ok bool) {
	entry, found := r.procTracker.GetProcess(pid)
	if !found {
		return "", 0, false, 0, false, false
	}
	return entry.ExePath, entry.PPID, entry.HasPPID, entry.StartTime, entry.HasStartTime, true
}

// Start begins capture and all pollers on interfaceName, attributing
// traffic against localIPs (the host's own bound addresses). Idempotent
// (§4.9).
func (r *Runner) Start(interfaceName string, localIPs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	c := capture.New(interfaceName, r.logger)
	if err := c.Start(); err != nil {
		return fmt.Errorf("start capture on %s: %w", interfaceName, err)
	}

	r.capture = c
	r.iface = interfaceName
	r.localIPs = append([]string(nil), localIPs...)
	r.reg = registry.New(r.procTracker.FindRootAncestor, r.processInfo, r.localIPs)
	r.manager = proccon.New(r.logger, r.connTracker, r.procTracker, r.matcher, r.localIPs)

	r.procTracker.Start()
	r.connTracker.Start()
	r.manager.Start()
	r.scheduler.Start()

	r.running = true
	r.stopCh = make(chan struct{})
	r.wg.Add(1)
	go r.packetTickLoop(r.stopCh)

	r.logger.Info("analyzer started", "interface", interfaceName)
	return nil
}

// Stop reverses Start's order: cancel timers, stop capture, drain queues
// (§4.9, §5 "stop() is best-effort").
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	c := r.capture
	r.mu.Unlock()

	r.wg.Wait()
	r.scheduler.Stop()
	r.manager.Stop()
	r.connTracker.Stop()
	r.procTracker.Stop()
	if c != nil {
		c.Stop()
		// Drain: deliver whatever capture queued before its handle closed.
		r.processTick()
	}

	r.mu.Lock()
	r.capture = nil
	r.mu.Unlock()

	r.logger.Info("analyzer stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// GetConnections returns the tracker's current connection list (§6
// "Snapshot sampler").
func (r *Runner) GetConnections() []model.ConnectionEntry {
	return r.connTracker.GetConnections()
}

// GetInterfaces lists capturable interfaces.
func (r *Runner) GetInterfaces() ([]ifaces.Interface, error) {
	return ifaces.List()
}

// SelectInterfaces re-selects the capture interface: stop and restart
// atomically on the new interface, keeping the same localIPs set (§4.9).
func (r *Runner) SelectInterfaces(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("selectInterfaces: at least one interface name required")
	}

	r.mu.Lock()
	localIPs := r.localIPs
	wasRunning := r.running
	r.mu.Unlock()

	if wasRunning {
		r.Stop()
	}
	return r.Start(names[0], localIPs)
}

// packetTickLoop implements §4.9 step 5: every 100ms, flush the capture
// queue, enqueue each decoded packet into the ProcCon Manager, flush it,
// feed the result into the Registry Manager and the external consumer, in
// capture order (§5 "Ordering guarantees").
func (r *Runner) packetTickLoop(stop chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(PacketTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.processTick()
		}
	}
}

func (r *Runner) processTick() {
	decoded := r.capture.FlushQueue()
	if len(decoded) == 0 {
		return
	}
	for _, pkt := range decoded {
		pkt.Interface = r.iface
		r.manager.EnqueuePacket(pkt)
	}

	batch := r.manager.FlushQueue()
	if len(batch) == 0 {
		return
	}
	for _, pkt := range batch {
		r.reg.Record(pkt)
	}
	if r.onPacketBatch != nil {
		r.onPacketBatch(batch)
	}
}
