// Package snapshot periodically publishes the Registry Manager's state and
// the current connection list to an external consumer (§4.9, §6 "Snapshot
// sampler").
package snapshot

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

// DefaultInterval is the middle of §5's 3-5s consumer-configurable range.
const DefaultInterval = 4000 * time.Millisecond

// Snapshot is one published sample of the core's aggregate state.
type Snapshot struct {
	TimestampMs int64
	Global      map[string]model.CounterSnapshot
	Applications []model.ApplicationRegistryEntry
	Processes    []model.ProcessRegistryEntry
	Connections  []model.ConnectionEntry
}

// Sampler is the read surface the scheduler pulls from, satisfied by
// *registry.Manager plus a connections accessor without an import cycle.
type Sampler struct {
	Global       func() map[string]model.CounterSnapshot
	Applications func() []model.ApplicationRegistryEntry
	Processes    func() []model.ProcessRegistryEntry
	Connections  func() []model.ConnectionEntry
}

// Scheduler fires Sampler on a fixed interval and hands the result to a
// publish callback. Debounced: a tick that finds a publish already running
// is skipped rather than queued.
type Scheduler struct {
	logger   *log.Logger
	interval time.Duration
	sampler  Sampler
	publish  func(Snapshot)
	nowMs    func() int64

	publishMu sync.Mutex
	mu        sync.Mutex
	stopCh    chan struct{}
	running   bool
	wg        sync.WaitGroup
}

// New creates a Scheduler that publishes every interval. A zero or negative
// interval selects DefaultInterval; no other bound is applied.
func New(logger *log.Logger, interval time.Duration, sampler Sampler, publish func(Snapshot)) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		logger:   logger,
		interval: interval,
		sampler:  sampler,
		publish:  publish,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Start begins the publish timer. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go func(stop chan struct{}) {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.publishMu.TryLock() {
					s.emit()
					s.publishMu.Unlock()
				} else {
					s.logger.Debug("snapshot emission skipped, previous publish still running")
				}
			}
		}
	}(s.stopCh)
}

// Stop cancels the publish timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) emit() {
	snap := Snapshot{
		TimestampMs:  s.nowMs(),
		Global:       s.sampler.Global(),
		Applications: s.sampler.Applications(),
		Processes:    s.sampler.Processes(),
		Connections:  s.sampler.Connections(),
	}
	s.publish(snap)
}
