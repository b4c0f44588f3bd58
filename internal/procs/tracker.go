// Package procs periodically enumerates OS processes and exposes a
// pid -> {name, exe, ppid} lookup plus a root-ancestor walk (§4.4).
package procs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

// DefaultPollInterval is the process-poll cadence from §5.
const DefaultPollInterval = 1000 * time.Millisecond

// maxAncestorDepth bounds findRootAncestor against ppid cycles or
// unexpectedly deep chains (§4.4).
const maxAncestorDepth = 32

// procMap is the atomically-swapped snapshot.
type procMap map[int32]model.ProcessEntry

// Tracker polls the OS process table on a timer and serves point-in-time
// lookups against the most recently completed poll.
type Tracker struct {
	logger   *log.Logger
	interval time.Duration
	enumFn   func() ([]model.ProcessEntry, error)

	current atomic.Pointer[procMap]

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New creates a Tracker using the platform's native process enumerator.
func New(logger *log.Logger) *Tracker {
	return NewWithEnumerator(logger, EnumerateProcesses)
}

// NewWithEnumerator creates a Tracker with a custom enumeration function,
// used by tests to avoid depending on a real process table.
func NewWithEnumerator(logger *log.Logger, enumFn func() ([]model.ProcessEntry, error)) *Tracker {
	t := &Tracker{logger: logger, interval: DefaultPollInterval, enumFn: enumFn}
	empty := procMap{}
	t.current.Store(&empty)
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
	t.pollOnce()

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
				t.pollOnce()
			}
		}
	}(t.stopCh)
}

// Stop cancels the poll timer. Best-effort: an in-flight poll is allowed to
// finish (§5).
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

func (t *Tracker) pollOnce() {
	entries, err := t.enumFn()
	if err != nil {
		// TransientPollError (§7): keep serving the previous snapshot.
		t.logger.Debug("process enumeration failed, keeping previous snapshot", "error", err)
		return
	}
	next := make(procMap, len(entries))
	for _, e := range entries {
		next[e.PID] = e
	}
	t.current.Store(&next)
}

// GetProcess returns the process entry for pid, if known as of the last
// completed poll.
func (t *Tracker) GetProcess(pid int32) (model.ProcessEntry, bool) {
	m := *t.current.Load()
	e, ok := m[pid]
	return e, ok
}

// GetProcessName returns the process name for pid, or "" if unknown.
func (t *Tracker) GetProcessName(pid int32) string {
	e, ok := t.GetProcess(pid)
	if !ok {
		return ""
	}
	return e.Name
}

// FindRootAncestor walks the ppid chain from pid until it finds a process
// whose parent is unknown (outside the visible process table) or until
// maxAncestorDepth is reached, cycle-guarded by a visited set (§4.4, §9).
func (t *Tracker) FindRootAncestor(pid int32) int32 {
	visited := make(map[int32]bool, maxAncestorDepth)
	current := pid
	for depth := 0; depth < maxAncestorDepth; depth++ {
		if visited[current] {
			return current
		}
		visited[current] = true

		entry, ok := t.GetProcess(current)
		if !ok || !entry.HasPPID || entry.PPID == 0 || entry.PPID == current {
			return current
		}
		if _, parentKnown := t.GetProcess(entry.PPID); !parentKnown {
			return current
		}
		current = entry.PPID
	}
	return current
}
