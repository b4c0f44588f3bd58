package snapshot

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

func testSampler() Sampler {
	return Sampler{
		Global:       func() map[string]model.CounterSnapshot { return nil },
		Applications: func() []model.ApplicationRegistryEntry { return nil },
		Processes:    func() []model.ProcessRegistryEntry { return nil },
		Connections:  func() []model.ConnectionEntry { return nil },
	}
}

func TestSchedulerPublishesOnInterval(t *testing.T) {
	var mu sync.Mutex
	var count int
	publish := func(Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	s := New(log.New(io.Discard), 10*time.Millisecond, testSampler(), publish)
	s.Start()
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count < 2 {
		t.Fatalf("expected at least 2 publishes in 55ms at a 10ms interval, got %d", count)
	}
}

func TestSchedulerZeroIntervalUsesDefault(t *testing.T) {
	s := New(log.New(io.Discard), 0, testSampler(), func(Snapshot) {})
	if s.interval != DefaultInterval {
		t.Fatalf("expected default interval %v, got %v", DefaultInterval, s.interval)
	}
}

func TestSchedulerSkipsOverlappingPublish(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var started, finished int

	publish := func(Snapshot) {
		mu.Lock()
		started++
		mu.Unlock()
		<-release
		mu.Lock()
		finished++
		mu.Unlock()
	}

	s := New(log.New(io.Discard), 10*time.Millisecond, testSampler(), publish)
	s.Start()
	time.Sleep(35 * time.Millisecond)

	mu.Lock()
	gotStarted := started
	gotFinished := finished
	mu.Unlock()
	if gotStarted != 1 || gotFinished != 0 {
		t.Fatalf("expected the first publish to still be blocking subsequent ticks, started=%d finished=%d", gotStarted, gotFinished)
	}

	close(release)
	s.Stop()
}

func TestStopIsIdempotentWithoutStart(t *testing.T) {
	s := New(log.New(io.Discard), time.Millisecond, testSampler(), func(Snapshot) {})
	s.Stop()
	s.Stop()
}
