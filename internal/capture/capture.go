// Package capture owns a live interface handle and turns captured frames
// into decoded model.PacketRecord values on a bounded internal queue
// (§4.3). The capture library contract (open/on-packet/close) mirrors §6's
// "Frame source" external interface.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/madhurdeepjain/privacyradar-core/internal/decode"
	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

const (
	// snapLen is large enough to capture full headers plus a useful chunk
	// of payload (e.g. TLS SNI, DNS) without copying entire jumbo frames.
	snapLen = 65536
	// bufferSize is the kernel-side ring buffer pcap asks the OS for.
	bufferSize = 10 * 1024 * 1024
	dropMonitorInterval = 30 * time.Second
)

// Capture owns one interface's capture handle and decoded-packet queue.
type Capture struct {
	ifaceName string
	logger    *log.Logger

	mu      sync.Mutex
	handle  *pcap.Handle
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	qmu   sync.Mutex
	queue []*model.PacketRecord
}

// New creates a Capture bound to ifaceName. The handle is not opened until
// Start is called.
func New(ifaceName string, logger *log.Logger) *Capture {
	return &Capture{ifaceName: ifaceName, logger: logger}
}

// Start opens the interface with an empty BPF filter and begins decoding
// frames into the internal queue. Start is idempotent: calling it while
// already running is a no-op (§4.3).
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	inactive, err := pcap.NewInactiveHandle(c.ifaceName)
	if err != nil {
		return fmt.Errorf("open capture handle on %s: %w", c.ifaceName, err)
	}
	defer inactive.CleanUp()
	inactive.SetSnapLen(snapLen)
	inactive.SetPromisc(true)
	inactive.SetTimeout(pcap.BlockForever)
	inactive.SetBufferSize(bufferSize)
	handle, err := inactive.Activate()
	if err != nil {
		return fmt.Errorf("open capture handle on %s: %w", c.ifaceName, err)
	}
	if err := handle.SetBPFFilter(""); err != nil {
		handle.Close()
		return fmt.Errorf("set empty BPF filter on %s: %w", c.ifaceName, err)
	}

	c.handle = handle
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(2)
	go c.captureLoop(c.stopCh, handle)
	go c.monitorDrops(c.stopCh, handle)

	c.logger.Info("capture started", "interface", c.ifaceName)
	return nil
}

// Stop closes the capture handle; a subsequent FlushQueue returns any
// remaining records then empty (§4.3).
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
	c.wg.Wait()
	c.logger.Info("capture stopped", "interface", c.ifaceName)
}

// FlushQueue atomically swaps the internal queue for an empty one and
// returns the caller-owned records that had accumulated.
func (c *Capture) FlushQueue() []*model.PacketRecord {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = nil
	return out
}

func (c *Capture) push(rec *model.PacketRecord) {
	c.qmu.Lock()
	c.queue = append(c.queue, rec)
	c.qmu.Unlock()
}

func (c *Capture) captureLoop(stop chan struct{}, handle *pcap.Handle) {
	defer c.wg.Done()
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		select {
		case <-stop:
			return
		case packet, chOK := <-source.Packets():
			if !chOK {
				return
			}
			if packet == nil {
				continue
			}
			// Immediately copy: the kernel/pcap buffer backing
			// packet.Data() is reused on the next read.
			data := packet.Data()
			owned := make([]byte, len(data))
			copy(owned, data)

			rec, ok := decode.Decode(owned, c.ifaceName, time.Now().UnixMilli())
			if !ok {
				c.logger.Debug("frame decode failed", "interface", c.ifaceName, "len", len(owned))
				continue
			}
			c.push(rec)
		}
	}
}

// monitorDrops periodically logs the capture handle's own drop counters so
// operators can see when the queue can't keep up (supplemented feature,
// grounded on the teacher's monitorDrops).
func (c *Capture) monitorDrops(stop chan struct{}, handle *pcap.Handle) {
	defer c.wg.Done()
	ticker := time.NewTicker(dropMonitorInterval)
	defer ticker.Stop()

	var lastDrops, lastTotal uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats, err := handle.Stats()
			if err != nil {
				c.logger.Debug("socket stats unavailable", "interface", c.ifaceName, "error", err)
				continue
			}
			drops := uint64(stats.PacketsDropped)
			total := uint64(stats.PacketsReceived)
			newDrops := drops - lastDrops
			newPackets := total - lastTotal
			if newDrops > 0 {
				rate := float64(0)
				if newPackets+newDrops > 0 {
					rate = float64(newDrops) / float64(newPackets+newDrops) * 100
				}
				c.logger.Warn("capture drops", "interface", c.ifaceName, "drops", newDrops, "drop_rate_pct", fmt.Sprintf("%.2f", rate))
			}
			lastDrops, lastTotal = drops, total
		}
	}
}
