// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "featex/internal/log"
	"featex/internal/transport"
)

const (
	// HeaderSize is the fixed packet prefix before the values.
	HeaderSize = 4 + 4 + 2
	// MaxValues is the largest value count a packet can carry.
	MaxValues = math.MaxUint16

	queueSize = 1024
)

var (
	ErrNotRunning  = errors.New("udp: publisher not running")
	ErrShortPacket = errors.New("udp: short packet")
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Frame sequence          |
| Block Index       | uint32         | 4            | Analysed block index    |
| Value Count       | uint16         | 2            | Number of floats (N)    |
| Values            | []float32      | N * 4        | Features in row order   |
+-----------------------------------------------------------------------------+

Visual Layout:

|<---- 4 Bytes ---->|<---- 4 Bytes ---->|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-------------------+---------------+-------------------------+
|  Sequence Number  |    Block Index    |  Value Count  |         Values          |
|      (uint32)     |      (uint32)     |    (uint16)   |      (N * float32)      |
+-------------------+-------------------+---------------+-------------------------+
*/

// AppendPacket appends the wire form of frame to dst.
func AppendPacket(dst []byte, frame transport.FeatureFrame) ([]byte, error) {
	if len(frame.Values) > MaxValues {
		return dst, fmt.Errorf("udp: %d values exceed the packet limit of %d", len(frame.Values), MaxValues)
	}
	if frame.Block < 0 || uint64(frame.Block) > math.MaxUint32 {
		return dst, fmt.Errorf("udp: block index %d does not fit the packet header", frame.Block)
	}
	dst = binary.BigEndian.AppendUint32(dst, frame.Seq)
	dst = binary.BigEndian.AppendUint32(dst, uint32(frame.Block))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(frame.Values)))
	for _, v := range frame.Values {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst, nil
}

// ParsePacket decodes a packet written by AppendPacket. Names and TimeSec are
// not carried on the wire.
func ParsePacket(b []byte) (transport.FeatureFrame, error) {
	if len(b) < HeaderSize {
		return transport.FeatureFrame{}, fmt.Errorf("%d bytes: %w", len(b), ErrShortPacket)
	}
	frame := transport.FeatureFrame{
		Seq:   binary.BigEndian.Uint32(b[0:]),
		Block: int(binary.BigEndian.Uint32(b[4:])),
	}
	count := int(binary.BigEndian.Uint16(b[8:]))
	if len(b) < HeaderSize+count*4 {
		return frame, fmt.Errorf("%d values in %d bytes: %w", count, len(b), ErrShortPacket)
	}
	frame.Values = make([]float32, count)
	for i := range count {
		frame.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(b[HeaderSize+i*4:]))
	}
	return frame, nil
}

// Publisher packs feature frames and sends them over UDP from its own
// goroutine. With a positive interval only the most recent frame per tick is
// sent; otherwise every frame is sent.
type Publisher struct {
	sender   *Sender       // The underlying UDP sender instance.
	interval time.Duration // Minimum spacing of packets, 0 for none.

	queue    chan []byte    // Packed frames waiting for the publisher goroutine.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.RWMutex   // Protects queue during Start/Stop/Send.

	sent    uint64
	dropped uint64
}

// NewPublisher creates a Publisher. It requires a valid Sender.
func NewPublisher(interval time.Duration, sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp: sender cannot be nil")
	}
	if interval < 0 {
		interval = 0
		applog.Warnf("UDPPublisher: Negative interval provided, sending every frame")
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &Publisher{sender: sender, interval: interval}, nil
}

// Start launches the publisher goroutine. It is safe to call Start multiple
// times; subsequent calls are no-ops if already started.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.queue != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.queue = make(chan []byte, queueSize)
	p.stopOnce = sync.Once{}
	queue := p.queue
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(queue)
	}()
}

func (p *Publisher) run(queue <-chan []byte) {
	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var latest []byte
	for {
		select {
		case pkt, ok := <-queue:
			if !ok {
				if latest != nil {
					p.send(latest)
				}
				return
			}
			if tick == nil {
				p.send(pkt)
				continue
			}
			if latest != nil {
				p.dropped++
			}
			latest = pkt
		case <-tick:
			if latest != nil {
				p.send(latest)
				latest = nil
			}
		}
	}
}

func (p *Publisher) send(pkt []byte) {
	if err := p.sender.Send(pkt); err != nil {
		return // Sender logs at debug level.
	}
	p.sent++
}

// Send packs a transport.FeatureFrame and queues it. A full queue drops the
// frame without error.
func (p *Publisher) Send(data any) error {
	frame, err := transport.AsFrame(data)
	if err != nil {
		return err
	}
	pkt, err := AppendPacket(make([]byte, 0, HeaderSize+4*len(frame.Values)), frame)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.queue == nil {
		return ErrNotRunning
	}
	select {
	case p.queue <- pkt:
	default:
		applog.Debugf("UDPPublisher: queue full, dropping frame %d", frame.Seq)
	}
	return nil
}

// Stop flushes queued frames, then waits for the goroutine to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.queue == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.queue)
		p.queue = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished (%d sent, %d coalesced).", p.sent, p.dropped)
	return nil
}

// Close stops the publisher and closes its sender.
func (p *Publisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

// Ensure Publisher satisfies the transport interface at compile time.
var _ transport.Transport = (*Publisher)(nil)
