// Package ringbuf implements the jitter buffer between the decoder and the
// audio device. Capacity is expressed in playback time and fixed when the
// buffer is created from the negotiated stream format.
package ringbuf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/rtap/internal/pcm"
)

var (
	// ErrUnderrun is returned by Pop when no frame arrived within the wait.
	ErrUnderrun = errors.New("ring buffer underrun")
	// ErrClosed is returned once the buffer has been closed.
	ErrClosed = errors.New("ring buffer closed")
	// ErrFrameTooLarge is returned for a frame that could never fit.
	ErrFrameTooLarge = errors.New("frame larger than buffer capacity")
	// ErrFormatMismatch is returned when a frame does not match the buffer format.
	ErrFormatMismatch = errors.New("frame format does not match buffer")
)

const initialSlots = 16

// Buffer is a bounded FIFO of frames with one producer and one consumer.
//
// Push blocks while the buffer is full. Pop waits at most the given
// duration and never holds the lock while waiting.
type Buffer struct {
	format   pcm.Format
	capacity int

	mu      sync.Mutex
	slots   []pcm.Frame
	head    int
	count   int
	samples int
	closed  bool

	// single-slot wakeup channels; a stale signal only causes a recheck
	dataReady  chan struct{}
	spaceReady chan struct{}

	producerWaiting atomic.Bool
	pushed          atomic.Int64
	popped          atomic.Int64
	underruns       atomic.Int64
}

// New creates a buffer holding up to d of audio in the given format.
func New(format pcm.Format, d time.Duration) *Buffer {
	capacity := format.Samples(d)
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		format:     format,
		capacity:   capacity,
		slots:      make([]pcm.Frame, initialSlots),
		dataReady:  make(chan struct{}, 1),
		spaceReady: make(chan struct{}, 1),
	}
}

// Push appends a frame, blocking while there is no room for it.
// It returns ctx.Err() if the context ends first.
func (b *Buffer) Push(ctx context.Context, f pcm.Frame) error {
	n := f.Len()
	if n == 0 {
		return nil
	}
	if n > b.capacity {
		return fmt.Errorf("%w: %d > %d samples", ErrFrameTooLarge, n, b.capacity)
	}
	if f.Format != b.format {
		return fmt.Errorf("%w: got %s, want %s", ErrFormatMismatch, f.Format, b.format)
	}

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return ErrClosed
		}
		if b.samples+n <= b.capacity {
			b.enqueueLocked(f)
			b.mu.Unlock()
			b.pushed.Add(int64(n))
			signal(b.dataReady)
			return nil
		}
		b.mu.Unlock()

		b.producerWaiting.Store(true)
		select {
		case <-b.spaceReady:
			b.producerWaiting.Store(false)
		case <-ctx.Done():
			b.producerWaiting.Store(false)
			return ctx.Err()
		}
	}
}

// Pop removes the oldest frame. When the buffer is empty it waits up to
// wait for a frame and then returns ErrUnderrun. A zero wait never blocks.
func (b *Buffer) Pop(wait time.Duration) (pcm.Frame, error) {
	f, err := b.tryPop()
	if !errors.Is(err, ErrUnderrun) || wait <= 0 {
		if errors.Is(err, ErrUnderrun) {
			b.underruns.Add(1)
		}
		return f, err
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		select {
		case <-b.dataReady:
			f, err = b.tryPop()
			if !errors.Is(err, ErrUnderrun) {
				return f, err
			}
		case <-deadline.C:
			f, err = b.tryPop()
			if errors.Is(err, ErrUnderrun) {
				b.underruns.Add(1)
			}
			return f, err
		}
	}
}

func (b *Buffer) tryPop() (pcm.Frame, error) {
	b.mu.Lock()
	if b.count == 0 {
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return pcm.Frame{}, ErrClosed
		}
		return pcm.Frame{}, ErrUnderrun
	}
	f := b.slots[b.head]
	b.slots[b.head] = pcm.Frame{}
	b.head = (b.head + 1) % len(b.slots)
	b.count--
	b.samples -= f.Len()
	b.mu.Unlock()

	b.popped.Add(int64(f.Len()))
	signal(b.spaceReady)
	return f, nil
}

func (b *Buffer) enqueueLocked(f pcm.Frame) {
	if b.count == len(b.slots) {
		grown := make([]pcm.Frame, len(b.slots)*2)
		for i := 0; i < b.count; i++ {
			grown[i] = b.slots[(b.head+i)%len(b.slots)]
		}
		b.slots = grown
		b.head = 0
	}
	b.slots[(b.head+b.count)%len(b.slots)] = f
	b.count++
	b.samples += f.Len()
}

// Clear drops every buffered frame in one step.
func (b *Buffer) Clear() {
	b.mu.Lock()
	for i := range b.slots {
		b.slots[i] = pcm.Frame{}
	}
	b.head = 0
	b.count = 0
	b.samples = 0
	b.mu.Unlock()
	signal(b.spaceReady)
}

// Close wakes a blocked producer and rejects further pushes. Frames already
// buffered can still be popped.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	signal(b.spaceReady)
	signal(b.dataReady)
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// Frames returns the number of buffered frames.
func (b *Buffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the capacity in samples.
func (b *Buffer) Capacity() int {
	return b.capacity
}

func (b *Buffer) Format() pcm.Format {
	return b.format
}

// Buffered returns the playback time currently held.
func (b *Buffer) Buffered() time.Duration {
	return b.format.Duration(b.Len())
}

// FillPercent returns the fill level in the range 0..100.
func (b *Buffer) FillPercent() int {
	return b.Len() * 100 / b.capacity
}

// Full reports whether the producer is currently held back by backpressure.
func (b *Buffer) Full() bool {
	return b.producerWaiting.Load()
}

// Stats is a snapshot of the buffer counters.
type Stats struct {
	Buffered  time.Duration
	Fill      int
	Pushed    int64
	Popped    int64
	Underruns int64
}

func (b *Buffer) Stats() Stats {
	return Stats{
		Buffered:  b.Buffered(),
		Fill:      b.FillPercent(),
		Pushed:    b.pushed.Load(),
		Popped:    b.popped.Load(),
		Underruns: b.underruns.Load(),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
