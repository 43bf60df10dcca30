package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/rtap/internal/pcm"
)

const DefaultNullTick = 10 * time.Millisecond

type NullConfig struct {
	// Tick is the period of the virtual device callback.
	Tick    time.Duration
	PopWait time.Duration
	FadeIn  time.Duration
	// OnSamples observes every rendered buffer. The slice is reused
	// between calls.
	OnSamples func(samples [][2]float64)
}

// Null is a device with a virtual real-time clock and no audio output. It
// paces consumption exactly like hardware would.
type Null struct {
	cfg NullConfig

	mu        sync.Mutex
	active    int
	maxActive int
	binds     int
	volume    atomic.Int64
}

func NewNull(cfg NullConfig) *Null {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultNullTick
	}
	if cfg.PopWait <= 0 {
		cfg.PopWait = DefaultPopWait
	}
	n := &Null{cfg: cfg}
	n.volume.Store(100)
	return n
}

func (n *Null) Bind(format pcm.Format, src FrameSource) (Binding, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active > 0 {
		return nil, ErrDeviceBusy
	}
	n.active++
	n.binds++
	n.maxActive = max(n.maxActive, n.active)

	return &nullBinding{
		owner:  n,
		format: format,
		puller: NewPuller(src, format, n.cfg.PopWait, n.cfg.FadeIn),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (n *Null) SetVolume(percent int) {
	n.volume.Store(int64(clampPercent(percent)))
}

func (n *Null) Volume() int {
	return int(n.volume.Load())
}

// Active returns the number of live bindings.
func (n *Null) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// MaxActive returns the highest number of simultaneous bindings seen.
func (n *Null) MaxActive() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.maxActive
}

// Binds returns how many bindings were ever created.
func (n *Null) Binds() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.binds
}

func (n *Null) release() {
	n.mu.Lock()
	n.active--
	n.mu.Unlock()
}

type nullBinding struct {
	owner  *Null
	format pcm.Format
	puller *Puller
	paused atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func (b *nullBinding) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return nil
	}
	b.started = true
	go b.run()
	return nil
}

func (b *nullBinding) run() {
	defer close(b.done)

	tick := b.owner.cfg.Tick
	buf := make([][2]float64, max(1, b.format.Samples(tick)))
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if b.paused.Load() {
				continue
			}
			b.puller.Stream(buf)
			if b.owner.cfg.OnSamples != nil {
				b.owner.cfg.OnSamples(buf)
			}
		}
	}
}

func (b *nullBinding) Pause() {
	b.paused.Store(true)
	b.puller.resetUnderrun()
}

func (b *nullBinding) Resume() {
	b.puller.resetUnderrun()
	b.paused.Store(false)
}

func (b *nullBinding) Hold(on bool) {
	b.puller.Hold(on)
}

func (b *nullBinding) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	b.puller.Close()
	if b.started {
		close(b.stop)
		<-b.done
	}
	b.owner.release()
}

func (b *nullBinding) Stats() Stats {
	return b.puller.Stats()
}
