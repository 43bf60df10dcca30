// Package sink renders decoded frames on an output device. The device
// pulls at its own real-time rate; it is the pacing authority for the
// whole pipeline.
package sink

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/rtap/internal/pcm"
)

const (
	// DefaultPopWait bounds how long one device pull waits for data.
	DefaultPopWait = 2 * time.Millisecond
	// DefaultFadeIn smooths the start of playback and every recovery.
	DefaultFadeIn = 50 * time.Millisecond

	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

var (
	// ErrDeviceUnavailable means the audio hardware could not be claimed.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrDeviceBusy means another binding still holds the device.
	ErrDeviceBusy = errors.New("audio device already bound")
)

// FrameSource is what a device pulls from. Pop must honor the wait bound.
type FrameSource interface {
	Pop(wait time.Duration) (pcm.Frame, error)
}

// Device is an output that accepts one binding at a time.
type Device interface {
	Bind(format pcm.Format, src FrameSource) (Binding, error)
	SetVolume(percent int)
}

// Binding is one session's attachment to a device.
type Binding interface {
	Start() error
	Pause()
	Resume()
	// Hold makes the device output silence without consuming frames.
	Hold(on bool)
	// Stop detaches from the device. No Pop call happens after it returns.
	Stop()
	Stats() Stats
}

type Stats struct {
	// UnderrunSince is when the current run of short pulls began; zero when
	// the device is being fed.
	UnderrunSince time.Time
	Underruns     int64
	Played        int64
}

// Puller adapts a FrameSource to the device pull interface
// (beep.Streamer). Missing data becomes silence.
type Puller struct {
	src     FrameSource
	popWait time.Duration

	cur pcm.Frame
	off int

	fadeTotal     int
	fadeRemaining int

	hold          atomic.Bool
	closed        atomic.Bool
	underrunSince atomic.Int64
	underruns     atomic.Int64
	played        atomic.Int64

	mu sync.Mutex // serializes Stream against Close
}

func NewPuller(src FrameSource, format pcm.Format, popWait, fadeIn time.Duration) *Puller {
	fade := format.Samples(fadeIn)
	return &Puller{
		src:           src,
		popWait:       popWait,
		fadeTotal:     fade,
		fadeRemaining: fade,
	}
}

// Stream fills samples and always reports the full length so the device
// clock keeps running.
func (p *Puller) Stream(samples [][2]float64) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() || p.hold.Load() {
		clear(samples)
		p.underrunSince.Store(0)
		return len(samples), true
	}

	filled := 0
	wait := p.popWait
	for filled < len(samples) {
		if p.off >= len(p.cur.Samples) {
			f, err := p.src.Pop(wait)
			wait = 0
			if err != nil {
				break
			}
			p.cur, p.off = f, 0
			continue
		}
		n := copy(samples[filled:], p.cur.Samples[p.off:])
		p.off += n
		filled += n
	}

	p.applyFade(samples[:filled])
	if filled < len(samples) {
		clear(samples[filled:])
		if p.underrunSince.CompareAndSwap(0, time.Now().UnixNano()) {
			p.underruns.Add(1)
		}
	} else {
		p.underrunSince.Store(0)
	}
	p.played.Add(int64(filled))
	return len(samples), true
}

func (p *Puller) applyFade(samples [][2]float64) {
	for i := range samples {
		if p.fadeRemaining <= 0 {
			return
		}
		gain := 1 - float64(p.fadeRemaining)/float64(p.fadeTotal)
		samples[i][0] *= gain
		samples[i][1] *= gain
		p.fadeRemaining--
	}
}

func (p *Puller) Err() error {
	return nil
}

// Hold switches silence substitution on or off. Releasing the hold fades in.
func (p *Puller) Hold(on bool) {
	if p.hold.Swap(on) && !on {
		p.mu.Lock()
		p.fadeRemaining = p.fadeTotal
		p.underrunSince.Store(0)
		p.mu.Unlock()
	}
}

// resetUnderrun ends the current underrun run. Bindings call it around a
// pause, when the device clock stops and no pull can clear it.
func (p *Puller) resetUnderrun() {
	p.underrunSince.Store(0)
}

// Close stops all further pulls from the source. It waits for a pull in
// progress to finish.
func (p *Puller) Close() {
	p.mu.Lock()
	p.closed.Store(true)
	p.cur = pcm.Frame{}
	p.mu.Unlock()
}

func (p *Puller) Stats() Stats {
	s := Stats{
		Underruns: p.underruns.Load(),
		Played:    p.played.Load(),
	}
	if ns := p.underrunSince.Load(); ns != 0 {
		s.UnderrunSince = time.Unix(0, ns)
	}
	return s
}

// percentToExponent maps 0..100 percent onto a perceptual volume curve
// for effects.Volume with base 2.
func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}
	normalized := math.Pow(p/100, VolumeCurveExponent)
	return MinVolumeDB * (1 - normalized)
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}
