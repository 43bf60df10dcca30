package sink

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/pcm"
)

const (
	DefaultSampleRate      = beep.SampleRate(44100)
	DefaultSpeakerBuffer   = 250 * time.Millisecond
	DefaultResampleQuality = 4
)

type SpeakerConfig struct {
	// SampleRate is the rate the device is opened at. Streams at any other
	// rate are resampled.
	SampleRate      beep.SampleRate
	BufferSize      time.Duration
	ResampleQuality int
	PopWait         time.Duration
	FadeIn          time.Duration
}

func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{
		SampleRate:      DefaultSampleRate,
		BufferSize:      DefaultSpeakerBuffer,
		ResampleQuality: DefaultResampleQuality,
		PopWait:         DefaultPopWait,
		FadeIn:          DefaultFadeIn,
	}
}

func SpeakerConfigFromPlayback(p config.Playback) SpeakerConfig {
	cfg := DefaultSpeakerConfig()
	cfg.SampleRate = beep.SampleRate(p.DeviceSampleRate)
	cfg.ResampleQuality = p.ResampleQuality
	return cfg
}

// Speaker drives the host audio output through beep's speaker package.
// The device is opened once, on the first Bind.
type Speaker struct {
	cfg SpeakerConfig

	mu            sync.Mutex
	initialized   bool
	volumePercent int
	muted         bool
	active        *speakerBinding
}

func NewSpeaker(cfg SpeakerConfig) *Speaker {
	def := DefaultSpeakerConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ResampleQuality < 1 || cfg.ResampleQuality > 64 {
		cfg.ResampleQuality = def.ResampleQuality
	}
	if cfg.PopWait <= 0 {
		cfg.PopWait = def.PopWait
	}
	return &Speaker{cfg: cfg, volumePercent: 100}
}

func (s *Speaker) initLocked() error {
	if s.initialized {
		return nil
	}
	rate := s.cfg.SampleRate
	if err := speaker.Init(rate, rate.N(s.cfg.BufferSize)); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	s.initialized = true
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", rate, s.cfg.BufferSize)
	return nil
}

func (s *Speaker) Bind(format pcm.Format, src FrameSource) (Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrDeviceBusy
	}
	if err := s.initLocked(); err != nil {
		return nil, err
	}

	puller := NewPuller(src, format, s.cfg.PopWait, s.cfg.FadeIn)
	var streamer beep.Streamer = puller
	if format.SampleRate != s.cfg.SampleRate {
		streamer = beep.Resample(s.cfg.ResampleQuality, format.SampleRate, s.cfg.SampleRate, puller)
		log.Debug().Msgf("Resampling %d Hz -> %d Hz", format.SampleRate, s.cfg.SampleRate)
	}
	volume := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   percentToExponent(float64(s.volumePercent)),
		Silent:   s.muted || s.volumePercent == 0,
	}
	b := &speakerBinding{
		owner:  s,
		puller: puller,
		volume: volume,
		ctrl:   &beep.Ctrl{Streamer: volume},
	}
	s.active = b
	return b, nil
}

func (s *Speaker) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volumePercent = clampPercent(percent)
	s.applyVolumeLocked()
	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", s.volumePercent, percentToExponent(float64(s.volumePercent)))
}

func (s *Speaker) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.muted = muted
	s.applyVolumeLocked()
}

func (s *Speaker) applyVolumeLocked() {
	if s.active == nil {
		return
	}
	speaker.Lock()
	s.active.volume.Volume = percentToExponent(float64(s.volumePercent))
	s.active.volume.Silent = s.muted || s.volumePercent == 0
	speaker.Unlock()
}

// Close shuts the audio device down. Call it once on exit.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		speaker.Clear()
		speaker.Close()
		s.initialized = false
	}
}

func (s *Speaker) release(b *speakerBinding) {
	s.mu.Lock()
	if s.active == b {
		s.active = nil
	}
	s.mu.Unlock()
}

type speakerBinding struct {
	owner  *Speaker
	puller *Puller
	volume *effects.Volume
	ctrl   *beep.Ctrl

	mu      sync.Mutex
	started bool
	stopped bool
}

func (b *speakerBinding) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return nil
	}
	speaker.Play(b.ctrl)
	b.started = true
	return nil
}

func (b *speakerBinding) Pause() {
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	b.puller.resetUnderrun()
}

func (b *speakerBinding) Resume() {
	b.puller.resetUnderrun()
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
}

func (b *speakerBinding) Hold(on bool) {
	b.puller.Hold(on)
}

func (b *speakerBinding) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	b.puller.Close()
	if b.started {
		// Clear takes the mixer lock, so no pull is in flight once it returns.
		speaker.Clear()
	}
	b.owner.release(b)
}

func (b *speakerBinding) Stats() Stats {
	return b.puller.Stats()
}
