package player

import (
	"time"

	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/decoder"
)

const (
	DefaultMonitorInterval = 20 * time.Millisecond
	DefaultStatusInterval  = 250 * time.Millisecond
)

// Policy holds the buffering, retry and timeout thresholds of a session.
type Policy struct {
	BufferDuration   time.Duration
	LowWatermark     time.Duration
	HighWatermark    time.Duration
	UnderrunGrace    time.Duration
	StartupTimeout   time.Duration
	TeardownTimeout  time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	MaxBackoff       time.Duration
	ResyncAfterPause time.Duration // 0 disables

	Decoder decoder.Options

	MonitorInterval time.Duration
	StatusInterval  time.Duration
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultPlayback())
}

func PolicyFromConfig(p config.Playback) Policy {
	p.Normalize()
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Policy{
		BufferDuration:   ms(p.BufferMs),
		LowWatermark:     ms(p.LowWatermarkMs),
		HighWatermark:    ms(p.HighWatermarkMs),
		UnderrunGrace:    ms(p.UnderrunGraceMs),
		StartupTimeout:   ms(p.StartupTimeoutMs),
		TeardownTimeout:  ms(p.TeardownTimeoutMs),
		MaxRetries:       p.MaxRetries,
		RetryBackoff:     ms(p.RetryBackoffMs),
		MaxBackoff:       ms(p.MaxBackoffMs),
		ResyncAfterPause: ms(p.ResyncAfterPauseMs),
		Decoder: decoder.Options{
			FrameSamples:         p.FrameSamples,
			MaxConsecutiveErrors: p.MaxDecodeErrors,
		},
		MonitorInterval: DefaultMonitorInterval,
		StatusInterval:  DefaultStatusInterval,
	}
}

func (p *Policy) normalize() {
	def := DefaultPolicy()
	if p.BufferDuration <= 0 {
		p.BufferDuration = def.BufferDuration
	}
	if p.HighWatermark <= 0 || p.HighWatermark > p.BufferDuration {
		p.HighWatermark = min(def.HighWatermark, p.BufferDuration*3/4)
	}
	if p.LowWatermark <= 0 || p.LowWatermark > p.HighWatermark {
		p.LowWatermark = min(def.LowWatermark, p.HighWatermark)
	}
	if p.UnderrunGrace <= 0 {
		p.UnderrunGrace = def.UnderrunGrace
	}
	if p.StartupTimeout <= 0 {
		p.StartupTimeout = def.StartupTimeout
	}
	if p.TeardownTimeout <= 0 {
		p.TeardownTimeout = def.TeardownTimeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = def.RetryBackoff
	}
	if p.MaxBackoff < p.RetryBackoff {
		p.MaxBackoff = p.RetryBackoff
	}
	if p.MonitorInterval <= 0 {
		p.MonitorInterval = DefaultMonitorInterval
	}
	if p.StatusInterval <= 0 {
		p.StatusInterval = DefaultStatusInterval
	}
}

// backoff returns the delay before retry attempt n (1-based).
func (p *Policy) backoff(n int) time.Duration {
	d := p.RetryBackoff
	for i := 1; i < n && d < p.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, p.MaxBackoff)
}
