// Package pcm holds the decoded audio types passed between pipeline stages.
package pcm

import (
	"fmt"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
)

// Format is the negotiated sample layout of one playback session.
type Format struct {
	SampleRate beep.SampleRate
	Channels   int
}

func (f Format) String() string {
	layout := "stereo"
	switch f.Channels {
	case 1:
		layout = "mono"
	case 2:
	default:
		layout = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%.1fkHz %s", float64(f.SampleRate)/1000, layout)
}

// Valid reports whether the format can be played.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Samples converts a playback duration into a sample count at this rate.
func (f Format) Samples(d time.Duration) int {
	if f.SampleRate <= 0 || d <= 0 {
		return 0
	}
	return f.SampleRate.N(d)
}

// Duration converts a sample count into playback time at this rate.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || n <= 0 {
		return 0
	}
	return f.SampleRate.D(n)
}

// Frame is a block of decoded samples. Mono sources carry the same value
// in both slots of each sample.
type Frame struct {
	Samples [][2]float64
	Format  Format
}

func (f Frame) Len() int {
	return len(f.Samples)
}

func (f Frame) Duration() time.Duration {
	return f.Format.Duration(len(f.Samples))
}

// Finite reports whether every sample is a finite number.
func (f Frame) Finite() bool {
	for _, s := range f.Samples {
		if math.IsNaN(s[0]) || math.IsInf(s[0], 0) || math.IsNaN(s[1]) || math.IsInf(s[1], 0) {
			return false
		}
	}
	return true
}
