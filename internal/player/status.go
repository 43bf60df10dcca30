package player

import (
	"time"

	"github.com/glebovdev/rtap/internal/pcm"
	"github.com/glebovdev/rtap/internal/station"
)

// Status is a read-only snapshot of the controller for display.
type Status struct {
	State   State
	Failure *Failure
	Station station.Ref
	Session string

	StreamName string
	Title      string
	Codec      string
	Format     pcm.Format
	Bitrate    int

	Buffered  time.Duration
	Fill      int
	Dropped   int64
	Underruns int64

	Retry      int
	MaxRetries int

	// Listening is the time since the session first started playing.
	Listening time.Duration
	// Delay is how far playback lags behind the live stream due to pauses.
	Delay time.Duration
}

// Quality describes the bitrate the way station lists do.
func (s Status) Quality() string {
	return station.QualityFor(s.Bitrate)
}

// LastError returns the failure text, if any.
func (s Status) LastError() string {
	if s.Failure == nil {
		return ""
	}
	return s.Failure.Error()
}
