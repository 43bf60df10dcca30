package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebovdev/rtap/internal/decoder"
	"github.com/glebovdev/rtap/internal/sink"
	"github.com/glebovdev/rtap/internal/stream"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateBuffering
	StatePlaying
	StatePaused
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateBuffering:
		return "BUFFERING"
	case StatePlaying:
		return "LIVE"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	switch s {
	case StateConnecting, StateBuffering, StatePlaying, StatePaused:
		return true
	}
	return false
}

type FailureReason int

const (
	ConnectFailure FailureReason = iota + 1
	StreamInterrupted
	UnsupportedFormat
	DecodeStalled
	DeviceUnavailable
	Timeout
)

func (r FailureReason) String() string {
	switch r {
	case ConnectFailure:
		return "connect failure"
	case StreamInterrupted:
		return "stream interrupted"
	case UnsupportedFormat:
		return "unsupported format"
	case DecodeStalled:
		return "decode stalled"
	case DeviceUnavailable:
		return "device unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Failure is why a session ended in StateFailed.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transition records one state change.
type Transition struct {
	From    State
	To      State
	Session string
	Failure *Failure
	At      time.Time
}

var errStartupTimeout = errors.New("no audio before startup timeout")

func classify(err error) FailureReason {
	switch {
	case errors.Is(err, errStartupTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, decoder.ErrUnsupportedFormat), errors.Is(err, stream.ErrUnsupportedPlaylist):
		return UnsupportedFormat
	case errors.Is(err, decoder.ErrDecodeStalled):
		return DecodeStalled
	case errors.Is(err, sink.ErrDeviceUnavailable), errors.Is(err, sink.ErrDeviceBusy):
		return DeviceUnavailable
	case errors.Is(err, stream.ErrConnect):
		return ConnectFailure
	default:
		return StreamInterrupted
	}
}

// fatal reports whether err ends the session without another attempt.
func fatal(err error) bool {
	switch classify(err) {
	case UnsupportedFormat, DecodeStalled, DeviceUnavailable, Timeout:
		return true
	}
	return errors.Is(err, decoder.ErrFormatChanged) || !stream.IsRetryable(err)
}
