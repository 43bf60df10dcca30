// Package player supervises the playback pipeline. A Controller owns at
// most one session at a time and is the only thing the UI talks to.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/decoder"
	"github.com/glebovdev/rtap/internal/sink"
	"github.com/glebovdev/rtap/internal/station"
	"github.com/glebovdev/rtap/internal/stream"
)

const transitionBuffer = 64

var (
	ErrClosed    = errors.New("player closed")
	ErrNoStation = errors.New("no station to play")
)

// Opener connects to a station URL.
type Opener interface {
	Open(ctx context.Context, url string) (*stream.Source, error)
}

// muter is implemented by devices that can silence output without losing
// the volume setting.
type muter interface {
	SetMuted(muted bool)
}

type Controller struct {
	opener Opener
	device sink.Device
	policy Policy

	// cmdMu serializes commands and the session lifecycle.
	cmdMu  sync.Mutex
	closed bool

	stateMu sync.RWMutex
	state   State
	failure *Failure
	session *session
	last    station.Ref

	volMu  sync.Mutex
	volume int
	muted  bool

	transitions chan Transition
	updates     chan Status
	updMu       sync.Mutex
}

func New(opener Opener, device sink.Device, policy Policy) *Controller {
	policy.normalize()
	return &Controller{
		opener:      opener,
		device:      device,
		policy:      policy,
		state:       StateIdle,
		volume:      config.DefaultVolume,
		transitions: make(chan Transition, transitionBuffer),
		updates:     make(chan Status, 1),
	}
}

// Transitions delivers state changes. Changes are dropped while the
// channel is full.
func (c *Controller) Transitions() <-chan Transition {
	return c.transitions
}

// Updates delivers the latest Status on every transition and periodically
// while a session runs. Only the newest snapshot is kept.
func (c *Controller) Updates() <-chan Status {
	return c.updates
}

// Select stops the current session, waits for its teardown, and starts
// playing ref.
func (c *Controller) Select(ref station.Ref) error {
	if ref.URL == "" {
		return ErrNoStation
	}
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.stopLocked()
	c.startLocked(ref)
	return nil
}

// Restart reconnects to the last selected station.
func (c *Controller) Restart() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.stateMu.RLock()
	ref := c.last
	c.stateMu.RUnlock()
	if ref.URL == "" {
		return ErrNoStation
	}
	c.stopLocked()
	c.startLocked(ref)
	return nil
}

// Stop tears down the session and returns once the device is released.
func (c *Controller) Stop() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stopLocked()
	c.setState(StateIdle, nil)
}

// Close stops playback and rejects further commands.
func (c *Controller) Close() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.stopLocked()
	c.setState(StateIdle, nil)
	c.closed = true
}

func (c *Controller) Pause() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if s := c.activeSession(); s != nil {
		s.pause()
	}
}

func (c *Controller) Resume() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.resumeLocked()
}

func (c *Controller) TogglePause() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	s := c.activeSession()
	if s == nil {
		return
	}
	if c.State() == StatePaused {
		c.resumeLocked()
	} else {
		s.pause()
	}
}

func (c *Controller) resumeLocked() {
	s := c.activeSession()
	if s == nil {
		return
	}
	if s.resume() {
		c.stopLocked()
		c.startLocked(s.ref)
	}
}

func (c *Controller) SetVolume(percent int) {
	c.volMu.Lock()
	defer c.volMu.Unlock()

	c.volume = config.ClampVolume(percent)
	if !c.muted {
		c.device.SetVolume(c.volume)
	}
	log.Debug().Msgf("Volume set to %d%%", c.volume)
}

func (c *Controller) Volume() int {
	c.volMu.Lock()
	defer c.volMu.Unlock()
	return c.volume
}

func (c *Controller) SetMuted(muted bool) {
	c.volMu.Lock()
	defer c.volMu.Unlock()

	c.muted = muted
	if m, ok := c.device.(muter); ok {
		m.SetMuted(muted)
		return
	}
	if muted {
		c.device.SetVolume(0)
	} else {
		c.device.SetVolume(c.volume)
	}
}

func (c *Controller) Muted() bool {
	c.volMu.Lock()
	defer c.volMu.Unlock()
	return c.muted
}

func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Current returns the station of the running session.
func (c *Controller) Current() (station.Ref, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.session == nil {
		return station.Ref{}, false
	}
	return c.session.ref, true
}

// Last returns the most recently selected station, even after a stop or
// failure.
func (c *Controller) Last() station.Ref {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.last
}

func (c *Controller) Status() Status {
	c.stateMu.RLock()
	st := Status{
		State:      c.state,
		Failure:    c.failure,
		Station:    c.last,
		MaxRetries: c.policy.MaxRetries,
	}
	s := c.session
	c.stateMu.RUnlock()

	if s != nil {
		s.fill(&st)
	}
	return st
}

func (c *Controller) activeSession() *session {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.session
}

func (c *Controller) startLocked(ref station.Ref) {
	s := newSession(c, ref)

	c.stateMu.Lock()
	c.session = s
	c.last = ref
	tr, changed := c.changeLocked(StateConnecting, nil)
	c.stateMu.Unlock()
	if changed {
		c.emit(tr)
	}

	log.Info().Str("session", s.id).Str("url", ref.URL).Msgf("Starting playback of %s", ref.Name)
	s.run()
}

// stopLocked tears the current session down. The caller holds cmdMu.
func (c *Controller) stopLocked() {
	s := c.activeSession()
	if s == nil {
		return
	}
	c.setState(StateStopping, nil)
	s.teardown()

	c.stateMu.Lock()
	c.session = nil
	c.stateMu.Unlock()
}

// finish handles a session whose workers exited on their own.
func (c *Controller) finish(s *session, err error) {
	if s.ctx.Err() != nil {
		return
	}
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.activeSession() != s {
		return
	}
	if errors.Is(err, decoder.ErrFormatChanged) {
		log.Info().Err(err).Str("session", s.id).Msg("Stream format changed, restarting session")
		c.stopLocked()
		c.startLocked(s.ref)
		return
	}

	failure := &Failure{Reason: classify(err), Err: err}
	log.Error().Err(err).Str("session", s.id).Str("reason", failure.Reason.String()).Msg("Playback failed")
	s.teardown()

	c.stateMu.Lock()
	c.session = nil
	tr, changed := c.changeLocked(StateFailed, failure)
	c.stateMu.Unlock()
	if changed {
		c.emit(tr)
	}
}

func (c *Controller) stateOf(s *session) (State, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state, c.session == s
}

// advance moves from -> to only if s is still current and in state from.
func (c *Controller) advance(s *session, from, to State) bool {
	c.stateMu.Lock()
	if c.session != s || c.state != from {
		c.stateMu.Unlock()
		return false
	}
	tr, changed := c.changeLocked(to, nil)
	c.stateMu.Unlock()
	if changed {
		c.emit(tr)
	}
	return true
}

func (c *Controller) setState(to State, failure *Failure) {
	c.stateMu.Lock()
	tr, changed := c.changeLocked(to, failure)
	c.stateMu.Unlock()
	if changed {
		c.emit(tr)
	}
}

func (c *Controller) changeLocked(to State, failure *Failure) (Transition, bool) {
	if c.state == to && failure == nil && c.failure == nil {
		return Transition{}, false
	}
	tr := Transition{From: c.state, To: to, Failure: failure, At: time.Now()}
	if c.session != nil {
		tr.Session = c.session.id
	}
	c.state = to
	c.failure = failure
	return tr, true
}

func (c *Controller) emit(tr Transition) {
	log.Debug().Str("session", tr.Session).Msgf("Player state: %s -> %s", tr.From, tr.To)
	select {
	case c.transitions <- tr:
	default:
		log.Debug().Msg("Transition channel full, dropping event")
	}
	c.publish()
}

func (c *Controller) publish() {
	st := c.Status()

	c.updMu.Lock()
	defer c.updMu.Unlock()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- st:
	default:
	}
}
