package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/glebovdev/rtap/internal/decoder"
	"github.com/glebovdev/rtap/internal/ringbuf"
	"github.com/glebovdev/rtap/internal/sink"
	"github.com/glebovdev/rtap/internal/station"
)

// session is one running pipeline: source, decoder, ring buffer and
// device binding for a single station. Only the Controller creates and
// tears down sessions.
type session struct {
	id      string
	ref     station.Ref
	c       *Controller
	policy  Policy
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	// ctlMu orders device operations between the monitor and commands.
	ctlMu         sync.Mutex
	closed        bool
	deviceStarted bool

	ring        atomic.Pointer[ringbuf.Buffer]
	dec         atomic.Pointer[decoder.Decoder]
	droppedBase atomic.Int64
	retry       atomic.Int32

	infoMu    sync.Mutex
	binding   sink.Binding
	codec     string
	name      string
	bitrate   int
	title     string
	firstPlay time.Time
	pausedAt  time.Time
	delay     time.Duration
}

func newSession(c *Controller, ref station.Ref) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:      uuid.NewString(),
		ref:     ref,
		c:       c,
		policy:  c.policy,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
		bitrate: ref.Bitrate,
	}
}

// run starts the network worker and the monitor. When both have exited,
// done is closed and the controller is told why.
func (s *session) run() {
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return s.pump(ctx) })
	g.Go(func() error { return s.monitor(ctx) })

	go func() {
		err := g.Wait()
		close(s.done)
		s.c.finish(s, err)
	}()
}

// pump reconnects until the retry budget is spent. The attempt counter
// starts over whenever a connection delivered audio.
func (s *session) pump(ctx context.Context) error {
	attempt := 0
	for {
		delivered, err := s.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fatal(err) {
			return err
		}
		if delivered {
			attempt = 0
		}
		attempt++
		if attempt > s.policy.MaxRetries {
			return fmt.Errorf("giving up after %d retries: %w", s.policy.MaxRetries, err)
		}

		delay := s.policy.backoff(attempt)
		s.retry.Store(int32(attempt))
		log.Warn().Err(err).Str("session", s.id).Msgf("Stream failed, retrying in %v... (%d/%d)", delay, attempt, s.policy.MaxRetries)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// connect runs one connection from open to the first error.
func (s *session) connect(ctx context.Context) (delivered bool, err error) {
	src, err := s.c.opener.Open(ctx, s.ref.URL)
	if err != nil {
		return false, err
	}
	src.OnTitle(s.setTitle)

	info := src.Info()
	s.infoMu.Lock()
	if info.Name != "" {
		s.name = info.Name
	}
	if info.Bitrate > 0 {
		s.bitrate = info.Bitrate
	}
	s.infoMu.Unlock()

	opts := s.policy.Decoder
	opts.CodecHint = s.ref.CodecHint
	dec, err := decoder.Open(src, opts)
	if err != nil {
		_ = src.Close()
		return false, err
	}
	s.dec.Store(dec)
	defer func() {
		s.dec.Store(nil)
		s.droppedBase.Add(dec.Dropped())
		log.Debug().Str("session", s.id).Int64("samples", dec.Decoded()).Int64("dropped", dec.Dropped()).Msg("Connection closed")
		_ = dec.Close()
	}()

	s.infoMu.Lock()
	s.codec = dec.Codec().String()
	s.infoMu.Unlock()

	ring, err := s.attach(dec)
	if err != nil {
		return false, err
	}

	for {
		frame, err := dec.Next()
		if err != nil {
			return delivered, err
		}
		if err := ring.Push(ctx, frame); err != nil {
			return delivered, err
		}
		if !delivered {
			delivered = true
			s.retry.Store(0)
		}
	}
}

// attach creates the ring buffer and claims the device on the first
// connection. Later connections must produce the same format.
func (s *session) attach(dec *decoder.Decoder) (*ringbuf.Buffer, error) {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if s.closed {
		return nil, ringbuf.ErrClosed
	}
	if ring := s.ring.Load(); ring != nil {
		if err := dec.CheckFormat(ring.Format()); err != nil {
			return nil, err
		}
		return ring, nil
	}

	format := dec.Format()
	frameSamples := s.policy.Decoder.FrameSamples
	if frameSamples <= 0 {
		frameSamples = decoder.DefaultFrameSamples
	}
	ring := ringbuf.New(format, max(s.policy.BufferDuration, format.Duration(2*frameSamples)))

	binding, err := s.c.device.Bind(format, ring)
	if err != nil {
		return nil, err
	}
	s.infoMu.Lock()
	s.binding = binding
	s.infoMu.Unlock()
	s.ring.Store(ring)

	log.Debug().Str("session", s.id).Str("format", format.String()).Msgf("Bound device, buffer %v", format.Duration(ring.Capacity()))
	return ring, nil
}

func (s *session) monitor(ctx context.Context) error {
	ticker := time.NewTicker(s.policy.MonitorInterval)
	defer ticker.Stop()

	lastStatus := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.step(now); err != nil {
				return err
			}
			if now.Sub(lastStatus) >= s.policy.StatusInterval {
				lastStatus = now
				s.c.publish()
			}
		}
	}
}

// step applies the watermark and underrun rules once.
func (s *session) step(now time.Time) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if s.closed {
		return nil
	}
	state, ok := s.c.stateOf(s)
	if !ok {
		return nil
	}
	ring := s.ring.Load()

	switch state {
	case StateConnecting:
		if ring != nil && ring.Buffered() >= s.policy.LowWatermark {
			s.c.advance(s, StateConnecting, StateBuffering)
			return nil
		}
		return s.checkStartup(now)

	case StateBuffering:
		if s.ready(ring) {
			return s.playLocked(StateBuffering)
		}
		return s.checkStartup(now)

	case StatePlaying:
		since := s.currentBinding().Stats().UnderrunSince
		if !since.IsZero() && now.Sub(since) >= s.policy.UnderrunGrace {
			s.currentBinding().Hold(true)
			log.Warn().Str("session", s.id).Msgf("Buffer underrun for %v, rebuffering", now.Sub(since).Round(time.Millisecond))
			s.c.advance(s, StatePlaying, StateBuffering)
		}
	}
	return nil
}

func (s *session) ready(ring *ringbuf.Buffer) bool {
	return ring != nil && (ring.Buffered() >= s.policy.HighWatermark || ring.Full())
}

// checkStartup bounds the time from select to first sound.
func (s *session) checkStartup(now time.Time) error {
	s.infoMu.Lock()
	played := !s.firstPlay.IsZero()
	s.infoMu.Unlock()
	if played || now.Sub(s.started) < s.policy.StartupTimeout {
		return nil
	}
	return fmt.Errorf("%w (%v)", errStartupTimeout, s.policy.StartupTimeout)
}

// playLocked releases the device and moves from -> Playing. ctlMu is held.
func (s *session) playLocked(from State) error {
	b := s.currentBinding()
	if s.deviceStarted {
		b.Hold(false)
		if from == StatePaused {
			b.Resume()
		}
	} else {
		if err := b.Start(); err != nil {
			return err
		}
		s.deviceStarted = true
	}

	if s.c.advance(s, from, StatePlaying) {
		s.infoMu.Lock()
		if s.firstPlay.IsZero() {
			s.firstPlay = time.Now()
			log.Info().Str("session", s.id).Msgf("Playing %s after %v", s.ref.URL, time.Since(s.started).Round(time.Millisecond))
		}
		s.infoMu.Unlock()
	}
	return nil
}

func (s *session) pause() {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	state, ok := s.c.stateOf(s)
	if !ok || (state != StatePlaying && state != StateBuffering) {
		return
	}
	if s.deviceStarted {
		s.currentBinding().Pause()
	}
	s.infoMu.Lock()
	s.pausedAt = time.Now()
	s.infoMu.Unlock()
	s.c.advance(s, state, StatePaused)
}

// resume continues from Paused. It reports true when the pause exceeded
// the resync limit and the session should reconnect instead.
func (s *session) resume() bool {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if state, ok := s.c.stateOf(s); !ok || state != StatePaused {
		return false
	}
	s.infoMu.Lock()
	s.delay += time.Since(s.pausedAt)
	s.pausedAt = time.Time{}
	delay := s.delay
	s.infoMu.Unlock()

	if limit := s.policy.ResyncAfterPause; limit > 0 && delay > limit {
		log.Debug().Msgf("Total paused %v (>%v), reconnecting", delay.Round(time.Millisecond), limit)
		return true
	}

	if s.ready(s.ring.Load()) {
		if err := s.playLocked(StatePaused); err != nil {
			log.Error().Err(err).Str("session", s.id).Msg("Failed to start device")
		}
		return false
	}
	if s.deviceStarted {
		b := s.currentBinding()
		b.Hold(true)
		b.Resume()
	}
	s.c.advance(s, StatePaused, StateBuffering)
	return false
}

func (s *session) currentBinding() sink.Binding {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return s.binding
}

// teardown cancels every stage and releases the device. It returns once
// the workers have exited or the teardown timeout passed; in both cases no
// device pull happens afterwards.
func (s *session) teardown() {
	s.cancel()
	timer := time.NewTimer(s.policy.TeardownTimeout)
	select {
	case <-s.done:
		timer.Stop()
	case <-timer.C:
		log.Warn().Str("session", s.id).Msgf("Session workers still running after %v", s.policy.TeardownTimeout)
	}

	s.ctlMu.Lock()
	s.closed = true
	s.ctlMu.Unlock()

	if b := s.currentBinding(); b != nil {
		b.Stop()
	}
	if ring := s.ring.Load(); ring != nil {
		ring.Close()
		if n := ring.Frames(); n > 0 {
			log.Debug().Str("session", s.id).Msgf("Discarding %d buffered frames", n)
		}
		ring.Clear()
	}
	log.Debug().Str("session", s.id).Msgf("Session torn down after %v", time.Since(s.started).Round(time.Millisecond))
}

func (s *session) setTitle(title string) {
	s.infoMu.Lock()
	changed := title != s.title
	s.title = title
	s.infoMu.Unlock()
	if changed {
		log.Debug().Msgf("Now playing: %s", title)
	}
}

func (s *session) dropped() int64 {
	n := s.droppedBase.Load()
	if dec := s.dec.Load(); dec != nil {
		n += dec.Dropped()
	}
	return n
}

// fill copies the session's live figures into st.
func (s *session) fill(st *Status) {
	st.Session = s.id
	st.Station = s.ref

	s.infoMu.Lock()
	st.StreamName = s.name
	st.Title = s.title
	st.Codec = s.codec
	st.Bitrate = s.bitrate
	st.Delay = s.delay
	if !s.pausedAt.IsZero() {
		st.Delay += time.Since(s.pausedAt)
	}
	if !s.firstPlay.IsZero() {
		st.Listening = time.Since(s.firstPlay)
	}
	b := s.binding
	s.infoMu.Unlock()

	if b != nil {
		st.Underruns = b.Stats().Underruns
	}
	if ring := s.ring.Load(); ring != nil {
		rs := ring.Stats()
		st.Format = ring.Format()
		st.Buffered = rs.Buffered
		st.Fill = rs.Fill
	}
	st.Dropped = s.dropped()
	st.Retry = int(s.retry.Load())
}
