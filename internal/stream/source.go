// Package stream opens station URLs and exposes them as byte sources with
// classified errors. Internet radio streams never end, so any end of data
// is reported as ErrServerClosed.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	readBufferSize        = 16 << 10
	// A playlist entry must be a stream, not another playlist.
	maxPlaylistDepth      = 1
)

// Config controls how connections are made.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// ICYMetadata requests in-band stream titles.
	ICYMetadata bool
}

func DefaultConfig() Config {
	return Config{
		UserAgent:      fmt.Sprintf("%s/%s", config.AppName, config.AppVersion),
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		ICYMetadata:    true,
	}
}

// ConfigFromPlayback applies the configured network timeouts.
func ConfigFromPlayback(p config.Playback) Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Duration(p.ConnectTimeoutMs) * time.Millisecond
	cfg.ReadTimeout = time.Duration(p.ReadTimeoutMs) * time.Millisecond
	return cfg
}

// Info describes a connected stream as advertised by the server.
type Info struct {
	URL         string
	ContentType string
	Name        string
	Genre       string
	Description string
	Bitrate     int
	MetaInt     int
}

// Opener creates Sources. It is safe for concurrent use.
type Opener struct {
	cfg    Config
	client *http.Client
}

func NewOpener(cfg Config) *Opener {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	return &Opener{
		cfg: cfg,
		client: &http.Client{
			Timeout: 0, // streams are long-lived
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				TLSHandshakeTimeout:   cfg.ConnectTimeout,
				ResponseHeaderTimeout: cfg.ConnectTimeout + 5*time.Second,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				DisableCompression:    true,
			},
		},
	}
}

// Open connects to rawURL and returns a Source positioned at the first
// audio byte. Playlist URLs are resolved and their entries tried in order.
// Cancelling ctx unblocks any read in progress and releases the connection.
func (o *Opener) Open(ctx context.Context, rawURL string) (*Source, error) {
	return o.open(ctx, rawURL, 0)
}

func (o *Opener) open(ctx context.Context, rawURL string, depth int) (*Source, error) {
	resp, err := o.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	kind := detectPlaylist(resp.Header.Get("Content-Type"), rawURL)
	if kind == playlistNone {
		return newSource(ctx, resp, rawURL, o.cfg.ReadTimeout), nil
	}

	entries, err := readPlaylist(kind, resp.Body, rawURL)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if depth >= maxPlaylistDepth {
		return nil, fmt.Errorf("%w: nested playlists at %s", ErrUnsupportedPlaylist, rawURL)
	}
	log.Debug().Str("playlist", rawURL).Int("entries", len(entries)).Msg("Resolved playlist")

	var lastErr error
	for _, entry := range entries {
		src, err := o.open(ctx, entry, depth+1)
		if err == nil {
			return src, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug().Err(err).Str("url", entry).Msg("Playlist entry failed")
		lastErr = err
	}
	return nil, lastErr
}

func (o *Opener) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrConnect, ErrBadURL, err)
	}
	req.Header.Set("User-Agent", o.cfg.UserAgent)
	if o.cfg.ICYMetadata {
		req.Header.Set("Icy-MetaData", "1")
	}

	log.Debug().Str("url", rawURL).Msg("Connecting to stream")
	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	log.Debug().Int("status", resp.StatusCode).Str("content_type", resp.Header.Get("Content-Type")).Msg("Stream response")

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// Source is one open stream connection. Read strips ICY metadata blocks.
// A Source is read from a single goroutine; Close may be called from any.
type Source struct {
	info   Info
	body   *timedBody
	reader *bufio.Reader

	untilMeta int
	onTitle   func(string)
	title     atomic.Value

	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error
}

func newSource(ctx context.Context, resp *http.Response, rawURL string, readTimeout time.Duration) *Source {
	info := Info{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		Bitrate:     parseBitrate(resp.Header.Get("icy-br")),
		MetaInt:     parsePositive(resp.Header.Get("icy-metaint")),
	}

	body := &timedBody{ctx: ctx, body: resp.Body, timeout: readTimeout}
	s := &Source{
		info:      info,
		body:      body,
		reader:    bufio.NewReaderSize(body, readBufferSize),
		untilMeta: info.MetaInt,
	}
	// Closing the body is what unblocks a read stuck in the kernel.
	s.stopWatch = context.AfterFunc(ctx, func() {
		_ = resp.Body.Close()
	})
	return s
}

func (s *Source) Info() Info {
	return s.info
}

// OnTitle registers fn to be called with each new ICY stream title.
// It must be set before the first Read.
func (s *Source) OnTitle(fn func(string)) {
	s.onTitle = fn
}

// Title returns the most recent ICY stream title.
func (s *Source) Title() string {
	if v, ok := s.title.Load().(string); ok {
		return v
	}
	return ""
}

func (s *Source) Read(p []byte) (int, error) {
	if s.info.MetaInt == 0 {
		return s.reader.Read(p)
	}
	if s.untilMeta == 0 {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.untilMeta = s.info.MetaInt
	}
	if len(p) > s.untilMeta {
		p = p[:s.untilMeta]
	}
	n, err := s.reader.Read(p)
	s.untilMeta -= n
	return n, err
}

func (s *Source) readMetadata() error {
	lenByte, err := s.reader.ReadByte()
	if err != nil {
		return err
	}
	metaLen := int(lenByte) * 16
	if metaLen == 0 {
		return nil
	}
	meta := make([]byte, metaLen)
	if _, err := io.ReadFull(s.reader, meta); err != nil {
		return err
	}
	if title, ok := parseStreamTitle(string(meta)); ok && title != s.Title() {
		s.title.Store(title)
		log.Debug().Str("title", title).Msg("Stream title changed")
		if s.onTitle != nil {
			s.onTitle(title)
		}
	}
	return nil
}

// Close releases the connection. It is safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.stopWatch()
		s.closeErr = s.body.body.Close()
	})
	return s.closeErr
}

// timedBody classifies read errors and closes the body when a single read
// stalls for longer than timeout.
type timedBody struct {
	ctx      context.Context
	body     io.ReadCloser
	timeout  time.Duration
	timedOut atomic.Bool
}

func (t *timedBody) Read(p []byte) (int, error) {
	var watchdog *time.Timer
	if t.timeout > 0 {
		watchdog = time.AfterFunc(t.timeout, func() {
			t.timedOut.Store(true)
			_ = t.body.Close()
		})
	}
	n, err := t.body.Read(p)
	if watchdog != nil {
		watchdog.Stop()
	}
	if err == nil {
		return n, nil
	}
	return n, t.classify(err)
}

func (t *timedBody) classify(err error) error {
	switch {
	case t.timedOut.Load():
		return fmt.Errorf("%w: no data for %v", ErrReadTimeout, t.timeout)
	case t.ctx.Err() != nil:
		return t.ctx.Err()
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: end of data", ErrServerClosed)
	default:
		return fmt.Errorf("%w: %w", ErrServerClosed, err)
	}
}

func parseStreamTitle(meta string) (string, bool) {
	const key = "StreamTitle='"
	start := strings.Index(meta, key)
	if start < 0 {
		return "", false
	}
	start += len(key)
	end := strings.Index(meta[start:], "';")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(meta[start : start+end]), true
}

// parseBitrate accepts the "128" and "128,128" forms of icy-br.
func parseBitrate(v string) int {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return parsePositive(v)
}

func parsePositive(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
