package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, chan struct{}) {
	t.Helper()
	srv := httptest.NewServer(handler)
	release := make(chan struct{})
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv, release
}

func testOpener(readTimeout time.Duration) *Opener {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = readTimeout
	return NewOpener(cfg)
}

func icyBody(chunks [][]byte, metaint int, titles []string) []byte {
	var buf bytes.Buffer
	for i, chunk := range chunks {
		if len(chunk) != metaint {
			panic("chunk must be metaint bytes")
		}
		buf.Write(chunk)
		meta := ""
		if i < len(titles) && titles[i] != "" {
			meta = fmt.Sprintf("StreamTitle='%s';", titles[i])
		}
		blocks := (len(meta) + 15) / 16
		buf.WriteByte(byte(blocks))
		padded := make([]byte, blocks*16)
		copy(padded, meta)
		buf.Write(padded)
	}
	return buf.Bytes()
}

func TestOpenStripsICYMetadata(t *testing.T) {
	chunks := [][]byte{
		bytes.Repeat([]byte{'a'}, 32),
		bytes.Repeat([]byte{'b'}, 32),
		bytes.Repeat([]byte{'c'}, 32),
	}
	body := icyBody(chunks, 32, []string{"Artist - One", "", "Artist - Two"})

	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("Icy-MetaData"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", "32")
		w.Header().Set("icy-name", "Test FM")
		w.Header().Set("icy-br", "128,128")
		_, _ = w.Write(body)
	})

	src, err := testOpener(time.Second).Open(context.Background(), srv.URL+"/stream")
	require.NoError(t, err)
	defer src.Close()

	var titles []string
	src.OnTitle(func(title string) { titles = append(titles, title) })

	data, err := io.ReadAll(src)
	require.ErrorIs(t, err, ErrServerClosed)
	assert.Equal(t, bytes.Join(chunks, nil), data)
	assert.Equal(t, []string{"Artist - One", "Artist - Two"}, titles)
	assert.Equal(t, "Artist - Two", src.Title())

	info := src.Info()
	assert.Equal(t, "Test FM", info.Name)
	assert.Equal(t, 128, info.Bitrate)
	assert.Equal(t, 32, info.MetaInt)
	assert.Equal(t, "audio/mpeg", info.ContentType)
}

func TestOpenResolvesPLS(t *testing.T) {
	var srvURL string
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/radio.pls":
			w.Header().Set("Content-Type", "audio/x-scpls")
			fmt.Fprintf(w, "[playlist]\nNumberOfEntries=2\nFile1=%s/missing\nFile2=%s/live\n", srvURL, srvURL)
		case "/live":
			_, _ = w.Write([]byte("audio"))
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = srv.URL

	src, err := testOpener(time.Second).Open(context.Background(), srv.URL+"/radio.pls")
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, srv.URL+"/live", src.Info().URL)
	data, _ := io.ReadAll(src)
	assert.Equal(t, "audio", string(data))
}

func TestOpenResolvesRelativeM3U(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lists/radio.m3u":
			_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:-1,Radio\n../live\n"))
		case "/live":
			_, _ = w.Write([]byte("audio"))
		}
	})

	src, err := testOpener(time.Second).Open(context.Background(), srv.URL+"/lists/radio.m3u")
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, srv.URL+"/live", src.Info().URL)
}

func TestOpenRejectsNestedPlaylist(t *testing.T) {
	var srvURL string
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/outer.pls":
			w.Header().Set("Content-Type", "audio/x-scpls")
			fmt.Fprintf(w, "[playlist]\nNumberOfEntries=1\nFile1=%s/inner.m3u\n", srvURL)
		case "/inner.m3u":
			w.Header().Set("Content-Type", "audio/x-mpegurl")
			fmt.Fprintf(w, "%s/live\n", srvURL)
		case "/live":
			_, _ = w.Write([]byte("audio"))
		}
	})
	srvURL = srv.URL

	_, err := testOpener(time.Second).Open(context.Background(), srv.URL+"/outer.pls")
	require.ErrorIs(t, err, ErrUnsupportedPlaylist)
}

func TestOpenRejectsHLS(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-TARGETDURATION:10\nseg1.ts\n"))
	})

	_, err := testOpener(time.Second).Open(context.Background(), srv.URL+"/index.m3u8")
	require.ErrorIs(t, err, ErrUnsupportedPlaylist)
	assert.False(t, IsRetryable(err))
}

func TestOpenHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusServiceUnavailable, true},
		{http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := testOpener(time.Second).Open(context.Background(), srv.URL)
			require.ErrorIs(t, err, ErrConnect)

			var statusErr *HTTPStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestOpenConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = testOpener(time.Second).Open(context.Background(), "http://"+addr+"/stream")
	require.ErrorIs(t, err, ErrConnect)
	assert.True(t, IsRetryable(err))
}

func TestOpenBadURL(t *testing.T) {
	_, err := testOpener(time.Second).Open(context.Background(), "http://[::1")
	require.ErrorIs(t, err, ErrConnect)
	require.ErrorIs(t, err, ErrBadURL)
	assert.False(t, IsRetryable(err))
}

func TestReadTimeout(t *testing.T) {
	var release chan struct{}
	srv, release := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})

	src, err := testOpener(100*time.Millisecond).Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer src.Close()

	buf := make([]byte, 16)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	start := time.Now()
	_, err = src.Read(buf)
	require.ErrorIs(t, err, ErrReadTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCancelUnblocksReadAndClosesConnection(t *testing.T) {
	disconnected := make(chan struct{})
	var release chan struct{}
	srv, release := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
			close(disconnected)
		case <-release:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	src, err := testOpener(0).Open(ctx, srv.URL)
	require.NoError(t, err)
	defer src.Close()

	readErr := make(chan error, 1)
	go func() {
		_, err := src.Read(make([]byte, 16))
		readErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-readErr:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("read stayed blocked after cancel")
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	})

	src, err := testOpener(time.Second).Open(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		_ = src.Close()
		_ = src.Close()
	})
}

func TestParseStreamTitle(t *testing.T) {
	tests := []struct {
		meta  string
		title string
		ok    bool
	}{
		{"StreamTitle='Band - Song';StreamUrl='';", "Band - Song", true},
		{"StreamTitle='';", "", true},
		{"StreamUrl='x';", "", false},
		{"StreamTitle='unterminated", "", false},
	}
	for _, tt := range tests {
		title, ok := parseStreamTitle(tt.meta)
		assert.Equal(t, tt.ok, ok, tt.meta)
		assert.Equal(t, tt.title, title, tt.meta)
	}
}

func TestDetectPlaylist(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        playlistKind
	}{
		{"audio/x-scpls", "http://x/stream", playlistPLS},
		{"audio/x-mpegurl; charset=utf-8", "http://x/stream", playlistM3U},
		{"", "http://x/radio.PLS", playlistPLS},
		{"", "http://x/radio.m3u8?token=1", playlistM3U},
		{"audio/mpeg", "http://x/live.mp3", playlistNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectPlaylist(tt.contentType, tt.url), tt.url)
	}
}

func TestParsePLSSkipsNonFileLines(t *testing.T) {
	urls, err := parsePLS(strings.NewReader("[playlist]\nTitle1=x\nFile1=http://a\nfile2 = http://b \nLength1=-1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://b"}, urls)
}

func TestParseBitrate(t *testing.T) {
	assert.Equal(t, 128, parseBitrate("128"))
	assert.Equal(t, 192, parseBitrate("192,192"))
	assert.Equal(t, 0, parseBitrate(""))
	assert.Equal(t, 0, parseBitrate("abc"))
}
