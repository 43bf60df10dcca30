package stream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConnect covers DNS, dial, TLS and HTTP status failures before any audio arrived.
	ErrConnect = errors.New("connect failed")
	// ErrReadTimeout means the connection stayed silent for longer than the read timeout.
	ErrReadTimeout = errors.New("read timeout")
	// ErrServerClosed means the server ended or reset the stream.
	ErrServerClosed = errors.New("server closed stream")
	// ErrUnsupportedPlaylist is returned for playlists that cannot be played as a single stream (HLS).
	ErrUnsupportedPlaylist = errors.New("unsupported playlist")
	// ErrBadURL is returned for URLs that cannot be requested at all.
	ErrBadURL = errors.New("invalid stream URL")
)

// HTTPStatusError is returned when the server answers with a non-200 status.
// It matches ErrConnect.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("stream returned status %d: %s", e.StatusCode, e.Status)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrConnect
}

// IsRetryable reports whether another attempt at the same URL could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadURL) || errors.Is(err, ErrUnsupportedPlaylist) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
			return false
		}
	}
	return true
}
