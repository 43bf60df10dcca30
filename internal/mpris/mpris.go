// Package mpris exposes the player on the desktop media bus so media keys
// and shell widgets can control it. It is a no-op outside Linux.
package mpris

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glebovdev/rtap/internal/player"
)

const refreshInterval = time.Second

// Handler receives the commands sent by desktop media controls.
type Handler interface {
	Play()
	Pause()
	PlayPause()
	Stop()
	Next()
	Previous()
}

// StatusSource is the part of the player the bridge observes.
type StatusSource interface {
	Transitions() <-chan player.Transition
	Status() player.Status
}

// Track is what the bridge publishes about the current stream.
type Track struct {
	Status  string
	Station string
	Title   string
	URL     string
}

// trackFor maps a player status to MPRIS terms.
func trackFor(st player.Status) Track {
	t := Track{Status: playbackStatus(st.State)}
	if t.Status == "Stopped" {
		return t
	}
	t.Station = SanitizeUTF8(st.Station.Name)
	if t.Station == "" {
		t.Station = SanitizeUTF8(st.StreamName)
	}
	t.Title = SanitizeUTF8(st.Title)
	t.URL = st.Station.URL
	return t
}

func playbackStatus(s player.State) string {
	switch s {
	case player.StateConnecting, player.StateBuffering, player.StatePlaying:
		return "Playing"
	case player.StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// watch feeds publish with the current track on every transition and
// once a second for title changes, until ctx is done.
func watch(ctx context.Context, src StatusSource, publish func(Track)) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	var last Track
	update := func() {
		if t := trackFor(src.Status()); t != last {
			last = t
			publish(t)
		}
	}
	update()

	transitions := src.Transitions()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			update()
		case <-ticker.C:
			update()
		}
	}
}

// SanitizeUTF8 removes invalid UTF8 characters from a string.
// D-Bus requires all strings to be valid UTF8.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r != utf8.RuneError {
			b.WriteRune(r)
		}
	}
	return b.String()
}
