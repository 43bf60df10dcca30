//go:build linux

package mpris

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
)

const (
	mprisPath       = "/org/mpris/MediaPlayer2"
	mprisInterface  = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	busName         = "org.mpris.MediaPlayer2.rtap"
	trackPath       = "/org/mpris/MediaPlayer2/Track/1"
)

// MPRIS handles D-Bus MPRIS integration for desktop media control.
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties
	mu    sync.Mutex
}

// mprisRoot implements org.mpris.MediaPlayer2 interface.
type mprisRoot struct{}

// mprisPlayer implements org.mpris.MediaPlayer2.Player interface.
type mprisPlayer struct {
	handler Handler
}

// New registers the player on the session bus.
func New(handler Handler) (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	if err := conn.Export(mprisRoot{}, mprisPath, mprisInterface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export root interface: %w", err)
	}
	if err := conn.Export(&mprisPlayer{handler: handler}, mprisPath, playerInterface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export player interface: %w", err)
	}

	props, err := prop.Export(conn, mprisPath, propsSpec())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}

	if err := conn.Export(introspect.NewIntrospectable(introspection()), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to export introspectable: %w", err)
	}

	log.Debug().Str("name", busName).Msg("MPRIS registered")
	return &MPRIS{conn: conn, props: props}, nil
}

func readOnly(v any) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
}

func propsSpec() map[string]map[string]*prop.Prop {
	return map[string]map[string]*prop.Prop{
		mprisInterface: {
			"CanQuit":             readOnly(false),
			"CanRaise":            readOnly(false),
			"CanSetFullscreen":    readOnly(false),
			"DesktopEntry":        readOnly("rtap"),
			"Fullscreen":          readOnly(false),
			"HasTrackList":        readOnly(false),
			"Identity":            readOnly(config.AppName),
			"SupportedMimeTypes":  readOnly([]string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav"}),
			"SupportedUriSchemes": readOnly([]string{"http", "https"}),
		},
		playerInterface: {
			"CanControl":     readOnly(true),
			"CanGoNext":      readOnly(true),
			"CanGoPrevious":  readOnly(true),
			"CanPause":       readOnly(true),
			"CanPlay":        readOnly(true),
			"CanSeek":        readOnly(false),
			"MaximumRate":    readOnly(1.0),
			"MinimumRate":    readOnly(1.0),
			"PlaybackStatus": readOnly("Stopped"),
			"Rate":           readOnly(1.0),
			"Position":       readOnly(int64(0)),
			"Metadata":       readOnly(map[string]dbus.Variant{}),
		},
	}
}

func introspection() *introspect.Node {
	return &introspect.Node{
		Name: mprisPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: mprisInterface,
				Methods: []introspect.Method{
					{Name: "Quit"},
					{Name: "Raise"},
				},
				Properties: []introspect.Property{
					{Name: "CanQuit", Type: "b", Access: "read"},
					{Name: "CanRaise", Type: "b", Access: "read"},
					{Name: "CanSetFullscreen", Type: "b", Access: "read"},
					{Name: "DesktopEntry", Type: "s", Access: "read"},
					{Name: "Fullscreen", Type: "b", Access: "read"},
					{Name: "HasTrackList", Type: "b", Access: "read"},
					{Name: "Identity", Type: "s", Access: "read"},
					{Name: "SupportedMimeTypes", Type: "as", Access: "read"},
					{Name: "SupportedUriSchemes", Type: "as", Access: "read"},
				},
			},
			{
				Name: playerInterface,
				Methods: []introspect.Method{
					{Name: "Next"},
					{Name: "Previous"},
					{Name: "Pause"},
					{Name: "PlayPause"},
					{Name: "Stop"},
					{Name: "Play"},
				},
				Properties: []introspect.Property{
					{Name: "CanControl", Type: "b", Access: "read"},
					{Name: "CanGoNext", Type: "b", Access: "read"},
					{Name: "CanGoPrevious", Type: "b", Access: "read"},
					{Name: "CanPause", Type: "b", Access: "read"},
					{Name: "CanPlay", Type: "b", Access: "read"},
					{Name: "CanSeek", Type: "b", Access: "read"},
					{Name: "MaximumRate", Type: "d", Access: "read"},
					{Name: "MinimumRate", Type: "d", Access: "read"},
					{Name: "PlaybackStatus", Type: "s", Access: "read"},
					{Name: "Rate", Type: "d", Access: "read"},
					{Name: "Position", Type: "x", Access: "read"},
					{Name: "Metadata", Type: "a{sv}", Access: "read"},
				},
			},
		},
	}
}

// metadata builds the xesam map for t. Radio has no albums, so the station
// goes in album and the ICY title is split into artist and title when it
// has the usual "Artist - Title" form.
func metadata(t Track) map[string]dbus.Variant {
	if t.Status == "Stopped" {
		return map[string]dbus.Variant{}
	}
	artist, title := splitTitle(t.Title)
	if title == "" {
		title = t.Station
	}
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath(trackPath)),
		"xesam:title":   dbus.MakeVariant(title),
		"xesam:album":   dbus.MakeVariant(t.Station),
	}
	if artist != "" {
		md["xesam:artist"] = dbus.MakeVariant([]string{artist})
	}
	if t.URL != "" {
		md["xesam:url"] = dbus.MakeVariant(t.URL)
	}
	return md
}

func splitTitle(s string) (artist, title string) {
	if a, t, ok := strings.Cut(s, " - "); ok {
		return strings.TrimSpace(a), strings.TrimSpace(t)
	}
	return "", strings.TrimSpace(s)
}

// Watch publishes the player's status until ctx is done.
func (m *MPRIS) Watch(ctx context.Context, src StatusSource) {
	if m == nil {
		return
	}
	watch(ctx, src, m.publish)
}

func (m *MPRIS) publish(t Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props.SetMust(playerInterface, "PlaybackStatus", t.Status)
	m.props.SetMust(playerInterface, "Metadata", metadata(t))
}

// Close releases D-Bus resources.
func (m *MPRIS) Close() {
	if m == nil || m.conn == nil {
		return
	}
	_, _ = m.conn.ReleaseName(busName)
	_ = m.conn.Close()
}

func (mprisRoot) Raise() *dbus.Error { return nil }

func (mprisRoot) Quit() *dbus.Error { return nil }

func (p *mprisPlayer) Next() *dbus.Error {
	p.handler.Next()
	return nil
}

func (p *mprisPlayer) Previous() *dbus.Error {
	p.handler.Previous()
	return nil
}

func (p *mprisPlayer) Pause() *dbus.Error {
	p.handler.Pause()
	return nil
}

func (p *mprisPlayer) PlayPause() *dbus.Error {
	p.handler.PlayPause()
	return nil
}

func (p *mprisPlayer) Stop() *dbus.Error {
	p.handler.Stop()
	return nil
}

func (p *mprisPlayer) Play() *dbus.Error {
	p.handler.Play()
	return nil
}
