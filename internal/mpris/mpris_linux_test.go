//go:build linux

package mpris

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		in     string
		artist string
		title  string
	}{
		{"Miles Davis - So What", "Miles Davis", "So What"},
		{"Station ID", "", "Station ID"},
		{"A - B - C", "A", "B - C"},
		{"", "", ""},
	}
	for _, tt := range tests {
		artist, title := splitTitle(tt.in)
		assert.Equal(t, tt.artist, artist, tt.in)
		assert.Equal(t, tt.title, title, tt.in)
	}
}

func TestMetadata(t *testing.T) {
	md := metadata(Track{Status: "Playing", Station: "Jazz FM", Title: "Miles Davis - So What", URL: "http://example.com/jazz"})

	assert.Equal(t, dbus.ObjectPath(trackPath), md["mpris:trackid"].Value())
	assert.Equal(t, "So What", md["xesam:title"].Value())
	assert.Equal(t, []string{"Miles Davis"}, md["xesam:artist"].Value())
	assert.Equal(t, "Jazz FM", md["xesam:album"].Value())
	assert.Equal(t, "http://example.com/jazz", md["xesam:url"].Value())
}

func TestMetadataWithoutTitle(t *testing.T) {
	md := metadata(Track{Status: "Playing", Station: "Jazz FM"})

	assert.Equal(t, "Jazz FM", md["xesam:title"].Value())
	assert.NotContains(t, md, "xesam:artist")
	assert.NotContains(t, md, "xesam:url")
}

func TestMetadataStopped(t *testing.T) {
	assert.Empty(t, metadata(Track{Status: "Stopped"}))
}
