package stream

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
)

type playlistKind int

const (
	playlistNone playlistKind = iota
	playlistPLS
	playlistM3U
)

const maxPlaylistSize = 64 << 10

func detectPlaylist(contentType, rawURL string) playlistKind {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch strings.ToLower(mediaType) {
		case "audio/x-scpls", "audio/scpls":
			return playlistPLS
		case "audio/x-mpegurl", "audio/mpegurl", "application/x-mpegurl", "application/vnd.apple.mpegurl":
			return playlistM3U
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".pls":
			return playlistPLS
		case ".m3u", ".m3u8":
			return playlistM3U
		}
	}
	return playlistNone
}

func readPlaylist(kind playlistKind, r io.Reader, base string) ([]string, error) {
	var (
		entries []string
		err     error
	)
	switch kind {
	case playlistPLS:
		entries, err = parsePLS(io.LimitReader(r, maxPlaylistSize))
	case playlistM3U:
		entries, err = parseM3U(io.LimitReader(r, maxPlaylistSize))
	default:
		return nil, fmt.Errorf("%w: unknown playlist type", ErrUnsupportedPlaylist)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no stream URL found", ErrUnsupportedPlaylist)
	}
	return resolveAll(base, entries), nil
}

func parsePLS(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "file") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if u := strings.TrimSpace(parts[1]); u != "" {
			urls = append(urls, u)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading PLS playlist: %w", err)
	}
	return urls, nil
}

func parseM3U(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if strings.HasPrefix(line, "#EXT-X-") {
			return nil, fmt.Errorf("%w: HLS playlists are not supported", ErrUnsupportedPlaylist)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading M3U playlist: %w", err)
	}
	return urls, nil
}

func resolveAll(base string, entries []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return entries
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		ref, err := url.Parse(e)
		if err != nil {
			continue
		}
		out = append(out, baseURL.ResolveReference(ref).String())
	}
	return out
}
