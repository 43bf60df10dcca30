package decoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
)

const (
	// ProbeSize bounds how many bytes are inspected before giving up.
	ProbeSize = 64 << 10
	probeStep = 4 << 10
)

var (
	sigFLAC   = []byte("fLaC")
	sigOgg    = []byte("OggS")
	sigVorbis = []byte("\x01vorbis")
	sigOpus   = []byte("OpusHead")
	sigRIFF   = []byte("RIFF")
	sigWAVE   = []byte("WAVE")
	sigID3    = []byte("ID3")
)

// probe identifies the codec from the head of br without consuming audio
// bytes. Leading ID3v2 tags and garbage before the first MP3 frame are
// discarded.
func probe(br *bufio.Reader) (Codec, error) {
	if err := skipID3(br); err != nil {
		return CodecUnknown, err
	}

	size := probeStep
	for {
		data, err := br.Peek(size)
		codec, offset, detectErr := detect(data)
		if detectErr != nil {
			return CodecUnknown, detectErr
		}
		if codec != CodecUnknown {
			if offset > 0 {
				if _, err := br.Discard(offset); err != nil {
					return CodecUnknown, err
				}
			}
			return codec, nil
		}
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				return CodecUnknown, fmt.Errorf("%w: no known signature in first %d bytes", ErrUnsupportedFormat, len(data))
			}
			return CodecUnknown, fmt.Errorf("probe: %w", err)
		}
		if size >= ProbeSize {
			return CodecUnknown, fmt.Errorf("%w: no known signature in first %d bytes%s",
				ErrUnsupportedFormat, len(data), describeUnknown(data))
		}
		size = min(size*2, ProbeSize)
	}
}

// detect returns CodecUnknown with a nil error when more data is needed.
func detect(data []byte) (Codec, int, error) {
	switch {
	case bytes.HasPrefix(data, sigFLAC):
		return CodecFLAC, 0, nil
	case bytes.HasPrefix(data, sigOgg):
		head := data[:min(len(data), 128)]
		if bytes.Contains(head, sigVorbis) {
			return CodecVorbis, 0, nil
		}
		if bytes.Contains(head, sigOpus) {
			return CodecUnknown, 0, fmt.Errorf("%w: Ogg Opus", ErrUnsupportedFormat)
		}
		if len(data) >= 128 {
			return CodecUnknown, 0, fmt.Errorf("%w: unknown Ogg codec", ErrUnsupportedFormat)
		}
		return CodecUnknown, 0, nil
	case len(data) >= 12 && bytes.HasPrefix(data, sigRIFF) && bytes.Equal(data[8:12], sigWAVE):
		return CodecWAV, 0, nil
	}

	if offset, ok := findMP3Sync(data); ok {
		return CodecMP3, offset, nil
	}
	return CodecUnknown, 0, nil
}

func describeUnknown(data []byte) string {
	for i := 0; i+1 < len(data); i++ {
		if isADTSHeader(data[i:]) {
			return " (looks like ADTS AAC)"
		}
	}
	return ""
}

func skipID3(br *bufio.Reader) error {
	hdr, err := br.Peek(10)
	if len(hdr) >= 3 && !bytes.HasPrefix(hdr, sigID3) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	size := int(hdr[6]&0x7F)<<21 | int(hdr[7]&0x7F)<<14 | int(hdr[8]&0x7F)<<7 | int(hdr[9]&0x7F)
	total := 10 + size
	if hdr[5]&0x10 != 0 {
		total += 10 // footer
	}
	if _, err := br.Discard(total); err != nil {
		return fmt.Errorf("skip ID3 tag: %w", err)
	}
	return nil
}

type mp3Header struct {
	version    byte
	sampleRate int
	frameLen   int
}

var (
	mpeg1L3Bitrates = [15]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mpeg2L3Bitrates = [15]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
	mpeg1Rates      = [3]int{44100, 48000, 32000}
)

// parseMP3Header accepts MPEG 1, 2 and 2.5 Layer III headers only.
func parseMP3Header(b []byte) (mp3Header, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mp3Header{}, false
	}
	version := (b[1] >> 3) & 0x03 // 0: 2.5, 1: reserved, 2: MPEG-2, 3: MPEG-1
	layer := (b[1] >> 1) & 0x03   // 1: Layer III
	if version == 1 || layer != 1 {
		return mp3Header{}, false
	}
	bitrateIdx := b[2] >> 4
	rateIdx := (b[2] >> 2) & 0x03
	padding := int((b[2] >> 1) & 0x01)
	if bitrateIdx == 0 || bitrateIdx == 0x0F || rateIdx == 0x03 {
		return mp3Header{}, false
	}

	var bitrate, rate, coeff int
	switch version {
	case 3:
		bitrate, rate, coeff = mpeg1L3Bitrates[bitrateIdx], mpeg1Rates[rateIdx], 144
	case 2:
		bitrate, rate, coeff = mpeg2L3Bitrates[bitrateIdx], mpeg1Rates[rateIdx]/2, 72
	default:
		bitrate, rate, coeff = mpeg2L3Bitrates[bitrateIdx], mpeg1Rates[rateIdx]/4, 72
	}
	return mp3Header{
		version:    version,
		sampleRate: rate,
		frameLen:   coeff*bitrate*1000/rate + padding,
	}, true
}

// findMP3Sync returns the offset of the first header that is followed by a
// compatible header exactly one frame later.
func findMP3Sync(data []byte) (int, bool) {
	for i := 0; i+4 <= len(data); i++ {
		hdr, ok := parseMP3Header(data[i:])
		if !ok {
			continue
		}
		next := i + hdr.frameLen
		if next+4 > len(data) {
			return 0, false
		}
		if h2, ok := parseMP3Header(data[next:]); ok && h2.version == hdr.version && h2.sampleRate == hdr.sampleRate {
			return i, true
		}
	}
	return 0, false
}

func isADTSHeader(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xF6 == 0xF0
}
