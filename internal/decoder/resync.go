package decoder

import (
	"bufio"
	"bytes"
	"errors"

	"github.com/mewkiz/flac/frame"
)

const (
	// syncOverlap is kept when a full window held no frame boundary, so a
	// header split across the window edge is still found.
	syncOverlap = 4 << 10
	// flacMaxHeader is the longest possible FLAC frame header.
	flacMaxHeader = 16
	oggPageHeader = 27
)

var errNoSync = errors.New("no frame boundary found")

// resync knows how to restart a codec in the middle of a stream: where the
// next frame begins, and which stream header the codec must see first.
type resync struct {
	find   func(data []byte) (int, bool)
	header []byte
}

// newResync captures what a restart of codec needs from the head of br.
// WAV has no frame sync, so it cannot be restarted.
func newResync(codec Codec, br *bufio.Reader) *resync {
	switch codec {
	case CodecMP3:
		return &resync{find: findMP3Sync}
	case CodecFLAC:
		if hdr := flacStreamHeader(br); hdr != nil {
			return &resync{find: findFLACSync, header: hdr}
		}
	case CodecVorbis:
		if hdr := oggHeaderPages(br); hdr != nil {
			return &resync{find: findOggPage, header: hdr}
		}
	}
	return nil
}

// flacStreamHeader returns the signature and STREAMINFO block, marked as
// the last metadata block.
func flacStreamHeader(br *bufio.Reader) []byte {
	const size = 4 + 4 + 34
	data, err := br.Peek(size)
	if err != nil || !bytes.HasPrefix(data, sigFLAC) {
		return nil
	}
	if data[4]&0x7F != 0 || data[5] != 0 || data[6] != 0 || data[7] != 34 {
		return nil
	}
	hdr := bytes.Clone(data)
	hdr[4] |= 0x80
	return hdr
}

// findFLACSync returns the offset of the first frame header whose CRC-8
// checks out.
func findFLACSync(data []byte) (int, bool) {
	for i := 0; i+flacMaxHeader <= len(data); i++ {
		if data[i] != 0xFF || data[i+1]&0xFE != 0xF8 {
			continue
		}
		if _, err := frame.New(bytes.NewReader(data[i : i+flacMaxHeader])); err == nil {
			return i, true
		}
	}
	return 0, false
}

// oggHeaderPages returns the pages carrying the three Vorbis header
// packets. Audio always starts on a fresh page after them.
func oggHeaderPages(br *bufio.Reader) []byte {
	var off, packets int
	need := oggPageHeader
	for need <= ProbeSize {
		data, err := br.Peek(need)
		if err != nil {
			return nil
		}
		page := data[off:]
		if !bytes.HasPrefix(page, sigOgg) {
			return nil
		}
		segments := int(page[26])
		if len(page) < oggPageHeader+segments {
			need = off + oggPageHeader + segments
			continue
		}
		size, ends := oggPageHeader+segments, 0
		for _, lace := range page[oggPageHeader : oggPageHeader+segments] {
			size += int(lace)
			if lace < 255 {
				ends++
			}
		}
		if len(page) < size {
			need = off + size
			continue
		}

		off += size
		if packets += ends; packets >= 3 {
			return bytes.Clone(data[:off])
		}
		need = off + oggPageHeader
	}
	return nil
}

// findOggPage returns the offset of the first Ogg page that starts a new
// packet.
func findOggPage(data []byte) (int, bool) {
	for i := 0; i+6 <= len(data); {
		j := bytes.Index(data[i:], sigOgg)
		if j < 0 {
			return 0, false
		}
		i += j
		if i+6 > len(data) {
			return 0, false
		}
		if data[i+4] == 0 && data[i+5]&0x01 == 0 {
			return i, true
		}
		i++
	}
	return 0, false
}
