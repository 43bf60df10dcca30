// Package decoder turns a byte stream of unknown codec into PCM frames.
//
// The codec is chosen by probing the first bytes of the stream. Each codec
// is a variant that yields a beep streamer; Decoder wraps whichever variant
// was selected behind a single Next call.
package decoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/pcm"
)

const (
	DefaultFrameSamples         = 1024
	DefaultMaxConsecutiveErrors = 8
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDecodeStalled     = errors.New("decode stalled")
	ErrFormatChanged     = errors.New("stream format changed")

	errNonFinite = errors.New("non-finite samples")
	errNoOutput  = errors.New("decoder produced no samples")
)

type Codec int

const (
	CodecUnknown Codec = iota
	CodecMP3
	CodecFLAC
	CodecVorbis
	CodecWAV
)

func (c Codec) String() string {
	switch c {
	case CodecMP3:
		return "MP3"
	case CodecFLAC:
		return "FLAC"
	case CodecVorbis:
		return "VORBIS"
	case CodecWAV:
		return "WAV"
	default:
		return "UNKNOWN"
	}
}

// ParseCodec maps a codec name or MIME type to a Codec.
func ParseCodec(s string) Codec {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "mp3", "mpeg", "audio/mpeg", "audio/mp3":
		return CodecMP3
	case "flac", "audio/flac", "audio/x-flac":
		return CodecFLAC
	case "ogg", "vorbis", "audio/ogg", "application/ogg", "audio/vorbis":
		return CodecVorbis
	case "wav", "wave", "audio/wav", "audio/x-wav", "audio/wave":
		return CodecWAV
	default:
		return CodecUnknown
	}
}

// Supported reports whether a codec name can be decoded.
func Supported(name string) bool {
	return ParseCodec(name) != CodecUnknown
}

type variant func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var variants = map[Codec]variant{
	CodecMP3: mp3.Decode,
	CodecFLAC: func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return flac.Decode(rc)
	},
	CodecVorbis: vorbis.Decode,
	CodecWAV: func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return wav.Decode(rc)
	},
}

type Options struct {
	// FrameSamples is the maximum number of samples per frame.
	FrameSamples int
	// MaxConsecutiveErrors is how many failed frames in a row end decoding.
	MaxConsecutiveErrors int
	// CodecHint is advisory. The probed codec always wins.
	CodecHint string
}

func DefaultOptions() Options {
	return Options{
		FrameSamples:         DefaultFrameSamples,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// Decoder produces frames from one source connection.
type Decoder struct {
	codec    Codec
	format   pcm.Format
	open     variant
	streamer beep.StreamSeekCloser
	br       *bufio.Reader
	src      *trackingReader
	closer   io.Closer
	resync   *resync

	buf         [][2]float64
	maxErrors   int
	consecutive int

	dropped atomic.Int64
	decoded atomic.Int64
}

// Open probes src and prepares the matching codec. Closing the returned
// Decoder closes src; on error the caller still owns src.
func Open(src io.ReadCloser, opts Options) (*Decoder, error) {
	if opts.FrameSamples <= 0 {
		opts.FrameSamples = DefaultFrameSamples
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}

	br := bufio.NewReaderSize(src, ProbeSize)
	codec, err := probe(br)
	if err != nil {
		return nil, err
	}
	if hint := ParseCodec(opts.CodecHint); hint != CodecUnknown && hint != codec {
		log.Debug().Str("hint", hint.String()).Str("probed", codec.String()).Msg("Codec hint does not match stream")
	}

	open, ok := variants[codec]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrUnsupportedFormat, codec)
	}
	rs := newResync(codec, br)
	tracked := &trackingReader{r: br}
	streamer, format, err := open(io.NopCloser(tracked))
	if err != nil {
		if tracked.err != nil {
			return nil, fmt.Errorf("open %s decoder: %w", codec, tracked.err)
		}
		return nil, fmt.Errorf("%w: %s header: %v", ErrUnsupportedFormat, codec, err)
	}

	d := &Decoder{
		codec:     codec,
		format:    pcm.Format{SampleRate: format.SampleRate, Channels: format.NumChannels},
		open:      open,
		streamer:  streamer,
		br:        br,
		src:       tracked,
		closer:    src,
		resync:    rs,
		buf:       make([][2]float64, opts.FrameSamples),
		maxErrors: opts.MaxConsecutiveErrors,
	}
	if !d.format.Valid() {
		_ = streamer.Close()
		return nil, fmt.Errorf("%w: %s reported format %s", ErrUnsupportedFormat, codec, d.format)
	}
	log.Debug().Str("codec", codec.String()).Str("format", d.format.String()).Msg("Decoder ready")
	return d, nil
}

func (d *Decoder) Codec() Codec {
	return d.codec
}

func (d *Decoder) Format() pcm.Format {
	return d.format
}

// Dropped returns the number of frames discarded as undecodable.
func (d *Decoder) Dropped() int64 {
	return d.dropped.Load()
}

// Decoded returns the number of samples produced so far.
func (d *Decoder) Decoded() int64 {
	return d.decoded.Load()
}

// CheckFormat returns ErrFormatChanged if the decoder does not produce want.
func (d *Decoder) CheckFormat(want pcm.Format) error {
	if d.format != want {
		return fmt.Errorf("%w: %s -> %s", ErrFormatChanged, want, d.format)
	}
	return nil
}

// Next returns the next frame. Source errors are returned unchanged; a
// finished codec stream yields io.EOF. Undecodable frames are skipped and
// the codec is restarted at the next frame boundary, until too many fail in
// a row, which yields ErrDecodeStalled.
func (d *Decoder) Next() (pcm.Frame, error) {
	for {
		n, ok := d.streamer.Stream(d.buf)
		if n > 0 {
			frame := pcm.Frame{Samples: make([][2]float64, n), Format: d.format}
			copy(frame.Samples, d.buf[:n])
			if !frame.Finite() {
				if err := d.drop(errNonFinite); err != nil {
					return pcm.Frame{}, err
				}
				continue
			}
			d.consecutive = 0
			d.decoded.Add(int64(n))
			return frame, nil
		}

		if d.src.err != nil {
			return pcm.Frame{}, d.src.err
		}
		if ok {
			if err := d.drop(errNoOutput); err != nil {
				return pcm.Frame{}, err
			}
			continue
		}
		err := d.streamer.Err()
		if err == nil {
			return pcm.Frame{}, io.EOF
		}
		if dropErr := d.drop(err); dropErr != nil {
			return pcm.Frame{}, dropErr
		}
		if err := d.restart(err); err != nil {
			return pcm.Frame{}, err
		}
	}
}

// restart replaces a failed codec with a fresh one opened at the next frame
// boundary of the remaining bytes. Codecs keep their first error forever,
// so this is the only way past a corrupt frame.
func (d *Decoder) restart(cause error) error {
	if d.resync == nil {
		return fmt.Errorf("%w: %s cannot resynchronize: %w", ErrDecodeStalled, d.codec, cause)
	}
	_ = d.streamer.Close()

	for {
		if err := d.skipToSync(); err != nil {
			return err
		}
		r := io.MultiReader(bytes.NewReader(d.resync.header), d.src)
		streamer, format, err := d.open(io.NopCloser(r))
		if err != nil {
			if d.src.err != nil {
				return d.src.err
			}
			if dropErr := d.drop(err); dropErr != nil {
				return dropErr
			}
			continue
		}

		d.streamer = streamer
		want := d.format
		d.format = pcm.Format{SampleRate: format.SampleRate, Channels: format.NumChannels}
		log.Debug().Str("codec", d.codec.String()).Int64("dropped", d.dropped.Load()).Msg("Decoder resynchronized")
		return d.CheckFormat(want)
	}
}

// skipToSync discards bytes up to the next frame boundary. A window with no
// boundary in it counts as a failed frame.
func (d *Decoder) skipToSync() error {
	size := probeStep
	for {
		data, err := d.br.Peek(size)
		if off, ok := d.resync.find(data); ok {
			_, err := d.br.Discard(off)
			return err
		}
		if err != nil {
			return err
		}
		if size < ProbeSize {
			size = min(size*2, ProbeSize)
			continue
		}
		if _, err := d.br.Discard(len(data) - syncOverlap); err != nil {
			return err
		}
		if err := d.drop(errNoSync); err != nil {
			return err
		}
		size = probeStep
	}
}

func (d *Decoder) drop(cause error) error {
	d.dropped.Add(1)
	d.consecutive++
	log.Debug().Err(cause).Int("consecutive", d.consecutive).Str("codec", d.codec.String()).Msg("Dropped undecodable frame")
	if d.consecutive >= d.maxErrors {
		return fmt.Errorf("%w: %d consecutive failures: %w", ErrDecodeStalled, d.consecutive, cause)
	}
	return nil
}

// Close releases the codec and the underlying source.
func (d *Decoder) Close() error {
	err := d.streamer.Close()
	if cerr := d.closer.Close(); err == nil {
		err = cerr
	}
	return err
}

// trackingReader remembers the first error of the underlying source so it
// can be told apart from codec errors.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

