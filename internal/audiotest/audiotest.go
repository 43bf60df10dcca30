// Package audiotest builds small audio streams for tests: 16-bit PCM WAV
// and uncompressed (verbatim subframe) FLAC.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Tone fills n samples with a constant value in the range -1..1.
func Tone(n int, value float64) []int16 {
	out := make([]int16, n)
	v := int16(math.Round(value * 32767))
	for i := range out {
		out[i] = v
	}
	return out
}

// Sine generates n samples of a sine wave at amplitude 0.5.
func Sine(n, rate int, freq float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

// WAV encodes mono 16-bit samples as a RIFF/WAVE file.
func WAV(rate int, samples []int16) []byte {
	var buf bytes.Buffer
	buf.Write(WAVHeader(rate, uint32(len(samples)*2)))
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// WAVHeader returns the RIFF header for mono 16-bit PCM with dataSize
// bytes of samples. A large dataSize makes an endless test stream.
func WAVHeader(rate int, dataSize uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	return buf.Bytes()
}

// PCM16 encodes samples as little-endian 16-bit PCM bytes.
func PCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// FLACBlockSize is the fixed block size used by FLAC.
const FLACBlockSize = 4096

// FLAC encodes mono 16-bit samples at 8 kHz. len(samples) must be a
// multiple of FLACBlockSize and the stream may hold at most 128 frames.
func FLAC(samples []int16) []byte {
	if len(samples)%FLACBlockSize != 0 || len(samples)/FLACBlockSize > 128 {
		panic("audiotest: FLAC needs whole 4096-sample blocks, at most 128")
	}
	const rate = 8000

	var buf bytes.Buffer
	buf.WriteString("fLaC")

	// STREAMINFO, last metadata block
	buf.Write([]byte{0x80, 0x00, 0x00, 34})
	_ = binary.Write(&buf, binary.BigEndian, uint16(FLACBlockSize))
	_ = binary.Write(&buf, binary.BigEndian, uint16(FLACBlockSize))
	buf.Write([]byte{0, 0, 0}) // min frame size unknown
	buf.Write([]byte{0, 0, 0}) // max frame size unknown
	packed := uint64(rate)<<44 | uint64(0)<<41 | uint64(15)<<36 | uint64(len(samples))
	_ = binary.Write(&buf, binary.BigEndian, packed)
	buf.Write(make([]byte, 16)) // MD5 unknown

	for i := 0; i*FLACBlockSize < len(samples); i++ {
		buf.Write(flacFrame(i, samples[i*FLACBlockSize:(i+1)*FLACBlockSize]))
	}
	return buf.Bytes()
}

func flacFrame(number int, block []int16) []byte {
	var frame bytes.Buffer
	frame.Write([]byte{
		0xFF, 0xF8, // sync, fixed block size
		0xC4,       // block size 4096, sample rate 8 kHz
		0x08,       // mono, 16 bits per sample
		byte(number),
	})
	frame.WriteByte(crc8(frame.Bytes()))

	frame.WriteByte(0x02) // verbatim subframe, no wasted bits
	_ = binary.Write(&frame, binary.BigEndian, block)

	sum := crc16(frame.Bytes())
	frame.Write([]byte{byte(sum >> 8), byte(sum)})
	return frame.Bytes()
}

func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// MP3FrameHeader returns a valid MPEG-1 Layer III header (128 kbps,
// 44.1 kHz, no padding) followed by zero bytes up to the 417-byte frame
// length. It is enough for probing, not for decoding.
func MP3FrameHeader() []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	return frame
}
