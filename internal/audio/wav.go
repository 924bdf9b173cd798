package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV parses a WAV container into a mono Clip. Multi-channel input is
// downmixed by averaging channels. Sample width is taken from the source
// (8/16/24/32 bit PCM).
func DecodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrInvalidAudio)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read PCM: %v", ErrInvalidAudio, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: WAV contains no samples", ErrInvalidAudio)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	scale := sampleScale(bitDepth)

	// 8-bit WAV PCM is unsigned with a 128 midpoint; recenter it before
	// scaling or the decoded signal carries a +1.0 DC offset.
	var offset float64
	if bitDepth == 8 {
		offset = 128
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) - offset
		}
		samples[i] = sum / float64(channels) / scale
	}

	return NewClip(samples, buf.Format.SampleRate)
}

// EncodeWAV renders the clip as a 16-bit mono PCM WAV file.
func EncodeWAV(c *Clip) ([]byte, error) {
	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, c.SampleRate(), 16, 1, 1)

	data := make([]int, c.Len())
	for i, s := range c.Samples() {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767.0)
	}

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: c.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close WAV encoder: %w", err)
	}
	return ws.Bytes(), nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header. Used to route
// input between the native codec and the ffmpeg transcoder.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func sampleScale(bitDepth int) float64 {
	switch bitDepth {
	case 8:
		return 128
	case 24:
		return float64(1<<23 - 1)
	case 32:
		return float64(math.MaxInt32)
	default:
		return float64(math.MaxInt16)
	}
}

// seekBuffer is an in-memory io.WriteSeeker. The wav encoder needs to seek
// back to patch chunk sizes on Close, which bytes.Buffer cannot do.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.buf) {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.buf) + int(offset)
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}
	b.pos = next
	return int64(next), nil
}

func (b *seekBuffer) Bytes() []byte { return b.buf }
