// Package audio provides the canonical in-memory clip representation and
// WAV codec helpers for the preprocessing engine. A Clip is always mono;
// decoding downmixes multi-channel input. Clips are value objects: every
// transformation returns a new Clip and never mutates the receiver.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidAudio is returned for unreadable, empty, or unusably short or
// silent input. It is the only fatal error class of the engine.
var ErrInvalidAudio = errors.New("invalid audio input")

// Clip holds decoded mono PCM at a fixed sample rate.
type Clip struct {
	samples    []float64
	sampleRate int
}

// NewClip wraps mono samples in a Clip. The slice is owned by the clip
// afterwards and must not be modified by the caller.
func NewClip(samples []float64, sampleRate int) (*Clip, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: clip has no samples", ErrInvalidAudio)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, sampleRate)
	}
	return &Clip{samples: samples, sampleRate: sampleRate}, nil
}

// Samples returns the underlying PCM. Callers must treat it as read-only.
func (c *Clip) Samples() []float64 { return c.samples }

// SampleRate returns the clip's sample rate in Hz.
func (c *Clip) SampleRate() int { return c.sampleRate }

// Len returns the number of samples.
func (c *Clip) Len() int { return len(c.samples) }

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	return float64(len(c.samples)) / float64(c.sampleRate)
}

// Slice returns a new clip covering [start, end) seconds of the receiver.
// Bounds are clamped to the clip; an empty result is an error.
func (c *Clip) Slice(start, end float64) (*Clip, error) {
	if end <= start {
		return nil, fmt.Errorf("%w: slice [%0.3f, %0.3f)", ErrInvalidAudio, start, end)
	}
	lo := int(math.Round(start * float64(c.sampleRate)))
	hi := int(math.Round(end * float64(c.sampleRate)))
	if lo < 0 {
		lo = 0
	}
	if hi > len(c.samples) {
		hi = len(c.samples)
	}
	if hi <= lo {
		return nil, fmt.Errorf("%w: slice [%0.3f, %0.3f) outside clip", ErrInvalidAudio, start, end)
	}
	out := make([]float64, hi-lo)
	copy(out, c.samples[lo:hi])
	return &Clip{samples: out, sampleRate: c.sampleRate}, nil
}

// Resample returns a new clip converted to the given rate using linear
// interpolation. Good enough for analysis-rate conversion of speech; the
// engine is not in the mastering business.
func (c *Clip) Resample(rate int) (*Clip, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, rate)
	}
	if rate == c.sampleRate {
		out := make([]float64, len(c.samples))
		copy(out, c.samples)
		return &Clip{samples: out, sampleRate: rate}, nil
	}
	ratio := float64(c.sampleRate) / float64(rate)
	n := int(float64(len(c.samples)) / ratio)
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(c.samples)-1 {
			out[i] = c.samples[len(c.samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = c.samples[j]*(1-frac) + c.samples[j+1]*frac
	}
	return &Clip{samples: out, sampleRate: rate}, nil
}

// NormalizePeak returns a new clip with its peak scaled to targetDB dBFS.
// Near-silent clips are returned unchanged to avoid amplifying noise.
func (c *Clip) NormalizePeak(targetDB float64) *Clip {
	peak := 0.0
	for _, s := range c.samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	out := make([]float64, len(c.samples))
	if peak < 1e-6 {
		copy(out, c.samples)
		return &Clip{samples: out, sampleRate: c.sampleRate}
	}
	gain := math.Pow(10, targetDB/20) / peak
	for i, s := range c.samples {
		out[i] = s * gain
	}
	return &Clip{samples: out, sampleRate: c.sampleRate}
}
