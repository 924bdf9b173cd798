// Package feature turns a decoded clip into a dense, time-ordered sequence
// of frame-level acoustic descriptors. The extractor only emits numbers;
// speech/music/noise policy lives in the segment scorer.
package feature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/voicebrew/cloneprep/internal/audio"
)

// Frame holds the descriptors of one analysis window.
type Frame struct {
	// Start and End are the window bounds in seconds on the clip timeline.
	Start float64
	End   float64
	// RMSEnergy is the root-mean-square amplitude of the raw window.
	RMSEnergy float64
	// ZeroCrossingRate is the fraction of adjacent sample pairs that change sign.
	ZeroCrossingRate float64
	// SpectralCentroid is the magnitude-weighted mean frequency in Hz.
	SpectralCentroid float64
	// VoiceBandRatio is the energy fraction inside the configured speech band.
	VoiceBandRatio float64
	// SpectralFlatness is the Wiener entropy of the magnitude spectrum;
	// high for noise-like content, low for tonal content.
	SpectralFlatness float64
}

// Config holds the extractor tunables.
type Config struct {
	// WindowSec and HopSec size the analysis windows (overlapping when
	// HopSec < WindowSec).
	WindowSec float64
	HopSec    float64
	// VoiceBandLowHz and VoiceBandHighHz bound the speech band used for
	// VoiceBandRatio.
	VoiceBandLowHz  float64
	VoiceBandHighHz float64
	// SilenceFloor is the RMS level below which a frame counts as silent.
	// A clip silent in every frame is rejected as invalid.
	SilenceFloor float64
}

// DefaultConfig returns the standard 25 ms / 10 ms analysis setup over the
// 85-3400 Hz speech band.
func DefaultConfig() Config {
	return Config{
		WindowSec:       0.025,
		HopSec:          0.010,
		VoiceBandLowHz:  85,
		VoiceBandHighHz: 3400,
		SilenceFloor:    1e-3,
	}
}

// Extractor computes Frames from clips. It is stateless and safe for
// concurrent use; each Extract call allocates its own FFT scratch.
type Extractor struct {
	cfg Config
}

// NewExtractor creates an Extractor, falling back to defaults for
// non-positive window or hop values.
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.WindowSec <= 0 {
		cfg.WindowSec = def.WindowSec
	}
	if cfg.HopSec <= 0 {
		cfg.HopSec = def.HopSec
	}
	if cfg.VoiceBandHighHz <= cfg.VoiceBandLowHz {
		cfg.VoiceBandLowHz = def.VoiceBandLowHz
		cfg.VoiceBandHighHz = def.VoiceBandHighHz
	}
	if cfg.SilenceFloor <= 0 {
		cfg.SilenceFloor = def.SilenceFloor
	}
	return &Extractor{cfg: cfg}
}

// Extract computes the full frame sequence for the clip. It fails with
// audio.ErrInvalidAudio when the clip is shorter than one analysis window or
// silent throughout. Output is deterministic for identical input.
func (e *Extractor) Extract(c *audio.Clip) ([]Frame, error) {
	rate := float64(c.SampleRate())
	win := int(math.Round(e.cfg.WindowSec * rate))
	hop := int(math.Round(e.cfg.HopSec * rate))
	if win < 2 {
		win = 2
	}
	if hop < 1 {
		hop = 1
	}

	samples := c.Samples()
	if len(samples) < win {
		return nil, fmt.Errorf("%w: clip shorter than one %0.0f ms analysis window",
			audio.ErrInvalidAudio, e.cfg.WindowSec*1000)
	}

	fft := fourier.NewFFT(win)
	windowed := make([]float64, win)
	coeffs := make([]complex128, win/2+1)
	mags := make([]float64, win/2+1)

	frames := make([]Frame, 0, 1+(len(samples)-win)/hop)
	audible := false

	for off := 0; off+win <= len(samples); off += hop {
		raw := samples[off : off+win]

		rms := rmsEnergy(raw)
		if rms >= e.cfg.SilenceFloor {
			audible = true
		}

		copy(windowed, raw)
		window.Hann(windowed)
		fft.Coefficients(coeffs, windowed)
		for i, co := range coeffs {
			mags[i] = math.Hypot(real(co), imag(co))
		}

		frames = append(frames, Frame{
			Start:            float64(off) / rate,
			End:              float64(off+win) / rate,
			RMSEnergy:        rms,
			ZeroCrossingRate: zeroCrossingRate(raw),
			SpectralCentroid: spectralCentroid(fft, mags, rate),
			VoiceBandRatio:   e.voiceBandRatio(fft, mags, rate),
			SpectralFlatness: spectralFlatness(mags),
		})
	}

	if !audible {
		return nil, fmt.Errorf("%w: clip is silent throughout", audio.ErrInvalidAudio)
	}
	return frames, nil
}

func rmsEnergy(frame []float64) float64 {
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func zeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	prev := sign(frame[0])
	for _, s := range frame[1:] {
		cur := sign(s)
		if cur != prev {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(len(frame))
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}

func spectralCentroid(fft *fourier.FFT, mags []float64, rate float64) float64 {
	var weighted, total float64
	for i, m := range mags {
		freq := fft.Freq(i) * rate
		weighted += freq * m
		total += m
	}
	if total < 1e-10 {
		return 0
	}
	return weighted / total
}

func (e *Extractor) voiceBandRatio(fft *fourier.FFT, mags []float64, rate float64) float64 {
	var voice, total float64
	for i, m := range mags {
		energy := m * m
		total += energy
		freq := fft.Freq(i) * rate
		if freq >= e.cfg.VoiceBandLowHz && freq <= e.cfg.VoiceBandHighHz {
			voice += energy
		}
	}
	if total < 1e-10 {
		return 0
	}
	return voice / total
}

func spectralFlatness(mags []float64) float64 {
	var logSum, sum float64
	n := 0
	for _, m := range mags {
		if m < 1e-10 {
			continue
		}
		logSum += math.Log(m)
		sum += m
		n++
	}
	if n == 0 || sum < 1e-10 {
		return 1.0
	}
	geometric := math.Exp(logSum / float64(n))
	arithmetic := sum / float64(n)
	return geometric / arithmetic
}
