// Package segment finds the sub-range of a clip that best approximates
// clean single-speaker speech, scoring sliding windows over the feature
// frame sequence.
package segment

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/voicebrew/cloneprep/internal/feature"
)

// Segment is a candidate or selected sub-range of a clip.
type Segment struct {
	// Start and End are seconds on the original clip timeline.
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// Score is the normalized quality figure of merit in [0, 1].
	Score float64 `json:"score"`
	// SpeakerLabel is set when selection was restricted to one speaker.
	SpeakerLabel string `json:"speaker_label,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Range is a time interval candidates may not cross, e.g. one speaker turn.
type Range struct {
	Start float64
	End   float64
}

// Weights are the named, overridable components of the window score.
// They are normalized by their sum at scoring time.
type Weights struct {
	// VoiceBand weighs the mean energy fraction inside the speech band.
	VoiceBand float64
	// Tonality weighs inverse mean spectral flatness (speech is tonal,
	// music and broadband noise are flat).
	Tonality float64
	// Stability weighs low RMS variance across the window, penalizing
	// clipped or bursty passages.
	Stability float64
	// EdgeSilence weighs near-silent window edges, preferring boundaries
	// that do not cut mid-word.
	EdgeSilence float64
}

// DefaultWeights returns the tuning validated against the selection
// scenarios in the test suite.
func DefaultWeights() Weights {
	return Weights{
		VoiceBand:   0.35,
		Tonality:    0.25,
		Stability:   0.20,
		EdgeSilence: 0.20,
	}
}

func (w Weights) sum() float64 {
	return w.VoiceBand + w.Tonality + w.Stability + w.EdgeSilence
}

// Config holds selector tunables beyond the score weights.
type Config struct {
	Weights Weights
	// LengthStepSec is the increment between candidate window lengths.
	LengthStepSec float64
	// EdgeQuietRatio is the fraction of the window's RMS peak below which
	// an edge counts as quiet.
	EdgeQuietRatio float64
	// UnderLengthCap caps the score of selections shorter than the
	// requested minimum.
	UnderLengthCap float64
}

// DefaultConfig returns the standard selector setup.
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		LengthStepSec:  0.5,
		EdgeQuietRatio: 0.35,
		UnderLengthCap: 0.5,
	}
}

// Selector scores sliding windows and picks the best one. Stateless and
// safe for concurrent use.
type Selector struct {
	cfg Config
}

// NewSelector creates a Selector, defaulting any unset tunables.
func NewSelector(cfg Config) *Selector {
	def := DefaultConfig()
	if cfg.Weights.sum() <= 0 {
		cfg.Weights = def.Weights
	}
	if cfg.LengthStepSec <= 0 {
		cfg.LengthStepSec = def.LengthStepSec
	}
	if cfg.EdgeQuietRatio <= 0 || cfg.EdgeQuietRatio >= 1 {
		cfg.EdgeQuietRatio = def.EdgeQuietRatio
	}
	if cfg.UnderLengthCap <= 0 {
		cfg.UnderLengthCap = def.UnderLengthCap
	}
	return &Selector{cfg: cfg}
}

// Best finds the highest-scoring window of length within [minDur, maxDur]
// anywhere in the frame sequence. When the clip is shorter than minDur it
// returns the whole clip with a capped score and underLength=true.
func (s *Selector) Best(frames []feature.Frame, minDur, maxDur float64) (Segment, bool) {
	if len(frames) == 0 {
		return Segment{}, true
	}
	full := Range{Start: frames[0].Start, End: frames[len(frames)-1].End}
	return s.BestWithin(frames, []Range{full}, minDur, maxDur)
}

// BestWithin is Best restricted to the given ranges: no candidate window may
// straddle a range boundary. Ranges typically come from one speaker's turns.
// When no range can hold a window of minDur, the longest range is returned
// whole, score-capped and flagged under-length.
func (s *Selector) BestWithin(frames []feature.Frame, ranges []Range, minDur, maxDur float64) (Segment, bool) {
	if len(frames) == 0 || len(ranges) == 0 {
		return Segment{}, true
	}
	if maxDur < minDur {
		maxDur = minDur
	}

	m := newMetrics(frames)

	best := Segment{Score: -1}
	found := false

	for length := minDur; length <= maxDur+1e-9; length += s.cfg.LengthStepSec {
		for _, r := range ranges {
			lo, hi := frameSpan(frames, r)
			if hi <= lo {
				continue
			}
			count := windowFrameCount(frames, lo, hi, length)
			if count <= 0 {
				continue
			}
			for i := lo; i+count <= hi; i++ {
				score := s.scoreWindow(m, i, i+count)
				if score > best.Score+1e-9 {
					best = Segment{
						Start: frames[i].Start,
						End:   frames[i+count-1].End,
						Score: score,
					}
					found = true
				}
			}
		}
	}

	if found {
		return best, false
	}

	// Nothing long enough: fall back to the longest range, capped.
	longest := ranges[0]
	for _, r := range ranges[1:] {
		if r.End-r.Start > longest.End-longest.Start {
			longest = r
		}
	}
	lo, hi := frameSpan(frames, longest)
	if hi <= lo {
		lo, hi = 0, len(frames)
	}
	score := math.Min(s.scoreWindow(m, lo, hi), s.cfg.UnderLengthCap)
	return Segment{
		Start: frames[lo].Start,
		End:   frames[hi-1].End,
		Score: score,
	}, true
}

// metrics holds per-frame descriptor columns so window aggregation can
// slice without re-walking Frame structs.
type metrics struct {
	voice []float64
	flat  []float64
	rms   []float64
}

func newMetrics(frames []feature.Frame) *metrics {
	m := &metrics{
		voice: make([]float64, len(frames)),
		flat:  make([]float64, len(frames)),
		rms:   make([]float64, len(frames)),
	}
	for i, f := range frames {
		m.voice[i] = f.VoiceBandRatio
		m.flat[i] = f.SpectralFlatness
		m.rms[i] = f.RMSEnergy
	}
	return m
}

// scoreWindow aggregates frames [lo, hi) into a single [0, 1] score.
func (s *Selector) scoreWindow(m *metrics, lo, hi int) float64 {
	if hi <= lo {
		return 0
	}
	w := s.cfg.Weights

	voiceMean := stat.Mean(m.voice[lo:hi], nil)
	flatMean := stat.Mean(m.flat[lo:hi], nil)

	score := w.VoiceBand*clamp01(voiceMean) +
		w.Tonality*clamp01(1-flatMean) +
		w.Stability*s.stability(m.rms[lo:hi]) +
		w.EdgeSilence*s.edgeSilence(m.rms[lo:hi])

	return clamp01(score / w.sum())
}

// stability is 1 minus the coefficient of variation of RMS energy, clamped.
func (s *Selector) stability(rms []float64) float64 {
	mean := stat.Mean(rms, nil)
	if mean < 1e-9 {
		return 0
	}
	sd := stat.StdDev(rms, nil)
	return clamp01(1 - sd/mean)
}

// edgeSilence scores how quiet the window edges are relative to its RMS
// peak. Quiet edges mean the boundary landed between words.
func (s *Selector) edgeSilence(rms []float64) float64 {
	peak := 0.0
	for _, v := range rms {
		if v > peak {
			peak = v
		}
	}
	if peak < 1e-9 {
		return 0
	}
	n := len(rms) / 10
	if n < 1 {
		n = 1
	}
	threshold := s.cfg.EdgeQuietRatio * peak
	left := stat.Mean(rms[:n], nil)
	right := stat.Mean(rms[len(rms)-n:], nil)
	return (edgeQuietness(left, threshold) + edgeQuietness(right, threshold)) / 2
}

func edgeQuietness(edge, threshold float64) float64 {
	if edge <= threshold {
		return 1
	}
	return clamp01(threshold / edge)
}

// frameSpan returns the index range [lo, hi) of frames lying entirely
// inside r.
func frameSpan(frames []feature.Frame, r Range) (int, int) {
	const eps = 1e-6
	lo := len(frames)
	hi := 0
	for i, f := range frames {
		if f.Start >= r.Start-eps && f.End <= r.End+eps {
			if i < lo {
				lo = i
			}
			hi = i + 1
		}
	}
	if hi <= lo {
		return 0, 0
	}
	return lo, hi
}

// windowFrameCount returns how many consecutive frames cover a window of
// the given length, or 0 when the span [lo, hi) cannot hold one. The count
// is floored so the covered span never exceeds length; duration bounds are
// hard limits, not targets.
func windowFrameCount(frames []feature.Frame, lo, hi int, length float64) int {
	if hi-lo < 1 {
		return 0
	}
	winDur := frames[lo].End - frames[lo].Start
	hop := winDur
	if hi-lo > 1 {
		hop = frames[lo+1].Start - frames[lo].Start
	}
	if hop <= 0 {
		return 0
	}
	count := int(math.Floor((length-winDur)/hop+1e-9)) + 1
	if count < 1 {
		count = 1
	}
	if count > hi-lo {
		return 0
	}
	// Reject when the span is shorter than the requested length.
	if frames[lo+count-1].End-frames[lo].Start < length-hop {
		return 0
	}
	return count
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
