package diarize

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/streamer45/silero-vad-go/speech"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/floats"

	"github.com/voicebrew/cloneprep/internal/audio"
	"github.com/voicebrew/cloneprep/internal/feature"
)

// modelSampleRate is the only rate the silero segmentation model accepts.
const modelSampleRate = 16000

// SileroConfig configures the model-backed diarizer.
type SileroConfig struct {
	// ModelPath points at the local ONNX segmentation model.
	ModelPath string
	// Threshold is the speech probability threshold (default 0.5).
	Threshold float32
	// MinSilenceMs is the silence needed to close a turn (default 250).
	MinSilenceMs int
	// SpeechPadMs pads detected turns on both sides (default 100).
	SpeechPadMs int
	// MergeGapSec merges adjacent same-speaker turns separated by a gap
	// shorter than this (default 0.4), so brief pauses do not fragment
	// one utterance into many tiny turns.
	MergeGapSec float64
	// InferenceSlots sizes the concurrency gate on the shared model
	// (default 1: one resident model instance).
	InferenceSlots int64
	// ClusterDistance is the embedding distance above which a turn opens
	// a new speaker cluster (default 0.35).
	ClusterDistance float64
}

// Silero diarizes using the silero segmentation model for turn boundaries
// and deterministic spectral-embedding clustering for speaker labels. The
// detector is a process-wide stateful resource; concurrent calls queue on
// the inference gate rather than trash shared model state.
type Silero struct {
	det       *speech.Detector
	gate      *semaphore.Weighted
	extractor *feature.Extractor
	cfg       SileroConfig
}

// Compile-time check that Silero implements Diarizer.
var _ Diarizer = (*Silero)(nil)

// NewSilero loads the model and constructs the diarizer. Every load
// failure (missing path, unreadable file, runtime init) is reported as
// ErrUnavailable so the caller can select the acoustic-only path once at
// startup.
func NewSilero(cfg SileroConfig) (*Silero, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrUnavailable)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model not readable: %v", ErrUnavailable, err)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.MinSilenceMs <= 0 {
		cfg.MinSilenceMs = 250
	}
	if cfg.SpeechPadMs <= 0 {
		cfg.SpeechPadMs = 100
	}
	if cfg.MergeGapSec <= 0 {
		cfg.MergeGapSec = 0.4
	}
	if cfg.InferenceSlots <= 0 {
		cfg.InferenceSlots = 1
	}
	if cfg.ClusterDistance <= 0 {
		cfg.ClusterDistance = 0.35
	}

	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           modelSampleRate,
		Threshold:            cfg.Threshold,
		MinSilenceDurationMs: cfg.MinSilenceMs,
		SpeechPadMs:          cfg.SpeechPadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load model: %v", ErrUnavailable, err)
	}

	return &Silero{
		det:       det,
		gate:      semaphore.NewWeighted(cfg.InferenceSlots),
		extractor: feature.NewExtractor(feature.DefaultConfig()),
		cfg:       cfg,
	}, nil
}

// Available reports true: construction already proved the model loads.
func (s *Silero) Available() bool { return true }

// Close releases the model runtime.
func (s *Silero) Close() error { return s.det.Destroy() }

// Diarize runs turn segmentation and speaker labeling on the clip.
// Inference on the shared detector is serialized through the gate; Acquire
// honors ctx so cancelled requests never hold an orphaned slot.
func (s *Silero) Diarize(ctx context.Context, clip *audio.Clip, maxSpeakers int) (*Result, error) {
	if maxSpeakers < 1 {
		maxSpeakers = 1
	}

	work := clip
	if clip.SampleRate() != modelSampleRate {
		resampled, err := clip.Resample(modelSampleRate)
		if err != nil {
			return nil, fmt.Errorf("resample for diarization: %w", err)
		}
		work = resampled
	}

	pcm := make([]float32, work.Len())
	for i, v := range work.Samples() {
		pcm[i] = float32(v)
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire inference slot: %w", err)
	}
	defer s.gate.Release(1)

	if err := s.det.Reset(); err != nil {
		return nil, fmt.Errorf("reset detector: %w", err)
	}
	detected, err := s.det.Detect(pcm)
	if err != nil {
		return nil, fmt.Errorf("detect speech turns: %w", err)
	}

	turns := s.labelTurns(work, detected, maxSpeakers)
	turns = mergeAdjacent(turns, s.cfg.MergeGapSec)

	return buildResult(turns), nil
}

// labelTurns assigns speaker labels to detected speech intervals by greedy
// agglomerative clustering of per-turn spectral embeddings. Iteration order
// is time order, so labeling is deterministic.
func (s *Silero) labelTurns(clip *audio.Clip, detected []speech.Segment, maxSpeakers int) []Turn {
	type cluster struct {
		centroid []float64
		count    int
	}
	var clusters []cluster
	var turns []Turn

	duration := clip.Duration()
	for _, d := range detected {
		start := d.SpeechStartAt
		end := d.SpeechEndAt
		if end <= 0 || end > duration {
			end = duration
		}
		if start < 0 {
			start = 0
		}
		if end-start < 0.1 {
			continue
		}

		emb := s.turnEmbedding(clip, start, end)

		assigned := -1
		bestDist := math.Inf(1)
		for i := range clusters {
			if d := floats.Distance(emb, clusters[i].centroid, 2); d < bestDist {
				bestDist = d
				assigned = i
			}
		}
		if assigned < 0 || (bestDist > s.cfg.ClusterDistance && len(clusters) < maxSpeakers) {
			clusters = append(clusters, cluster{centroid: append([]float64(nil), emb...), count: 1})
			assigned = len(clusters) - 1
		} else {
			c := &clusters[assigned]
			c.count++
			// Running mean keeps the centroid stable as turns accumulate.
			for j := range c.centroid {
				c.centroid[j] += (emb[j] - c.centroid[j]) / float64(c.count)
			}
		}

		turns = append(turns, Turn{
			Speaker: fmt.Sprintf("SPEAKER_%02d", assigned),
			Start:   start,
			End:     end,
		})
	}
	return turns
}

// turnEmbedding summarizes one turn as a normalized descriptor vector.
// Components are scaled to comparable ranges so no single feature
// dominates the clustering distance.
func (s *Silero) turnEmbedding(clip *audio.Clip, start, end float64) []float64 {
	emb := make([]float64, 5)
	sliced, err := clip.Slice(start, end)
	if err != nil {
		return emb
	}
	frames, err := s.extractor.Extract(sliced)
	if err != nil || len(frames) == 0 {
		return emb
	}

	var centroid, voice, zcr, flat, rms float64
	for _, f := range frames {
		centroid += f.SpectralCentroid
		voice += f.VoiceBandRatio
		zcr += f.ZeroCrossingRate
		flat += f.SpectralFlatness
		rms += f.RMSEnergy
	}
	n := float64(len(frames))
	emb[0] = clampUnit(centroid / n / 3400)
	emb[1] = clampUnit(voice / n)
	emb[2] = clampUnit(zcr / n * 5)
	emb[3] = clampUnit(flat / n)
	emb[4] = clampUnit(rms / n * 10)
	return emb
}

// mergeAdjacent joins consecutive turns of the same speaker when the gap
// between them is below maxGap.
func mergeAdjacent(turns []Turn, maxGap float64) []Turn {
	if len(turns) <= 1 {
		return turns
	}
	merged := []Turn{turns[0]}
	for _, t := range turns[1:] {
		prev := &merged[len(merged)-1]
		if t.Speaker == prev.Speaker && t.Start-prev.End <= maxGap {
			if t.End > prev.End {
				prev.End = t.End
			}
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

func buildResult(turns []Turn) *Result {
	speaking := make(map[string]float64)
	var speakers []string
	for _, t := range turns {
		if _, seen := speaking[t.Speaker]; !seen {
			speakers = append(speakers, t.Speaker)
		}
		speaking[t.Speaker] += t.Duration()
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	return &Result{
		Speakers:     speakers,
		Turns:        turns,
		SpeakingTime: speaking,
	}
}

func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
