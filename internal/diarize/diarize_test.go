package diarize

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/voicebrew/cloneprep/internal/audio"
	"github.com/voicebrew/cloneprep/internal/feature"
	"github.com/voicebrew/cloneprep/internal/segment"
)

func twoSpeakerResult() *Result {
	turns := []Turn{
		{Speaker: "SPEAKER_00", Start: 0, End: 4},
		{Speaker: "SPEAKER_01", Start: 4.5, End: 6},
		{Speaker: "SPEAKER_00", Start: 6.5, End: 9},
	}
	return &Result{
		Speakers: []string{"SPEAKER_00", "SPEAKER_01"},
		Turns:    turns,
		SpeakingTime: map[string]float64{
			"SPEAKER_00": 6.5,
			"SPEAKER_01": 1.5,
		},
	}
}

func TestMainSpeaker(t *testing.T) {
	t.Run("longest total speaking time wins", func(t *testing.T) {
		main, ok := MainSpeaker(twoSpeakerResult())
		if !ok {
			t.Fatal("expected a main speaker")
		}
		if main != "SPEAKER_00" {
			t.Errorf("expected SPEAKER_00, got %s", main)
		}
	})

	t.Run("duration tie goes to more turns", func(t *testing.T) {
		r := &Result{
			Speakers: []string{"SPEAKER_00", "SPEAKER_01"},
			Turns: []Turn{
				{Speaker: "SPEAKER_00", Start: 0, End: 4},
				{Speaker: "SPEAKER_01", Start: 5, End: 7},
				{Speaker: "SPEAKER_01", Start: 8, End: 10},
			},
			SpeakingTime: map[string]float64{
				"SPEAKER_00": 4,
				"SPEAKER_01": 4,
			},
		}
		main, ok := MainSpeaker(r)
		if !ok {
			t.Fatal("expected a main speaker")
		}
		if main != "SPEAKER_01" {
			t.Errorf("expected tie to break on turn count, got %s", main)
		}
	})

	t.Run("full tie is deterministic on label order", func(t *testing.T) {
		r := &Result{
			Speakers: []string{"SPEAKER_01", "SPEAKER_00"},
			Turns: []Turn{
				{Speaker: "SPEAKER_01", Start: 0, End: 2},
				{Speaker: "SPEAKER_00", Start: 3, End: 5},
			},
			SpeakingTime: map[string]float64{
				"SPEAKER_00": 2,
				"SPEAKER_01": 2,
			},
		}
		for i := 0; i < 10; i++ {
			main, ok := MainSpeaker(r)
			if !ok || main != "SPEAKER_00" {
				t.Fatalf("expected SPEAKER_00 on every run, got %s", main)
			}
		}
	})

	t.Run("nil and empty results", func(t *testing.T) {
		if _, ok := MainSpeaker(nil); ok {
			t.Error("expected no main speaker for nil result")
		}
		if _, ok := MainSpeaker(&Result{}); ok {
			t.Error("expected no main speaker for empty result")
		}
	})
}

func TestTurnsFor(t *testing.T) {
	r := twoSpeakerResult()

	ranges := TurnsFor(r, "SPEAKER_00")
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(ranges))
	}
	if ranges[0] != (segment.Range{Start: 0, End: 4}) {
		t.Errorf("unexpected first range: %+v", ranges[0])
	}
	if ranges[1] != (segment.Range{Start: 6.5, End: 9}) {
		t.Errorf("unexpected second range: %+v", ranges[1])
	}
	if got := TurnsFor(r, "SPEAKER_99"); got != nil {
		t.Errorf("expected no ranges for unknown speaker, got %+v", got)
	}
}

// gridFrames builds a non-overlapping 0.5 s frame grid with uniform metrics.
func gridFrames(n int) []feature.Frame {
	frames := make([]feature.Frame, n)
	for i := range frames {
		frames[i] = feature.Frame{
			Start:            float64(i) * 0.5,
			End:              float64(i)*0.5 + 0.5,
			VoiceBandRatio:   0.8,
			SpectralFlatness: 0.2,
			RMSEnergy:        0.1,
		}
	}
	return frames
}

func TestBestSegment(t *testing.T) {
	sel := segment.NewSelector(segment.DefaultConfig())
	frames := gridFrames(20)

	t.Run("selection stays inside the speaker's turns", func(t *testing.T) {
		seg, underLength := BestSegment(twoSpeakerResult(), "SPEAKER_00", sel, frames, 3, 7)
		if underLength {
			t.Fatal("expected a full-length selection")
		}
		if seg.SpeakerLabel != "SPEAKER_00" {
			t.Errorf("expected speaker label on segment, got %q", seg.SpeakerLabel)
		}
		inFirst := seg.Start >= -1e-6 && seg.End <= 4+1e-6
		inSecond := seg.Start >= 6.5-1e-6 && seg.End <= 9+1e-6
		if !inFirst && !inSecond {
			t.Errorf("selection [%f, %f] leaves the speaker's turns", seg.Start, seg.End)
		}
	})

	t.Run("short speaker falls back under-length", func(t *testing.T) {
		seg, underLength := BestSegment(twoSpeakerResult(), "SPEAKER_01", sel, frames, 3, 7)
		if !underLength {
			t.Fatal("expected under-length fallback for a 1.5 s speaker")
		}
		if seg.SpeakerLabel != "SPEAKER_01" {
			t.Errorf("expected speaker label on fallback, got %q", seg.SpeakerLabel)
		}
	})

	t.Run("unknown speaker", func(t *testing.T) {
		_, underLength := BestSegment(twoSpeakerResult(), "SPEAKER_99", sel, frames, 3, 7)
		if !underLength {
			t.Error("expected under-length result for unknown speaker")
		}
	})
}

func TestMergeAdjacent(t *testing.T) {
	turns := []Turn{
		{Speaker: "SPEAKER_00", Start: 0, End: 1},
		{Speaker: "SPEAKER_00", Start: 1.2, End: 2}, // 0.2 s gap, merges
		{Speaker: "SPEAKER_01", Start: 2.1, End: 3}, // other speaker, kept
		{Speaker: "SPEAKER_01", Start: 4.0, End: 5}, // 1 s gap, kept
	}
	merged := mergeAdjacent(turns, 0.4)
	if len(merged) != 3 {
		t.Fatalf("expected 3 turns after merge, got %d", len(merged))
	}
	if merged[0].Start != 0 || merged[0].End != 2 {
		t.Errorf("unexpected merged turn: %+v", merged[0])
	}
	if merged[1].Speaker != "SPEAKER_01" || merged[2].Start != 4.0 {
		t.Errorf("unexpected tail turns: %+v", merged[1:])
	}
}

func TestBuildResult(t *testing.T) {
	turns := []Turn{
		{Speaker: "SPEAKER_01", Start: 2, End: 3},
		{Speaker: "SPEAKER_00", Start: 0, End: 1},
		{Speaker: "SPEAKER_01", Start: 5, End: 7},
	}
	r := buildResult(turns)

	if len(r.Speakers) != 2 || r.Speakers[0] != "SPEAKER_01" {
		t.Errorf("expected speakers in first-appearance order, got %v", r.Speakers)
	}
	if r.SpeakingTime["SPEAKER_01"] != 3 || r.SpeakingTime["SPEAKER_00"] != 1 {
		t.Errorf("unexpected speaking time: %v", r.SpeakingTime)
	}
	for i := 1; i < len(r.Turns); i++ {
		if r.Turns[i].Start < r.Turns[i-1].Start {
			t.Fatal("turns not sorted by start time")
		}
	}
}

func TestUnavailable(t *testing.T) {
	u := NewUnavailable("no model path configured")

	if u.Available() {
		t.Error("expected Available to report false")
	}
	_, err := u.Diarize(context.Background(), nil, 4)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// alternatingToneClip renders one-second tone bursts alternating between
// two frequencies, giving the clustering two clearly separable voices.
func alternatingToneClip(t *testing.T, freqA, freqB float64, bursts int) *audio.Clip {
	t.Helper()
	const rate = 16000
	samples := make([]float64, bursts*rate)
	for b := 0; b < bursts; b++ {
		freq := freqA
		if b%2 == 1 {
			freq = freqB
		}
		for i := 0; i < rate; i++ {
			samples[b*rate+i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate)
		}
	}
	c, err := audio.NewClip(samples, rate)
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	return c
}

func TestLabelTurns_Clustering(t *testing.T) {
	clip := alternatingToneClip(t, 200, 3000, 4)
	detected := []speech.Segment{
		{SpeechStartAt: 0, SpeechEndAt: 1},
		{SpeechStartAt: 1, SpeechEndAt: 2},
		{SpeechStartAt: 2, SpeechEndAt: 3},
		{SpeechStartAt: 3, SpeechEndAt: 4},
	}
	s := &Silero{
		extractor: feature.NewExtractor(feature.DefaultConfig()),
		cfg:       SileroConfig{ClusterDistance: 0.35},
	}

	t.Run("distinct voices get distinct labels", func(t *testing.T) {
		turns := s.labelTurns(clip, detected, 2)
		if len(turns) != 4 {
			t.Fatalf("expected 4 turns, got %d", len(turns))
		}
		if turns[0].Speaker == turns[1].Speaker {
			t.Error("expected the alternating voices to separate")
		}
		if turns[0].Speaker != turns[2].Speaker || turns[1].Speaker != turns[3].Speaker {
			t.Error("expected repeated voices to share a label")
		}
	})

	t.Run("speaker cap folds everything together", func(t *testing.T) {
		turns := s.labelTurns(clip, detected, 1)
		for i, turn := range turns {
			if turn.Speaker != "SPEAKER_00" {
				t.Fatalf("turn %d escaped the speaker cap: %s", i, turn.Speaker)
			}
		}
	})

	t.Run("sub-100ms intervals are dropped", func(t *testing.T) {
		tiny := []speech.Segment{{SpeechStartAt: 0, SpeechEndAt: 0.05}}
		if turns := s.labelTurns(clip, tiny, 2); len(turns) != 0 {
			t.Errorf("expected tiny interval to be dropped, got %d turns", len(turns))
		}
	})
}

func TestNewSilero_LoadFailures(t *testing.T) {
	t.Run("empty model path", func(t *testing.T) {
		_, err := NewSilero(SileroConfig{})
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("missing model file", func(t *testing.T) {
		_, err := NewSilero(SileroConfig{ModelPath: "/definitely/not/a/model.onnx"})
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
}
