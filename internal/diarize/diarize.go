// Package diarize segments a possibly multi-speaker clip into per-speaker
// turns and recommends sub-segments for cloning. Diarization is an optional
// capability: the model-backed variant is selected by a startup probe and
// the unavailable variant makes every call recoverable by the caller.
package diarize

import (
	"context"
	"errors"
	"sort"

	"github.com/voicebrew/cloneprep/internal/audio"
	"github.com/voicebrew/cloneprep/internal/feature"
	"github.com/voicebrew/cloneprep/internal/segment"
)

// ErrUnavailable marks a missing model, runtime, or accelerator. Callers
// recover by running the acoustic-only path.
var ErrUnavailable = errors.New("diarization unavailable")

// Turn is a contiguous interval attributed to one speaker.
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 { return t.End - t.Start }

// Result is the read-only output of one diarization call.
type Result struct {
	// Speakers lists labels in order of first appearance.
	Speakers []string
	// Turns is the time-ordered turn sequence.
	Turns []Turn
	// SpeakingTime maps label to total speaking seconds.
	SpeakingTime map[string]float64
}

// Diarizer is the capability-checked collaborator interface.
type Diarizer interface {
	// Diarize segments the clip into at most maxSpeakers speakers.
	Diarize(ctx context.Context, clip *audio.Clip, maxSpeakers int) (*Result, error)
	// Available reports whether the backing model loaded.
	Available() bool
}

// MainSpeaker returns the label with the greatest total speaking time.
// Duration ties go to the label with more distinct turns (many short turns
// indicate natural speech rather than misattributed background audio);
// remaining ties break on label order for determinism.
func MainSpeaker(r *Result) (string, bool) {
	if r == nil || len(r.Speakers) == 0 {
		return "", false
	}
	turnCount := make(map[string]int, len(r.Speakers))
	for _, t := range r.Turns {
		turnCount[t.Speaker]++
	}

	labels := append([]string(nil), r.Speakers...)
	sort.Strings(labels)

	best := labels[0]
	for _, label := range labels[1:] {
		const eps = 1e-9
		switch {
		case r.SpeakingTime[label] > r.SpeakingTime[best]+eps:
			best = label
		case r.SpeakingTime[label] > r.SpeakingTime[best]-eps && turnCount[label] > turnCount[best]:
			best = label
		}
	}
	return best, true
}

// TurnsFor returns the time-ordered turns of one speaker as selector ranges.
func TurnsFor(r *Result, label string) []segment.Range {
	var ranges []segment.Range
	for _, t := range r.Turns {
		if t.Speaker == label {
			ranges = append(ranges, segment.Range{Start: t.Start, End: t.End})
		}
	}
	return ranges
}

// BestSegment delegates to the selector restricted to the speaker's turns.
// When the speaker's total speaking time cannot satisfy minDur the
// selector's fallback returns the longest single turn flagged under-length
// instead of failing.
func BestSegment(r *Result, label string, sel *segment.Selector, frames []feature.Frame, minDur, maxDur float64) (segment.Segment, bool) {
	ranges := TurnsFor(r, label)
	if len(ranges) == 0 {
		return segment.Segment{}, true
	}
	seg, underLength := sel.BestWithin(frames, ranges, minDur, maxDur)
	seg.SpeakerLabel = label
	return seg, underLength
}

// Unavailable is the no-capability Diarizer variant.
type Unavailable struct {
	reason string
}

// Compile-time check that Unavailable implements Diarizer.
var _ Diarizer = (*Unavailable)(nil)

// NewUnavailable creates an Unavailable diarizer recording why the
// capability probe failed.
func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{reason: reason}
}

// Diarize always returns ErrUnavailable.
func (u *Unavailable) Diarize(context.Context, *audio.Clip, int) (*Result, error) {
	if u.reason != "" {
		return nil, errors.Join(ErrUnavailable, errors.New(u.reason))
	}
	return nil, ErrUnavailable
}

// Available reports false.
func (u *Unavailable) Available() bool { return false }
