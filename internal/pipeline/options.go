// Package pipeline composes decoding, feature extraction, segment
// selection, diarization, and denoising into the single
// PreprocessForCloning entry point.
package pipeline

// Options carries the per-call hints accepted across the engine boundary.
type Options struct {
	// TargetDuration replaces the configured maximum segment length for
	// this call (seconds, 0 = use configured bounds). Capped at the
	// absolute maximum.
	TargetDuration float64 `json:"target_duration_seconds" validate:"gte=0,lte=60"`
	// Denoise requests spectral noise reduction on the selected segment.
	Denoise bool `json:"denoise"`
	// DenoiseStrength scales the denoising filter, 0 (bypass) to 1.
	DenoiseStrength float64 `json:"denoise_strength" validate:"gte=0,lte=1"`
	// MaxSpeakers bounds diarization clustering (0 = engine default).
	MaxSpeakers int `json:"max_speakers" validate:"gte=0,lte=16"`
}

// DefaultOptions mirrors the upstream workflow defaults: denoise on at
// moderate strength, automatic duration, diarizer decides speaker count.
func DefaultOptions() Options {
	return Options{
		Denoise:         true,
		DenoiseStrength: 0.4,
	}
}

// DegradedFlags records every graceful degradation that happened during a
// call. Each flag is additive: a set flag means an optional enhancement was
// unavailable, never that the result is unusable.
type DegradedFlags struct {
	// DenoiseSkipped is set when denoising was requested but the
	// subprocess failed or timed out.
	DenoiseSkipped bool `json:"denoise_skipped"`
	// DiarizationSkipped is set when the model was unavailable or
	// diarization failed and the acoustic-only path was taken.
	DiarizationSkipped bool `json:"diarization_skipped"`
	// UnderLength is set when the best available segment is shorter than
	// the requested minimum.
	UnderLength bool `json:"under_length"`
}

// TimeRange is a [start, end] interval in seconds on the original clip
// timeline.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the only entity exposed across the pipeline boundary.
type Result struct {
	// AudioBytes is the processed clip as 16-bit mono WAV
	// (base64-encoded in JSON).
	AudioBytes []byte `json:"audio_bytes"`
	// DurationSeconds is the processed clip length.
	DurationSeconds float64 `json:"duration_seconds"`
	// QualityScore is the normalized [0, 1] figure of merit of the
	// selected segment.
	QualityScore float64 `json:"quality_score"`
	// SelectedRange locates the segment on the original clip timeline.
	SelectedRange TimeRange `json:"selected_range"`
	// SpeakerLabel identifies the cloned speaker when diarization ran.
	SpeakerLabel string `json:"speaker_label,omitempty"`
	// Degraded reports which optional enhancements were skipped.
	Degraded DegradedFlags `json:"degraded_flags"`
}
