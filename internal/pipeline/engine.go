package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/voicebrew/cloneprep/internal/audio"
	"github.com/voicebrew/cloneprep/internal/diarize"
	"github.com/voicebrew/cloneprep/internal/feature"
	"github.com/voicebrew/cloneprep/internal/segment"
)

// ErrInvalidOptions is returned when per-call hints fail validation.
var ErrInvalidOptions = errors.New("invalid preprocessing options")

// Transcoder decodes compressed containers to canonical WAV bytes.
type Transcoder interface {
	Available() bool
	Transcode(ctx context.Context, in []byte) ([]byte, error)
}

// Denoiser reduces noise on WAV bytes, reporting whether it ran. It never
// fails: fallbacks are its responsibility, flagging them is ours.
type Denoiser interface {
	Reduce(ctx context.Context, wavBytes []byte, strength float64) ([]byte, bool)
}

// Settings are the process-wide engine tunables.
type Settings struct {
	// SampleRate is the canonical analysis rate.
	SampleRate int
	// MinDuration and MaxDuration bound selected segments (seconds).
	MinDuration float64
	MaxDuration float64
	// AbsoluteMax caps caller-requested target durations.
	AbsoluteMax float64
	// NormalizeTargetDB is the output peak level in dBFS.
	NormalizeTargetDB float64
	// DefaultMaxSpeakers is used when the caller passes 0.
	DefaultMaxSpeakers int
}

// DefaultSettings returns the standard 16 kHz, 3-7 s configuration.
func DefaultSettings() Settings {
	return Settings{
		SampleRate:         16000,
		MinDuration:        3.0,
		MaxDuration:        7.0,
		AbsoluteMax:        10.0,
		NormalizeTargetDB:  -3.0,
		DefaultMaxSpeakers: 4,
	}
}

// Engine is the audio preprocessing pipeline. All collaborators are
// injected; the engine itself holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	transcoder Transcoder
	extractor  *feature.Extractor
	selector   *segment.Selector
	reducer    Denoiser
	diarizer   diarize.Diarizer
	validate   *validator.Validate
	logger     *slog.Logger
	settings   Settings
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithSettings overrides the default engine settings.
func WithSettings(s Settings) Option {
	return func(e *Engine) {
		def := DefaultSettings()
		if s.SampleRate <= 0 {
			s.SampleRate = def.SampleRate
		}
		if s.MinDuration <= 0 {
			s.MinDuration = def.MinDuration
		}
		if s.MaxDuration < s.MinDuration {
			s.MaxDuration = def.MaxDuration
		}
		if s.AbsoluteMax < s.MaxDuration {
			s.AbsoluteMax = def.AbsoluteMax
		}
		if s.NormalizeTargetDB == 0 {
			s.NormalizeTargetDB = def.NormalizeTargetDB
		}
		if s.DefaultMaxSpeakers <= 0 {
			s.DefaultMaxSpeakers = def.DefaultMaxSpeakers
		}
		e.settings = s
	}
}

// NewEngine wires the pipeline from its collaborators.
func NewEngine(
	transcoder Transcoder,
	extractor *feature.Extractor,
	selector *segment.Selector,
	reducer Denoiser,
	diarizer diarize.Diarizer,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		transcoder: transcoder,
		extractor:  extractor,
		selector:   selector,
		reducer:    reducer,
		diarizer:   diarizer,
		validate:   validator.New(),
		logger:     logger,
		settings:   DefaultSettings(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PreprocessForCloning prepares a clean single-speaker reference segment
// from arbitrary input audio. Only invalid input aborts the call; every
// optional stage degrades into the result's flags instead of failing.
func (e *Engine) PreprocessForCloning(ctx context.Context, audioBytes []byte, opts Options) (*Result, error) {
	if err := e.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	clip, err := e.decode(ctx, audioBytes)
	if err != nil {
		return nil, err
	}

	frames, err := e.extractor.Extract(clip)
	if err != nil {
		return nil, err
	}

	minDur, maxDur := e.durationBounds(opts)
	var flags DegradedFlags

	selected, underLength := e.selectSegment(ctx, clip, frames, opts, minDur, maxDur, &flags)
	if underLength {
		flags.UnderLength = true
	}
	// The under-length fallback selects everything the frame grid covers;
	// report it as the full input range.
	if underLength && selected.SpeakerLabel == "" {
		selected.Start = 0
		selected.End = clip.Duration()
	}

	processed, err := clip.Slice(selected.Start, selected.End)
	if err != nil {
		return nil, err
	}

	if opts.Denoise {
		processed = e.denoise(ctx, processed, opts.DenoiseStrength, &flags)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	processed = processed.NormalizePeak(e.settings.NormalizeTargetDB)
	encoded, err := audio.EncodeWAV(processed)
	if err != nil {
		return nil, err
	}

	e.logger.Info("preprocessing complete",
		slog.Float64("input_duration", clip.Duration()),
		slog.Float64("selected_start", selected.Start),
		slog.Float64("selected_end", selected.End),
		slog.Float64("quality_score", selected.Score),
		slog.String("speaker", selected.SpeakerLabel),
		slog.Bool("denoise_skipped", flags.DenoiseSkipped),
		slog.Bool("diarization_skipped", flags.DiarizationSkipped),
		slog.Bool("under_length", flags.UnderLength),
	)

	return &Result{
		AudioBytes:      encoded,
		DurationSeconds: processed.Duration(),
		QualityScore:    selected.Score,
		SelectedRange:   TimeRange{Start: selected.Start, End: selected.End},
		SpeakerLabel:    selected.SpeakerLabel,
		Degraded:        flags,
	}, nil
}

// decode normalizes caller bytes into a canonical mono clip at the
// analysis rate. WAV is decoded natively; anything else goes through the
// ffmpeg transcoder.
func (e *Engine) decode(ctx context.Context, data []byte) (*audio.Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", audio.ErrInvalidAudio)
	}

	raw := data
	if !audio.IsWAV(data) {
		if e.transcoder == nil || !e.transcoder.Available() {
			return nil, fmt.Errorf("%w: compressed input but no decoder available", audio.ErrInvalidAudio)
		}
		decoded, err := e.transcoder.Transcode(ctx, data)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}

	clip, err := audio.DecodeWAV(raw)
	if err != nil {
		return nil, err
	}
	return clip.Resample(e.settings.SampleRate)
}

// durationBounds applies the caller's target duration to the configured
// policy window for this call only.
func (e *Engine) durationBounds(opts Options) (float64, float64) {
	minDur := e.settings.MinDuration
	maxDur := e.settings.MaxDuration
	if opts.TargetDuration > 0 {
		maxDur = math.Min(opts.TargetDuration, e.settings.AbsoluteMax)
		if maxDur < minDur {
			minDur = maxDur
		}
	}
	return minDur, maxDur
}

// selectSegment consults the diarizer to narrow the search space and runs
// the selector. Diarization failure of any kind selects the acoustic-only
// path; it never aborts the call.
func (e *Engine) selectSegment(
	ctx context.Context,
	clip *audio.Clip,
	frames []feature.Frame,
	opts Options,
	minDur, maxDur float64,
	flags *DegradedFlags,
) (segment.Segment, bool) {
	maxSpeakers := opts.MaxSpeakers
	if maxSpeakers <= 0 {
		maxSpeakers = e.settings.DefaultMaxSpeakers
	}

	res, err := e.diarizer.Diarize(ctx, clip, maxSpeakers)
	if err != nil {
		flags.DiarizationSkipped = true
		level := slog.LevelWarn
		if errors.Is(err, diarize.ErrUnavailable) {
			level = slog.LevelDebug
		}
		e.logger.Log(ctx, level, "diarization skipped, using acoustic-only selection",
			slog.String("error", err.Error()),
		)
		return e.selector.Best(frames, minDur, maxDur)
	}

	main, ok := diarize.MainSpeaker(res)
	if !ok {
		flags.DiarizationSkipped = true
		return e.selector.Best(frames, minDur, maxDur)
	}
	return diarize.BestSegment(res, main, e.selector, frames, minDur, maxDur)
}

// denoise runs the reducer on the extracted segment and re-decodes its
// output. A reducer fallback or an implausible output keeps the original
// segment and records the degradation.
func (e *Engine) denoise(ctx context.Context, clip *audio.Clip, strength float64, flags *DegradedFlags) *audio.Clip {
	if strength <= 0 {
		// Documented bypass, not a degradation.
		return clip
	}

	encoded, err := audio.EncodeWAV(clip)
	if err != nil {
		flags.DenoiseSkipped = true
		return clip
	}

	out, reduced := e.reducer.Reduce(ctx, encoded, strength)
	if !reduced {
		flags.DenoiseSkipped = true
		return clip
	}

	denoised, err := audio.DecodeWAV(out)
	if err != nil {
		flags.DenoiseSkipped = true
		e.logger.Warn("denoised output unreadable, keeping original segment",
			slog.String("error", err.Error()),
		)
		return clip
	}
	// The filter must preserve duration and rate; tolerate sub-frame drift.
	if denoised.SampleRate() != clip.SampleRate() ||
		math.Abs(denoised.Duration()-clip.Duration()) > 0.05 {
		flags.DenoiseSkipped = true
		e.logger.Warn("denoised output shape mismatch, keeping original segment",
			slog.Int("sample_rate", denoised.SampleRate()),
			slog.Float64("duration", denoised.Duration()),
		)
		return clip
	}
	return denoised
}
