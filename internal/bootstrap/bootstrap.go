// Package bootstrap provides dependency initialization for the
// preprocessing engine.
package bootstrap

import (
	"log/slog"
	"time"

	"github.com/voicebrew/cloneprep/internal/audio"
	"github.com/voicebrew/cloneprep/internal/config"
	"github.com/voicebrew/cloneprep/internal/denoise"
	"github.com/voicebrew/cloneprep/internal/diarize"
	"github.com/voicebrew/cloneprep/internal/feature"
	"github.com/voicebrew/cloneprep/internal/pipeline"
	"github.com/voicebrew/cloneprep/internal/segment"
)

// Dependencies holds the initialized engine and its process-wide
// collaborators.
type Dependencies struct {
	Engine   *pipeline.Engine
	Diarizer diarize.Diarizer
}

// NewDependencies wires the preprocessing engine from configuration. The
// diarization capability is probed exactly once here: downstream code sees
// either a working model-backed diarizer or the unavailable variant, never
// a per-call load attempt.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	transcoder := audio.NewTranscoder(cfg.FFmpegPath, cfg.SampleRate)
	extractor := feature.NewExtractor(feature.DefaultConfig())
	selector := segment.NewSelector(segment.DefaultConfig())
	reducer := denoise.NewReducer(
		cfg.FFmpegPath,
		time.Duration(cfg.DenoiseTimeoutSec)*time.Second,
		logger,
	)

	diarizer := initDiarizer(cfg, logger)

	settings := pipeline.DefaultSettings()
	settings.SampleRate = cfg.SampleRate
	settings.MinDuration = cfg.MinDurationSec
	settings.MaxDuration = cfg.MaxDurationSec
	settings.NormalizeTargetDB = cfg.NormalizeTargetDB

	engine := pipeline.NewEngine(
		transcoder,
		extractor,
		selector,
		reducer,
		diarizer,
		logger,
		pipeline.WithSettings(settings),
	)

	return &Dependencies{
		Engine:   engine,
		Diarizer: diarizer,
	}, nil
}

// initDiarizer runs the startup capability probe.
func initDiarizer(cfg *config.Config, logger *slog.Logger) diarize.Diarizer {
	if !cfg.DiarizationEnabled() {
		logger.Info("diarization disabled: no model path configured")
		return diarize.NewUnavailable("no model path configured")
	}

	d, err := diarize.NewSilero(diarize.SileroConfig{
		ModelPath:      cfg.DiarizationModelPath,
		InferenceSlots: cfg.InferenceSlots,
	})
	if err != nil {
		logger.Warn("diarization model failed to load, running acoustic-only",
			slog.String("model_path", cfg.DiarizationModelPath),
			slog.String("error", err.Error()),
		)
		return diarize.NewUnavailable(err.Error())
	}

	logger.Info("diarization model loaded",
		slog.String("model_path", cfg.DiarizationModelPath),
		slog.Int64("inference_slots", cfg.InferenceSlots),
	)
	return d
}
