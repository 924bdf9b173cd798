// Package main provides a command-line harness for the preprocessing
// engine: read an audio file, isolate a reference segment, write it out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicebrew/cloneprep/internal/bootstrap"
	"github.com/voicebrew/cloneprep/internal/config"
	"github.com/voicebrew/cloneprep/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inPath := flag.String("in", "", "input audio file (required)")
	outPath := flag.String("out", "reference.wav", "output WAV file")
	target := flag.Float64("target", 0, "target segment duration in seconds (0 = automatic)")
	denoise := flag.Bool("denoise", true, "apply noise reduction to the selected segment")
	strength := flag.Float64("strength", 0.4, "denoise strength, 0 (bypass) to 1")
	maxSpeakers := flag.Int("max-speakers", 0, "diarization speaker cap (0 = engine default)")
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required -in flag")
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting preprocessing",
		slog.String("input", *inPath),
		slog.String("output", *outPath),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Bool("diarization_enabled", cfg.DiarizationEnabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	// Cancel the run on interrupt so subprocesses and inference stop too.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{
		TargetDuration:  *target,
		Denoise:         *denoise,
		DenoiseStrength: *strength,
		MaxSpeakers:     *maxSpeakers,
	}

	result, err := deps.Engine.PreprocessForCloning(ctx, data, opts)
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}

	if err := os.WriteFile(*outPath, result.AudioBytes, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	// Print the result metadata (without the payload) for scripting.
	summary := *result
	summary.AudioBytes = nil
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	logger.Info("wrote reference segment",
		slog.String("path", *outPath),
		slog.Float64("duration", result.DurationSeconds),
		slog.Float64("quality_score", result.QualityScore),
	)
	return nil
}
