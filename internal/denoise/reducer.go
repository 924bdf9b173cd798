// Package denoise wraps the external spectral denoising filter (ffmpeg
// afftdn) as a scoped subprocess. Failures never propagate: a noisy but
// clonable sample beats a hard pipeline failure, so every error path falls
// back to the original audio.
package denoise

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/voicebrew/cloneprep/internal/tempfiles"
)

// DefaultTimeout bounds a single denoise subprocess run.
const DefaultTimeout = 15 * time.Second

// Reducer runs the adaptive FFT denoiser over WAV bytes.
type Reducer struct {
	ffmpegPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewReducer creates a Reducer. Empty ffmpegPath defaults to "ffmpeg" from
// PATH; non-positive timeout defaults to DefaultTimeout.
func NewReducer(ffmpegPath string, timeout time.Duration, logger *slog.Logger) *Reducer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{ffmpegPath: ffmpegPath, timeout: timeout, logger: logger}
}

// Reduce denoises wavBytes with the given strength in [0, 1] and reports
// whether denoising was actually applied. Strength 0 bypasses the
// subprocess entirely. On subprocess failure (missing binary, non-zero
// exit, timeout) the original bytes come back with reduced=false; the
// caller records the degradation.
func (r *Reducer) Reduce(ctx context.Context, wavBytes []byte, strength float64) ([]byte, bool) {
	if strength <= 0 {
		return wavBytes, false
	}
	if strength > 1 {
		strength = 1
	}

	out, err := r.run(ctx, wavBytes, strength)
	if err != nil {
		r.logger.Warn("noise reduction failed, keeping original audio",
			slog.String("error", err.Error()),
			slog.Float64("strength", strength),
		)
		return wavBytes, false
	}
	return out, true
}

func (r *Reducer) run(ctx context.Context, wavBytes []byte, strength float64) ([]byte, error) {
	ws, err := tempfiles.New("", "cloneprep_denoise_*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = ws.Cleanup() }()

	inPath, err := ws.WriteFile("input.wav", wavBytes)
	if err != nil {
		return nil, err
	}
	outPath := ws.Path("denoised.wav")

	// Map strength to the afftdn noise floor: 5 dB (gentle) to 25 dB
	// (aggressive), with noise tracking enabled.
	noiseFloor := int(5 + strength*20)
	filter := fmt.Sprintf("afftdn=nf=-%d:nr=%d:tn=1", noiseFloor, noiseFloor)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.ffmpegPath,
		"-hide_banner",
		"-i", inPath,
		"-af", filter,
		"-y", outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("denoise cancelled: %w", ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("denoise subprocess timed out after %s", r.timeout)
		default:
			return nil, fmt.Errorf("denoise subprocess: %w: %s", err, stderr.String())
		}
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read denoised output: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("denoise subprocess produced empty output")
	}
	return out, nil
}
