package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/voicebrew/cloneprep/internal/tempfiles"
)

// Transcoder converts compressed input (webm, m4a, mp3, ...) to canonical
// mono WAV at the analysis sample rate using an ffmpeg subprocess.
type Transcoder struct {
	ffmpegPath string
	sampleRate int
}

// NewTranscoder creates a Transcoder. An empty ffmpegPath defaults to
// "ffmpeg" resolved from PATH.
func NewTranscoder(ffmpegPath string, sampleRate int) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath, sampleRate: sampleRate}
}

// Available reports whether the ffmpeg binary can be resolved.
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.ffmpegPath)
	return err == nil
}

// Transcode decodes arbitrary container bytes to 16-bit mono WAV at the
// transcoder's sample rate. Input and output go through a scoped temp
// workspace that is removed on every exit path.
func (t *Transcoder) Transcode(ctx context.Context, in []byte) ([]byte, error) {
	ws, err := tempfiles.New("", "cloneprep_decode_*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = ws.Cleanup() }()

	inPath, err := ws.WriteFile("input.bin", in)
	if err != nil {
		return nil, err
	}
	outPath := ws.Path("decoded.wav")

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner",
		"-i", inPath,
		"-ar", fmt.Sprintf("%d", t.sampleRate),
		"-ac", "1",
		"-sample_fmt", "s16",
		"-y", outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg decode failed: %v: %s", ErrInvalidAudio, err, stderr.String())
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read decoded output: %v", ErrInvalidAudio, err)
	}
	return out, nil
}
