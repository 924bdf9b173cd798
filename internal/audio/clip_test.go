package audio

import (
	"math"
	"testing"
)

// sineClip generates a mono sine wave for tests.
func sineClip(t *testing.T, freq float64, amplitude float64, durationSec float64, rate int) *Clip {
	t.Helper()
	n := int(durationSec * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	c, err := NewClip(samples, rate)
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	return c
}

func TestNewClip(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		c, err := NewClip([]float64{0.1, 0.2, 0.3}, 16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Len() != 3 {
			t.Errorf("expected 3 samples, got %d", c.Len())
		}
		if c.SampleRate() != 16000 {
			t.Errorf("expected rate 16000, got %d", c.SampleRate())
		}
	})

	t.Run("empty samples", func(t *testing.T) {
		_, err := NewClip(nil, 16000)
		if err == nil {
			t.Fatal("expected error for empty samples")
		}
	})

	t.Run("bad sample rate", func(t *testing.T) {
		_, err := NewClip([]float64{0.1}, 0)
		if err == nil {
			t.Fatal("expected error for zero sample rate")
		}
	})
}

func TestClip_Duration(t *testing.T) {
	c := sineClip(t, 440, 0.5, 2.0, 16000)
	if got := c.Duration(); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("expected duration 2.0, got %f", got)
	}
}

func TestClip_Slice(t *testing.T) {
	c := sineClip(t, 440, 0.5, 2.0, 1000)

	t.Run("interior slice", func(t *testing.T) {
		s, err := c.Slice(0.5, 1.0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Len() != 500 {
			t.Errorf("expected 500 samples, got %d", s.Len())
		}
		if s.SampleRate() != c.SampleRate() {
			t.Errorf("sample rate changed: %d", s.SampleRate())
		}
	})

	t.Run("bounds are clamped", func(t *testing.T) {
		s, err := c.Slice(-1.0, 99.0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Len() != c.Len() {
			t.Errorf("expected whole clip, got %d of %d samples", s.Len(), c.Len())
		}
	})

	t.Run("empty interval", func(t *testing.T) {
		if _, err := c.Slice(1.0, 1.0); err == nil {
			t.Fatal("expected error for empty interval")
		}
	})

	t.Run("interval outside clip", func(t *testing.T) {
		if _, err := c.Slice(5.0, 6.0); err == nil {
			t.Fatal("expected error for interval past clip end")
		}
	})

	t.Run("slice does not alias receiver", func(t *testing.T) {
		s, err := c.Slice(0, 0.1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s.Samples()[0] = 42
		if c.Samples()[0] == 42 {
			t.Error("slice shares memory with receiver")
		}
	})
}

func TestClip_Resample(t *testing.T) {
	t.Run("upsample doubles length", func(t *testing.T) {
		c := sineClip(t, 200, 0.5, 1.0, 8000)
		r, err := c.Resample(16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.SampleRate() != 16000 {
			t.Errorf("expected rate 16000, got %d", r.SampleRate())
		}
		if math.Abs(r.Duration()-1.0) > 0.01 {
			t.Errorf("duration drifted: %f", r.Duration())
		}
	})

	t.Run("downsample preserves duration", func(t *testing.T) {
		c := sineClip(t, 200, 0.5, 1.0, 44100)
		r, err := c.Resample(16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(r.Duration()-1.0) > 0.01 {
			t.Errorf("duration drifted: %f", r.Duration())
		}
	})

	t.Run("same rate copies", func(t *testing.T) {
		c := sineClip(t, 200, 0.5, 0.5, 16000)
		r, err := c.Resample(16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Len() != c.Len() {
			t.Errorf("expected same length, got %d vs %d", r.Len(), c.Len())
		}
		r.Samples()[0] = 42
		if c.Samples()[0] == 42 {
			t.Error("resample at same rate aliases receiver")
		}
	})

	t.Run("bad rate", func(t *testing.T) {
		c := sineClip(t, 200, 0.5, 0.5, 16000)
		if _, err := c.Resample(0); err == nil {
			t.Fatal("expected error for zero rate")
		}
	})
}

func TestClip_NormalizePeak(t *testing.T) {
	t.Run("peak lands on target", func(t *testing.T) {
		c := sineClip(t, 440, 0.5, 1.0, 16000)
		n := c.NormalizePeak(-3)

		peak := 0.0
		for _, s := range n.Samples() {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
		want := math.Pow(10, -3.0/20)
		if math.Abs(peak-want) > 0.01 {
			t.Errorf("expected peak %f, got %f", want, peak)
		}
	})

	t.Run("near-silent clip unchanged", func(t *testing.T) {
		samples := make([]float64, 100)
		c, err := NewClip(samples, 16000)
		if err != nil {
			t.Fatalf("NewClip failed: %v", err)
		}
		n := c.NormalizePeak(-3)
		for i, s := range n.Samples() {
			if s != 0 {
				t.Fatalf("silent clip amplified at sample %d: %f", i, s)
			}
		}
	})

	t.Run("receiver untouched", func(t *testing.T) {
		c := sineClip(t, 440, 0.5, 0.1, 16000)
		before := c.Samples()[10]
		_ = c.NormalizePeak(-3)
		if c.Samples()[10] != before {
			t.Error("NormalizePeak mutated the receiver")
		}
	})
}
