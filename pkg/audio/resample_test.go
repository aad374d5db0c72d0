package audio

import (
	"testing"
	"time"
)

// flat generates a clip of d where every sample holds the same value.
func flat(d time.Duration, rate int, v int16) Clip {
	n := samplesFor(d, rate)
	c := Clip{Data: make([]byte, n*bytesPerSample), SampleRate: rate}
	for s := 0; s < n; s++ {
		c.setSampleAt(s*bytesPerSample, v)
	}
	return c
}

func TestResample_PreservesConstantSignal(t *testing.T) {
	t.Parallel()

	// Linear interpolation over a constant signal must reproduce the
	// constant at every output sample, at any target rate.
	src := flat(time.Second, 48000, 10000)

	for _, rate := range []int{16000, 24000, 44100} {
		got := src.Resample(rate)
		if got.SampleRate != rate {
			t.Fatalf("Resample(%d): sample rate = %d", rate, got.SampleRate)
		}
		bad := 0
		for i := 0; i+1 < len(got.Data); i += bytesPerSample {
			if got.sampleAt(i) != 10000 {
				bad++
			}
		}
		if bad != 0 {
			t.Errorf("Resample(%d): %d/%d samples deviate from the constant input",
				rate, bad, len(got.Data)/bytesPerSample)
		}
	}
}

func TestResample_DurationScales(t *testing.T) {
	t.Parallel()

	src := tone(time.Second, 24000, 9000)
	got := src.Resample(44100)

	if d := got.Duration(); d < 990*time.Millisecond || d > 1010*time.Millisecond {
		t.Errorf("upsampled duration = %v, want ~1s", d)
	}
	if n := len(got.Data) / bytesPerSample; n != 44100 {
		t.Errorf("upsampled to %d samples, want 44100", n)
	}
}

func TestResample_SameRateIsIdentity(t *testing.T) {
	t.Parallel()

	src := tone(100*time.Millisecond, 16000, 8000)
	got := src.Resample(16000)
	if &got.Data[0] != &src.Data[0] {
		t.Error("same-rate resample should return the clip unchanged")
	}
}
