package audio

import (
	"math"
	"time"
)

// analysisWindow is the RMS window used for silence detection and energy
// envelopes. 10 ms is fine enough to land region edges between words.
const analysisWindow = 10 * time.Millisecond

// Region is a contiguous time span within a clip.
type Region struct {
	Start time.Duration
	End   time.Duration
}

// Dur returns the region's length.
func (r Region) Dur() time.Duration {
	return r.End - r.Start
}

// DetectSilences returns all regions of at least minLen whose windowed RMS
// level stays below thresholdDBFS. Regions are returned in time order and do
// not overlap.
func (c Clip) DetectSilences(minLen time.Duration, thresholdDBFS float64) []Region {
	if c.Empty() || minLen <= 0 {
		return nil
	}

	win := samplesFor(analysisWindow, c.SampleRate)
	if win == 0 {
		win = 1
	}
	total := len(c.Data) / bytesPerSample

	var regions []Region
	inSilence := false
	var silenceStart int

	for s := 0; s < total; s += win {
		end := s + win
		if end > total {
			end = total
		}
		level := windowDBFS(c, s, end)
		if level < thresholdDBFS {
			if !inSilence {
				inSilence = true
				silenceStart = s
			}
			continue
		}
		if inSilence {
			regions = appendIfLongEnough(regions, c, silenceStart, s, minLen)
			inSilence = false
		}
	}
	if inSilence {
		regions = appendIfLongEnough(regions, c, silenceStart, total, minLen)
	}
	return regions
}

func appendIfLongEnough(regions []Region, c Clip, startSample, endSample int, minLen time.Duration) []Region {
	r := Region{
		Start: sampleTime(startSample, c.SampleRate),
		End:   sampleTime(endSample, c.SampleRate),
	}
	if r.Dur() >= minLen {
		regions = append(regions, r)
	}
	return regions
}

func sampleTime(sample, rate int) time.Duration {
	return time.Duration(sample) * time.Second / time.Duration(rate)
}

// windowDBFS computes the dBFS level of samples [from, to).
func windowDBFS(c Clip, from, to int) float64 {
	var sum float64
	n := 0
	for s := from; s < to; s++ {
		v := float64(c.sampleAt(s * bytesPerSample))
		sum += v * v
		n++
	}
	if n == 0 || sum == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(math.Sqrt(sum/float64(n))/fullScale)
}

// Envelope returns the clip's RMS energy envelope sampled into width buckets.
// Comparing envelopes of a track before and after an edit gives a cheap
// similarity measure that is insensitive to exact sample alignment.
func (c Clip) Envelope(width int) []float64 {
	if width <= 0 || c.Empty() {
		return nil
	}
	total := len(c.Data) / bytesPerSample
	env := make([]float64, width)
	for b := 0; b < width; b++ {
		from := b * total / width
		to := (b + 1) * total / width
		var sum float64
		n := 0
		for s := from; s < to; s++ {
			v := float64(c.sampleAt(s * bytesPerSample))
			sum += v * v
			n++
		}
		if n > 0 {
			env[b] = math.Sqrt(sum / float64(n))
		}
	}
	return env
}

// CosineSimilarity returns the cosine of the angle between vectors a and b.
// Mismatched lengths compare the common prefix. Two zero vectors are
// considered identical (similarity 1).
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 && nb == 0 {
		return 1
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
