package audio

import (
	"math"
	"time"
)

// fullScale is the int16 full-scale reference for dBFS computation.
const fullScale = 32768.0

// RMS returns the root-mean-square amplitude of the clip in linear int16
// units. An empty clip has RMS 0.
func (c Clip) RMS() float64 {
	if c.Empty() {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(c.Data); i += 2 {
		s := float64(c.sampleAt(i))
		sum += s * s
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS returns the clip's RMS level in dB relative to full scale. A silent or
// empty clip returns -inf.
func (c Clip) DBFS() float64 {
	rms := c.RMS()
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/fullScale)
}

// ApplyGain returns the clip scaled by db decibels, with saturating clamp at
// int16 full scale.
func (c Clip) ApplyGain(db float64) Clip {
	out := c.Clone()
	factor := math.Pow(10, db/20)
	for i := 0; i+1 < len(out.Data); i += 2 {
		v := float64(out.sampleAt(i)) * factor
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out.setSampleAt(i, int16(v))
	}
	return out
}

// LoudnessMatch returns the clip gained toward targetDBFS. The applied gain is
// clamped to ±maxGainDB. Clips whose RMS is below minRMS are treated as
// already-silent and returned unmodified — boosting noise floors toward a
// speech target produces audible hiss.
func (c Clip) LoudnessMatch(targetDBFS, maxGainDB, minRMS float64) Clip {
	rms := c.RMS()
	if rms < minRMS {
		return c.Clone()
	}
	gain := targetDBFS - c.DBFS()
	if gain > maxGainDB {
		gain = maxGainDB
	} else if gain < -maxGainDB {
		gain = -maxGainDB
	}
	return c.ApplyGain(gain)
}

// FadeOut applies a linear fade over the final d of the clip. A fade longer
// than the clip fades the whole clip.
func (c Clip) FadeOut(d time.Duration) Clip {
	out := c.Clone()
	fadeSamples := samplesFor(d, out.SampleRate)
	total := len(out.Data) / bytesPerSample
	if fadeSamples > total {
		fadeSamples = total
	}
	if fadeSamples == 0 {
		return out
	}
	start := total - fadeSamples
	for s := start; s < total; s++ {
		factor := float64(total-s) / float64(fadeSamples)
		i := s * bytesPerSample
		out.setSampleAt(i, int16(float64(out.sampleAt(i))*factor))
	}
	return out
}
