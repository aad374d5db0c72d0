// Package audio provides the in-memory PCM clip model and the splice, overlay,
// gain, and silence-analysis operations the cleanup pipeline is built on.
//
// A [Clip] is mono 16-bit little-endian PCM plus a sample rate. Clips are the
// atomic unit of audio in recut — downloaded from the blob store, cut and
// stitched by the rebuilder, overlaid with effects by the executor, and
// compressed by the pause compressor. All operations copy; a Clip's Data is
// never aliased between two results.
package audio

import (
	"fmt"
	"time"
)

// bytesPerSample is fixed: all clips are int16 mono.
const bytesPerSample = 2

// Clip is a mono 16-bit little-endian PCM buffer.
type Clip struct {
	// Data is raw int16 LE PCM. len(Data) is always even.
	Data []byte

	// SampleRate in Hz (e.g., 44100 for podcast masters, 16000 for STT input).
	SampleRate int
}

// Silence returns a clip of d silence at the given sample rate.
func Silence(d time.Duration, sampleRate int) Clip {
	n := samplesFor(d, sampleRate) * bytesPerSample
	return Clip{Data: make([]byte, n), SampleRate: sampleRate}
}

// Duration returns the clip's length.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	samples := len(c.Data) / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip holds no samples.
func (c Clip) Empty() bool {
	return len(c.Data) < bytesPerSample
}

// Clone returns a deep copy of the clip.
func (c Clip) Clone() Clip {
	out := make([]byte, len(c.Data))
	copy(out, c.Data)
	return Clip{Data: out, SampleRate: c.SampleRate}
}

// Slice returns a copy of the clip between from and to. Bounds are clamped to
// the clip; an inverted or fully out-of-range window yields an empty clip.
func (c Clip) Slice(from, to time.Duration) Clip {
	a := c.offset(from)
	b := c.offset(to)
	if b <= a {
		return Clip{SampleRate: c.SampleRate}
	}
	out := make([]byte, b-a)
	copy(out, c.Data[a:b])
	return Clip{Data: out, SampleRate: c.SampleRate}
}

// Append returns c with other appended. The sample rates must match.
func (c Clip) Append(other Clip) (Clip, error) {
	if other.Empty() {
		return c, nil
	}
	if c.Empty() {
		return other.Clone(), nil
	}
	if c.SampleRate != other.SampleRate {
		return Clip{}, fmt.Errorf("audio: append: sample rate mismatch %d vs %d", c.SampleRate, other.SampleRate)
	}
	out := make([]byte, 0, len(c.Data)+len(other.Data))
	out = append(out, c.Data...)
	out = append(out, other.Data...)
	return Clip{Data: out, SampleRate: c.SampleRate}, nil
}

// Concat joins clips in order. All clips must share one sample rate.
func Concat(clips ...Clip) (Clip, error) {
	var out Clip
	var err error
	for _, c := range clips {
		out, err = out.Append(c)
		if err != nil {
			return Clip{}, err
		}
	}
	return out, nil
}

// TrimTail returns the clip with up to d removed from its end.
func (c Clip) TrimTail(d time.Duration) Clip {
	if d <= 0 {
		return c.Clone()
	}
	n := samplesFor(d, c.SampleRate) * bytesPerSample
	if n >= len(c.Data) {
		return Clip{SampleRate: c.SampleRate}
	}
	out := make([]byte, len(c.Data)-n)
	copy(out, c.Data[:len(out)])
	return Clip{Data: out, SampleRate: c.SampleRate}
}

// Cut returns the clip with the window [from, to) removed and the cut point.
// Bounds are clamped; an inverted window returns the clip unchanged.
func (c Clip) Cut(from, to time.Duration) (Clip, time.Duration) {
	a := c.offset(from)
	b := c.offset(to)
	if b <= a {
		return c.Clone(), from
	}
	out := make([]byte, 0, len(c.Data)-(b-a))
	out = append(out, c.Data[:a]...)
	out = append(out, c.Data[b:]...)
	cutAt := time.Duration(a/bytesPerSample) * time.Second / time.Duration(c.SampleRate)
	return Clip{Data: out, SampleRate: c.SampleRate}, cutAt
}

// Splice inserts insert into c at the given position (insert, not overlay).
// The position is clamped to the clip bounds. The sample rates must match.
func (c Clip) Splice(insert Clip, at time.Duration) (Clip, error) {
	if insert.Empty() {
		return c.Clone(), nil
	}
	if !c.Empty() && c.SampleRate != insert.SampleRate {
		return Clip{}, fmt.Errorf("audio: splice: sample rate mismatch %d vs %d", c.SampleRate, insert.SampleRate)
	}
	p := c.offset(at)
	out := make([]byte, 0, len(c.Data)+len(insert.Data))
	out = append(out, c.Data[:p]...)
	out = append(out, insert.Data...)
	out = append(out, c.Data[p:]...)
	rate := c.SampleRate
	if rate == 0 {
		rate = insert.SampleRate
	}
	return Clip{Data: out, SampleRate: rate}, nil
}

// Overlay mixes over into c starting at the given position using saturating
// int16 addition. The overlay is clamped to the clip bounds — samples past the
// end of c are dropped, never appended. The sample rates must match.
func (c Clip) Overlay(over Clip, at time.Duration) (Clip, error) {
	if over.Empty() || c.Empty() {
		return c.Clone(), nil
	}
	if c.SampleRate != over.SampleRate {
		return Clip{}, fmt.Errorf("audio: overlay: sample rate mismatch %d vs %d", c.SampleRate, over.SampleRate)
	}
	out := c.Clone()
	p := out.offset(at)
	for i := 0; i+1 < len(over.Data) && p+i+1 < len(out.Data); i += 2 {
		base := int(int16(uint16(out.Data[p+i]) | uint16(out.Data[p+i+1])<<8))
		add := int(int16(uint16(over.Data[i]) | uint16(over.Data[i+1])<<8))
		sum := base + add
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		out.Data[p+i] = byte(uint16(int16(sum)))
		out.Data[p+i+1] = byte(uint16(int16(sum)) >> 8)
	}
	return out, nil
}

// ReplaceWithSilence zeroes the window [from, to), clamped to the clip.
func (c Clip) ReplaceWithSilence(from, to time.Duration) Clip {
	out := c.Clone()
	a := out.offset(from)
	b := out.offset(to)
	for i := a; i < b; i++ {
		out.Data[i] = 0
	}
	return out
}

// offset converts a timestamp to a sample-aligned byte offset clamped to the
// clip bounds.
func (c Clip) offset(t time.Duration) int {
	if t <= 0 || c.SampleRate <= 0 {
		return 0
	}
	n := samplesFor(t, c.SampleRate) * bytesPerSample
	if n > len(c.Data) {
		return len(c.Data)
	}
	return n
}

// samplesFor returns the number of samples covering d at the given rate.
func samplesFor(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// sampleAt reads the int16 sample at byte offset i. i must be even and in
// bounds.
func (c Clip) sampleAt(i int) int16 {
	return int16(uint16(c.Data[i]) | uint16(c.Data[i+1])<<8)
}

// setSampleAt writes the int16 sample at byte offset i.
func (c Clip) setSampleAt(i int, v int16) {
	c.Data[i] = byte(uint16(v))
	c.Data[i+1] = byte(uint16(v) >> 8)
}

// StereoToMono downmixes interleaved stereo int16 LE PCM by averaging the
// L+R pair of each frame. Input must be 4-byte aligned; a trailing partial
// frame is dropped.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for f := 0; f < frames; f++ {
		i := f * 4
		l := int(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		r := int(int16(uint16(pcm[i+2]) | uint16(pcm[i+3])<<8))
		m := int16((l + r) / 2)
		out[f*2] = byte(uint16(m))
		out[f*2+1] = byte(uint16(m) >> 8)
	}
	return out
}
