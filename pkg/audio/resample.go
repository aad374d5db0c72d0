package audio

// Resample converts the clip to rate using linear interpolation. If the clip
// is already at rate, it is returned unchanged.
func (c Clip) Resample(rate int) Clip {
	if rate <= 0 || c.SampleRate == rate || len(c.Data) < 2 {
		return c
	}
	srcSamples := len(c.Data) / bytesPerSample
	dstSamples := int(int64(srcSamples) * int64(rate) / int64(c.SampleRate))
	if dstSamples == 0 {
		return Clip{SampleRate: rate}
	}

	out := Clip{Data: make([]byte, dstSamples*bytesPerSample), SampleRate: rate}
	step := float64(c.SampleRate) / float64(rate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * step
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := c.sampleAt(srcIdx * bytesPerSample)
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = c.sampleAt((srcIdx + 1) * bytesPerSample)
		}
		out.setSampleAt(i*bytesPerSample, int16(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}
