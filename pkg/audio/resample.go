// resample.go implements linear-interpolation sample-rate conversion over
// normalized float32 samples.
//
// Two variants are provided:
//   - Resample: stateless, for self-contained chunks. The output length is
//     exactly ceil(len(in) * toRate / fromRate).
//   - StreamResampler: retains the fractional read position between calls so
//     that a continuous stream split into arbitrary chunks resamples without
//     phase discontinuities at chunk boundaries.
//
// Linear interpolation is sufficient for the telephony (8kHz) ↔ engine
// (24kHz) speech path; no anti-aliasing filter is applied.

package audio

// Resample converts samples from fromRate to toRate using linear
// interpolation. When the rates are equal the input is copied through
// unchanged. The output length is ceil(len(in) * toRate / fromRate).
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	if len(in) == 0 {
		return nil
	}

	ratio := float64(fromRate) / float64(toRate)
	out := make([]float32, 0, int(float64(len(in))/ratio)+1)

	for pos := 0.0; pos < float64(len(in)); pos += ratio {
		out = append(out, lerpAt(in, pos))
	}
	return out
}

// StreamResampler converts a continuous sample stream between two fixed
// rates, carrying the fractional read position across calls. Not safe for
// concurrent use; each stream direction owns its own instance.
type StreamResampler struct {
	fromRate int
	toRate   int
	ratio    float64
	phase    float64 // fractional read position into the next chunk
}

// NewStreamResampler creates a streaming resampler between the two rates.
func NewStreamResampler(fromRate, toRate int) *StreamResampler {
	return &StreamResampler{
		fromRate: fromRate,
		toRate:   toRate,
		ratio:    float64(fromRate) / float64(toRate),
	}
}

// Process resamples one chunk of the stream. Per-call output length may vary
// by one sample depending on the carried phase.
func (r *StreamResampler) Process(in []float32) []float32 {
	if r.fromRate == r.toRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	if len(in) == 0 {
		return nil
	}

	out := make([]float32, 0, int(float64(len(in))/r.ratio)+1)
	pos := r.phase
	for ; pos < float64(len(in)); pos += r.ratio {
		out = append(out, lerpAt(in, pos))
	}
	r.phase = pos - float64(len(in))
	return out
}

// Reset clears the carried phase for a fresh stream.
func (r *StreamResampler) Reset() {
	r.phase = 0
}

// lerpAt linearly interpolates the sample at fractional position pos,
// clamping the upper neighbour at the last sample.
func lerpAt(in []float32, pos float64) float32 {
	idx := int(pos)
	if idx >= len(in)-1 {
		return in[len(in)-1]
	}
	frac := float32(pos - float64(idx))
	return in[idx]*(1-frac) + in[idx+1]*frac
}
