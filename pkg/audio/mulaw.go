// Package audio provides the audio processing primitives for the bridge:
// μ-law (G.711) codec conversions, linear-interpolation resampling, and
// bounded frame accumulation.
//
// mulaw.go implements the μ-law codec used by the telephony leg.
// μ-law is the standard audio encoding for telephone systems in North America
// and Japan.
//
// Features:
//   - μ-law to Linear PCM (16-bit signed) conversion
//   - Linear PCM to μ-law conversion
//   - Normalized float sample API for the bridge pipeline ([-1,1] range)
//   - Optimized lookup tables for fast conversion
//
// Reference: ITU-T G.711 specification

package audio

// MuLaw codec constants
const (
	MuLawBias      = 0x84  // Bias for linear code
	MuLawClip      = 32635 // Maximum linear magnitude before companding
	MuLawSegShift  = 4
	MuLawSegMask   = 0x70
	MuLawQuantMask = 0x0f
)

// muLawDecompressTable is a pre-computed lookup table for μ-law to linear PCM
// conversion. Each μ-law byte maps to a 16-bit signed PCM value.
var muLawDecompressTable = [256]int16{
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
}

// muLawSegmentTable holds the segment end values for μ-law encoding.
var muLawSegmentTable = [8]int16{0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF, 0x3FFF, 0x7FFF}

// MuLawDecode converts a single μ-law byte to a 16-bit signed PCM sample.
func MuLawDecode(mulaw byte) int16 {
	return muLawDecompressTable[mulaw]
}

// MuLawEncode converts a 16-bit signed PCM sample to μ-law.
func MuLawEncode(pcm int16) byte {
	// Determine sign and get magnitude. The magnitude is widened to int32
	// so that negating -32768 cannot overflow past the clip.
	sign := int32(pcm>>8) & 0x80
	mag := int32(pcm)
	if sign != 0 {
		mag = -mag
	}
	if mag > MuLawClip {
		mag = MuLawClip
	}
	mag += MuLawBias

	// Find segment
	segment := 7
	for i := 0; i < 8; i++ {
		if mag <= int32(muLawSegmentTable[i]) {
			segment = i
			break
		}
	}

	// Combine sign, segment, and quantization
	return byte(^(sign | (int32(segment) << MuLawSegShift) | ((mag >> (segment + 3)) & MuLawQuantMask)))
}

// MuLawDecodeSample converts a μ-law byte to a normalized sample in [-1,1].
func MuLawDecodeSample(mulaw byte) float32 {
	return float32(muLawDecompressTable[mulaw]) / 32768.0
}

// MuLawEncodeSample converts a normalized sample in [-1,1] to μ-law.
// The sample is quantized to 16-bit PCM rounding half away from zero.
func MuLawEncodeSample(sample float32) byte {
	v := float64(sample) * 32768.0
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return MuLawEncode(int16(v))
}

// MuLawDecodeFrame converts μ-law encoded bytes to normalized samples.
func MuLawDecodeFrame(mulaw []byte) []float32 {
	samples := make([]float32, len(mulaw))
	for i, b := range mulaw {
		samples[i] = float32(muLawDecompressTable[b]) / 32768.0
	}
	return samples
}

// MuLawEncodeFrame converts normalized samples to μ-law encoded bytes.
func MuLawEncodeFrame(samples []float32) []byte {
	mulaw := make([]byte, len(samples))
	for i, s := range samples {
		mulaw[i] = MuLawEncodeSample(s)
	}
	return mulaw
}

// MuLawDecodeBuf converts μ-law encoded bytes to 16-bit signed PCM.
// Output buffer must be 2x the size of input (2 bytes per sample).
func MuLawDecodeBuf(mulaw []byte, pcm []byte) {
	for i, b := range mulaw {
		sample := muLawDecompressTable[b]
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
}

// MuLawEncodeBuf converts 16-bit signed PCM to μ-law encoded bytes.
// Output buffer must be half the size of input.
func MuLawEncodeBuf(pcm []byte, mulaw []byte) {
	numSamples := len(pcm) / 2
	for i := 0; i < numSamples; i++ {
		sample := int16(pcm[i*2]) | (int16(pcm[i*2+1]) << 8)
		mulaw[i] = MuLawEncode(sample)
	}
}

// MuLawToPCM converts μ-law encoded audio to 16-bit signed PCM.
// Returns a new slice containing the PCM data.
func MuLawToPCM(mulaw []byte) []byte {
	pcm := make([]byte, len(mulaw)*2)
	MuLawDecodeBuf(mulaw, pcm)
	return pcm
}

// PCMToMuLaw converts 16-bit signed PCM audio to μ-law.
// Returns a new slice containing the μ-law data.
func PCMToMuLaw(pcm []byte) []byte {
	mulaw := make([]byte, len(pcm)/2)
	MuLawEncodeBuf(pcm, mulaw)
	return mulaw
}
