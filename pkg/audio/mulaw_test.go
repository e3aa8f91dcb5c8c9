package audio

import (
	"testing"
)

func TestMuLawDecodeTableEndpoints(t *testing.T) {
	// Canonical G.711 table endpoints
	if got := MuLawDecode(0x00); got != -32124 {
		t.Errorf("μ-law 0x00 should decode to -32124, got %d", got)
	}
	if got := MuLawDecode(0xFF); got != 0 {
		t.Errorf("μ-law 0xFF should decode to 0, got %d", got)
	}
	if got := MuLawDecode(0x7F); got != 0 {
		t.Errorf("μ-law 0x7F should decode to 0, got %d", got)
	}
	if got := MuLawDecode(0x80); got != 32124 {
		t.Errorf("μ-law 0x80 should decode to 32124, got %d", got)
	}
}

func TestMuLawEncodeDecodeRoundTrip(t *testing.T) {
	// μ-law is lossy; the decoded value must land within one quantization
	// step of the original for the segment it falls in.
	testSamples := []int16{0, 4, 100, 1000, 10000, 32000, 32767, -4, -100, -1000, -10000, -32000, -32768}

	for _, original := range testSamples {
		encoded := MuLawEncode(original)
		decoded := MuLawDecode(encoded)

		diff := int(original) - int(decoded)
		if diff < 0 {
			diff = -diff
		}

		// Quantization step doubles per segment; derive the allowed error
		// from the magnitude.
		mag := int(original)
		if mag < 0 {
			mag = -mag
		}
		maxError := mag/16 + 16

		if diff > maxError {
			t.Errorf("round-trip for %d: encoded=%02x decoded=%d diff=%d (max %d)",
				original, encoded, decoded, diff, maxError)
		}
	}
}

func TestMuLawEncodeClipping(t *testing.T) {
	// Values beyond the clip threshold encode like the threshold itself.
	clipped := MuLawEncode(32767)
	atClip := MuLawEncode(MuLawClip)
	if clipped != atClip {
		t.Errorf("32767 should encode like %d: got %02x want %02x", MuLawClip, clipped, atClip)
	}
}

func TestMuLawEncodeNegativeExtreme(t *testing.T) {
	// -32768 has no int16 negation; it must clip like -32635, not wrap
	// around the segment scan and come out as silence.
	if got := MuLawEncode(-32768); got != 0x00 {
		t.Errorf("-32768 should encode to 0x00, got %02x", got)
	}
	if got := MuLawDecode(MuLawEncode(-32768)); got != -32124 {
		t.Errorf("round-trip of -32768 gave %d, want -32124", got)
	}

	// Reachable from the normalized API: a full-scale negative sample
	// quantizes to exactly -32768.
	if got := MuLawDecodeSample(MuLawEncodeSample(-1.0)); got > -0.97 {
		t.Errorf("full-scale negative sample round-tripped to %f", got)
	}
}

func TestMuLawSampleRoundTrip(t *testing.T) {
	values := []float32{0, 0.01, 0.1, 0.5, 0.99, -0.01, -0.1, -0.5, -0.99}

	for _, v := range values {
		b := MuLawEncodeSample(v)
		got := MuLawDecodeSample(b)

		diff := float64(v - got)
		if diff < 0 {
			diff = -diff
		}
		// Allow one quantization step relative to the magnitude.
		maxError := float64(v)*0.07 + 0.001
		if maxError < 0 {
			maxError = -maxError
		}
		if diff > maxError {
			t.Errorf("sample round-trip for %f: byte=%02x decoded=%f diff=%f", v, b, got, diff)
		}
	}
}

func TestMuLawEncodeSampleClamps(t *testing.T) {
	// Out-of-range normalized samples clamp instead of wrapping.
	if MuLawEncodeSample(2.0) != MuLawEncodeSample(1.0) {
		t.Error("over-range sample should clamp to full scale")
	}
	if MuLawEncodeSample(-2.0) != MuLawEncodeSample(-1.0) {
		t.Error("under-range sample should clamp to negative full scale")
	}
}

func TestMuLawFrameConversion(t *testing.T) {
	mulaw := []byte{0x7F, 0xFF, 0x00, 0x80, 0x55}
	samples := MuLawDecodeFrame(mulaw)

	if len(samples) != len(mulaw) {
		t.Fatalf("expected %d samples, got %d", len(mulaw), len(samples))
	}
	for i, b := range mulaw {
		want := float32(MuLawDecode(b)) / 32768.0
		if samples[i] != want {
			t.Errorf("sample %d: expected %f, got %f", i, want, samples[i])
		}
	}

	back := MuLawEncodeFrame(samples)
	if len(back) != len(mulaw) {
		t.Fatalf("expected %d bytes, got %d", len(mulaw), len(back))
	}
}

func TestMuLawToPCM(t *testing.T) {
	mulaw := []byte{0x7F, 0xFF, 0x00, 0x80}
	pcm := MuLawToPCM(mulaw)

	if len(pcm) != len(mulaw)*2 {
		t.Errorf("expected PCM length %d, got %d", len(mulaw)*2, len(pcm))
	}

	for i, b := range mulaw {
		expected := MuLawDecode(b)
		got := int16(pcm[i*2]) | (int16(pcm[i*2+1]) << 8)
		if got != expected {
			t.Errorf("sample %d: expected %d, got %d", i, expected, got)
		}
	}
}

func TestPCMToMuLaw(t *testing.T) {
	samples := []int16{0, 1000, -1000, 10000, -10000}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}

	mulaw := PCMToMuLaw(pcm)

	if len(mulaw) != len(samples) {
		t.Errorf("expected μ-law length %d, got %d", len(samples), len(mulaw))
	}
	for i, s := range samples {
		if expected := MuLawEncode(s); mulaw[i] != expected {
			t.Errorf("sample %d (%d): expected %02x, got %02x", i, s, expected, mulaw[i])
		}
	}
}
