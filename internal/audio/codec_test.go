package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
)

func pcm16Bytes(samples []int16) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return raw
}

func TestDecodePCM16(t *testing.T) {
	raw := pcm16Bytes([]int16{0, 32767, -32767, 16384})

	samples := DecodePCM16(raw)
	if len(samples) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(samples))
	}

	if samples[0] != 0 {
		t.Errorf("Expected sample 0 to be 0, got %f", samples[0])
	}
	if samples[1] != 1.0 {
		t.Errorf("Expected sample 1 to be 1.0, got %f", samples[1])
	}
	if samples[2] != -1.0 {
		t.Errorf("Expected sample 2 to be -1.0, got %f", samples[2])
	}
	if samples[3] < 0.49 || samples[3] > 0.51 {
		t.Errorf("Expected sample 3 near 0.5, got %f", samples[3])
	}
}

func TestDecodePCM16_Malformed(t *testing.T) {
	if got := DecodePCM16(nil); got != nil {
		t.Errorf("Expected nil for empty input, got %v", got)
	}
	if got := DecodePCM16([]byte{0x01}); got != nil {
		t.Errorf("Expected nil for odd-length input, got %v", got)
	}
	if got := DecodePCM16([]byte{0x01, 0x02, 0x03}); got != nil {
		t.Errorf("Expected nil for odd-length input, got %v", got)
	}
}

func TestDecodeBase64PCM16(t *testing.T) {
	raw := pcm16Bytes([]int16{1000, -1000})
	encoded := base64.StdEncoding.EncodeToString(raw)

	samples := DecodeBase64PCM16(encoded)
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}

	if got := DecodeBase64PCM16("not base64!!"); got != nil {
		t.Errorf("Expected nil for malformed base64, got %v", got)
	}
}

func TestEncodePCM16_RoundTrip(t *testing.T) {
	original := []float32{0, 0.5, -0.5, 1.0, -1.0}
	raw := EncodePCM16(original)

	if len(raw) != len(original)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(original)*2, len(raw))
	}

	decoded := DecodePCM16(raw)
	for i := range original {
		diff := math.Abs(float64(decoded[i] - original[i]))
		if diff > 0.001 {
			t.Errorf("Round trip mismatch at %d: %f vs %f", i, original[i], decoded[i])
		}
	}
}

func TestEncodePCM16_Clamps(t *testing.T) {
	raw := EncodePCM16([]float32{2.0, -2.0})
	decoded := DecodePCM16(raw)

	if decoded[0] != 1.0 {
		t.Errorf("Expected clamp to 1.0, got %f", decoded[0])
	}
	if decoded[1] != -1.0 {
		t.Errorf("Expected clamp to -1.0, got %f", decoded[1])
	}
}

func TestResample_SilenceBuffer(t *testing.T) {
	// 1 second of silence at 44100 Hz resampled to 16000 Hz
	input := make([]float32, 44100)

	output := Resample(input, 44100, 16000)

	expectedLen := 16000
	tolerance := 50
	if len(output) < expectedLen-tolerance || len(output) > expectedLen+tolerance {
		t.Errorf("Expected output length around %d, got %d", expectedLen, len(output))
	}

	for i, s := range output {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("Output contains NaN/Inf at index %d", i)
		}
	}
}

func TestResample_Identity(t *testing.T) {
	input := []float32{0.1, 0.2, 0.3}
	output := Resample(input, 16000, 16000)

	if len(output) != len(input) {
		t.Fatalf("Expected identity resample, got length %d", len(output))
	}
	for i := range input {
		if output[i] != input[i] {
			t.Errorf("Sample %d changed: %f vs %f", i, input[i], output[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	// 0.1 seconds at 44100 Hz
	raw := pcm16Bytes(make([]int16, 4410))

	samples := Normalize(raw, 44100)
	expectedLen := 1600
	tolerance := 20
	if len(samples) < expectedLen-tolerance || len(samples) > expectedLen+tolerance {
		t.Errorf("Expected around %d samples, got %d", expectedLen, len(samples))
	}

	if got := Normalize(nil, 44100); got != nil {
		t.Errorf("Expected nil for empty frame, got %v", got)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0.0 {
		t.Errorf("Expected RMS 0 for empty input, got %f", got)
	}

	got := RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 0.0001 {
		t.Errorf("Expected RMS 0.5, got %f", got)
	}
}

func TestSilence(t *testing.T) {
	s := Silence(100)
	if len(s) != 1600 {
		t.Errorf("Expected 1600 samples for 100ms at 16kHz, got %d", len(s))
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("Expected silence, got %f at %d", v, i)
		}
	}
}
