// Package audio converts client microphone frames into the fixed-rate float
// representation the recognizer consumes. All functions are stateless;
// malformed input yields a nil slice and the frame is dropped upstream.
package audio

import (
	"encoding/base64"
	"math"
)

// TargetSampleRate is the sample rate the recognizer requires
const TargetSampleRate = 16000

// DecodePCM16 converts little-endian 16-bit signed PCM bytes to float samples
// in [-1, 1]. Empty or odd-length input returns nil.
func DecodePCM16(raw []byte) []float32 {
	if len(raw) < 2 || len(raw)%2 != 0 {
		return nil
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		s := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		samples[i] = float32(s) / 32767.0
	}
	return samples
}

// DecodeBase64PCM16 decodes a base64 text frame and converts it like DecodePCM16
func DecodeBase64PCM16(s string) []float32 {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return DecodePCM16(raw)
}

// EncodePCM16 converts float samples back to little-endian 16-bit signed PCM
// bytes for the recognizer wire. Samples are clamped to [-1, 1].
func EncodePCM16(samples []float32) []byte {
	raw := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}
		s := int16(f * 32767.0)
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(s >> 8)
	}
	return raw
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Identity when the rates match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(dstRate) / float64(srcRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// Normalize decodes a raw binary PCM16 frame and resamples it to the
// recognizer's target rate. Returns nil for frames that decode to nothing.
func Normalize(raw []byte, srcRate int) []float32 {
	samples := DecodePCM16(raw)
	if len(samples) == 0 {
		return nil
	}
	return Resample(samples, srcRate, TargetSampleRate)
}

// NormalizeBase64 is the text-frame variant of Normalize
func NormalizeBase64(s string, srcRate int) []float32 {
	samples := DecodeBase64PCM16(s)
	if len(samples) == 0 {
		return nil
	}
	return Resample(samples, srcRate, TargetSampleRate)
}

// RMS calculates the root mean square of float samples.
// Useful for logging inbound audio levels.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Silence returns a buffer of silent samples covering the given duration in
// milliseconds at the target rate. Used for recognizer priming and keepalive.
func Silence(durationMs int) []float32 {
	n := TargetSampleRate * durationMs / 1000
	return make([]float32, n)
}
