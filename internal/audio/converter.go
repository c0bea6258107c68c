package audio

import (
	"errors"
	"fmt"
	"math"
)

// Encoder transforms a captured chunk before it leaves the recorder
type Encoder func(chunk []byte) ([]byte, error)

// ErrOddLength is returned for 16-bit PCM input with a dangling byte
var ErrOddLength = errors.New("PCM data length must be even (16-bit samples)")

// NewEncoder returns the chunk encoder for an AUDIO_ENCODING value.
// linear16 passes audio through untouched; mulaw converts to 8kHz G.711 PCMU.
func NewEncoder(encoding string, sampleRate int) (Encoder, error) {
	switch encoding {
	case "", "linear16":
		return nil, nil
	case "mulaw":
		return func(chunk []byte) ([]byte, error) {
			return ConvertPCMToPCMU(chunk, sampleRate, 8000)
		}, nil
	}
	return nil, fmt.Errorf("unsupported audio encoding %q", encoding)
}

// BytesToSamples decodes little-endian 16-bit PCM
func BytesToSamples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ConvertPCMToPCMU converts 16-bit little-endian PCM to G.711 PCMU (μ-law),
// resampling first when the rates differ
func ConvertPCMToPCMU(pcmData []byte, inputSampleRate, outputSampleRate int) ([]byte, error) {
	if len(pcmData) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	samples, err := BytesToSamples(pcmData)
	if err != nil {
		return nil, err
	}

	samples = resample(samples, inputSampleRate, outputSampleRate)

	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToMulaw(s)
	}
	return out, nil
}

// ConvertPCMUToPCM decodes G.711 PCMU into 16-bit little-endian PCM
func ConvertPCMUToPCM(pcmuData []byte) ([]byte, error) {
	if len(pcmuData) == 0 {
		return nil, fmt.Errorf("empty PCMU data")
	}
	samples := make([]int16, len(pcmuData))
	for i, b := range pcmuData {
		samples[i] = mulawToLinear(b)
	}
	return SamplesToBytes(samples), nil
}

// resample uses linear interpolation; adequate for speech headed to an STT model
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	output := make([]int16, int(float64(len(samples))*ratio))
	last := len(samples) - 1

	for i := range output {
		pos := float64(i) / ratio
		idx0 := int(pos)
		if idx0 > last {
			idx0 = last
		}
		idx1 := idx0 + 1
		if idx1 > last {
			idx1 = last
		}
		frac := pos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-frac) + float64(samples[idx1])*frac)
	}
	return output
}

const (
	mulawClip = 8159
	mulawBias = 0x21
)

// linearToMulaw implements the ITU-T G.711 μ-law compressor
func linearToMulaw(sample int16) byte {
	var sign byte
	magnitude := int32(sample)
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	if magnitude > mulawClip {
		magnitude = mulawClip
	}
	magnitude += mulawBias

	// segment is the position of the highest set bit above bit 5
	segment := byte(0)
	for v := magnitude >> 6; v != 0 && segment < 7; v >>= 1 {
		segment++
	}

	mantissa := byte((magnitude >> (segment + 1)) & 0x0F)
	return ^(sign | segment<<4 | mantissa)
}

// mulawToLinear implements the G.711 μ-law expander
func mulawToLinear(b byte) int16 {
	b = ^b
	segment := int32((b >> 4) & 0x07)
	mantissa := int32(b & 0x0F)

	magnitude := (mantissa << (segment + 1)) + (mulawBias << segment) - mulawBias
	if b&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// CalculateRMS returns the root mean square of the samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// LevelDBFS returns the chunk level in dBFS, or -Inf for silence or undecodable input
func LevelDBFS(pcm []byte) float64 {
	samples, err := BytesToSamples(pcm)
	if err != nil {
		return math.Inf(-1)
	}
	rms := CalculateRMS(samples)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768.0)
}
