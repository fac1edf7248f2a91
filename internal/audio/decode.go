package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
)

// ErrFormatMismatch is returned when a decoded WAV does not match the
// configured sample rate or uses an unsupported layout.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// DecodeWAV decodes WAV bytes into mono float32 PCM samples and reports the
// file's sample rate. Multi-channel input is averaged down to one channel.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrFormatMismatch, channels)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	return downmix(buf.Data, channels), int(dec.SampleRate), nil
}

// LoadWAV reads a WAV file and checks that it was recorded at sampleRate.
func LoadWAV(path string, sampleRate int) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio %s: %w", path, err)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", path, err)
	}

	if rate != sampleRate {
		return nil, fmt.Errorf("%w: %s has sample rate %d, want %d", ErrFormatMismatch, path, rate, sampleRate)
	}

	return samples, nil
}

func downmix(interleaved []float32, channels int) []float32 {
	if channels == 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	inv := 1 / float32(channels)

	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}

		out[i] = sum * inv
	}

	return out
}
