package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// makeWAV builds a minimal 16-bit PCM WAV file holding the interleaved
// samples.
func makeWAV(sampleRate uint32, numChannels uint16, samples []int16) []byte {
	const bitDepth = 16

	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(len(samples)) * 2
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitDepth))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	for _, s := range samples {
		_ = binary.Write(buf, binary.LittleEndian, s)
	}

	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	t.Run("decodes mono 16-bit WAV and reports its rate", func(t *testing.T) {
		data := makeWAV(22050, 1, make([]int16, 100))

		samples, rate, err := DecodeWAV(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(samples) != 100 {
			t.Errorf("got %d samples, want 100", len(samples))
		}

		if rate != 22050 {
			t.Errorf("rate = %d, want 22050", rate)
		}
	})

	t.Run("rejects invalid WAV data", func(t *testing.T) {
		if _, _, err := DecodeWAV([]byte("not a wav file")); err == nil {
			t.Fatal("expected error for invalid WAV")
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, _, err := DecodeWAV(nil); err == nil {
			t.Fatal("expected error for nil input")
		}
	})
}

func TestDownmix(t *testing.T) {
	got := downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadWAVRejectsWrongRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, makeWAV(16000, 1, make([]int16, 10)), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := LoadWAV(path, 22050)
	if !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("LoadWAV error = %v, want ErrFormatMismatch", err)
	}
}

func TestEncodeWAV(t *testing.T) {
	data, err := EncodeWAV(make([]float32, 50), 22050)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data) < 44 {
		t.Fatalf("WAV too short: %d bytes", len(data))
	}

	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header")
	}

	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 22050 {
		t.Errorf("sample rate = %d, want 22050", rate)
	}

	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}

	if _, err := EncodeWAV(nil, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeEncodeRoundtrip(t *testing.T) {
	original := []float32{0.0, 0.5, -0.5, 1.0, -1.0}

	encoded, err := EncodeWAV(original, 22050)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, rate, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if rate != 22050 {
		t.Fatalf("rate = %d, want 22050", rate)
	}

	if len(decoded) != len(original) {
		t.Fatalf("roundtrip: got %d samples, want %d", len(decoded), len(original))
	}

	// 16-bit quantization introduces error up to ~1/32768.
	const tolerance = 1.0 / 32768.0 * 2
	for i, want := range original {
		if math.Abs(float64(decoded[i]-want)) > tolerance {
			t.Errorf("sample[%d] = %f, want %f", i, decoded[i], want)
		}
	}
}
