package audio

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/example/go-tacotron/internal/config"
)

// minLevel floors magnitudes before the dB conversion.
const minLevel = 1e-5

// Extractor computes log-magnitude mel and linear spectrograms with the
// STFT parameters of an AudioConfig. Spectrograms are laid out
// [bins][frames].
type Extractor struct {
	cfg       config.AudioConfig
	fftSize   int
	winLength int
	hop       int
	window    []float64
	mel       *MelFilterbank
}

func NewExtractor(cfg config.AudioConfig) (*Extractor, error) {
	if cfg.SampleRate <= 0 || cfg.NumFFT <= 1 || cfg.NumMels <= 0 {
		return nil, fmt.Errorf("audio: invalid feature config (sample_rate=%d num_fft=%d num_mels=%d)", cfg.SampleRate, cfg.NumFFT, cfg.NumMels)
	}

	winLength := min(int(float64(cfg.SampleRate)*cfg.STFTWindowMs/1000), cfg.NumFFT)
	hop := int(float64(cfg.SampleRate) * cfg.STFTShiftMs / 1000)

	if winLength < 2 || hop < 1 {
		return nil, fmt.Errorf("audio: window %d / hop %d samples too small", winLength, hop)
	}

	// Hann window of winLength samples centred in the FFT frame.
	win := make([]float64, cfg.NumFFT)
	offset := (cfg.NumFFT - winLength) / 2

	for i := range winLength {
		win[offset+i] = 1
	}

	window.Hann(win[offset : offset+winLength])

	return &Extractor{
		cfg:       cfg,
		fftSize:   cfg.NumFFT,
		winLength: winLength,
		hop:       hop,
		window:    win,
		mel:       NewMelFilterbank(cfg.NumMels, cfg.NumFFT, cfg.SampleRate, 0, float64(cfg.SampleRate)/2),
	}, nil
}

// NumBins returns the frequency dimension of mel or linear spectrograms.
func (e *Extractor) NumBins(isMel bool) int {
	if isMel {
		return e.cfg.NumMels
	}

	return e.fftSize/2 + 1
}

// Hop returns the frame shift in samples.
func (e *Extractor) Hop() int { return e.hop }

// Spectrogram returns the dB-scaled mel (isMel) or linear magnitude
// spectrogram of samples, shaped [bins][frames].
func (e *Extractor) Spectrogram(samples []float32, isMel bool) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, errors.New("audio: empty signal")
	}

	signal := make([]float64, len(samples))
	for i, s := range samples {
		signal[i] = float64(s)
	}

	if e.cfg.UsePreemphasis {
		for i := len(signal) - 1; i > 0; i-- {
			signal[i] -= e.cfg.Preemphasis * signal[i-1]
		}
	}

	frames := e.stft(signal)
	bins := e.NumBins(isMel)

	out := make([][]float32, bins)
	for b := range out {
		out[b] = make([]float32, len(frames))
	}

	mag := make([]float64, e.fftSize/2+1)
	melBuf := make([]float64, e.cfg.NumMels)

	for t, coeffs := range frames {
		for k, c := range coeffs {
			mag[k] = cmplx.Abs(c)
		}

		values := mag
		if isMel {
			values = e.mel.Apply(mag, melBuf)
		}

		for b, v := range values {
			out[b][t] = float32(amplitudeToDB(v))
		}
	}

	return out, nil
}

// stft pads the signal by half an FFT frame on both sides and returns the
// complex spectrum of each hop.
func (e *Extractor) stft(signal []float64) [][]complex128 {
	pad := e.fftSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	n := 1 + (len(padded)-e.fftSize)/e.hop
	fft := fourier.NewFFT(e.fftSize)
	frame := make([]float64, e.fftSize)
	out := make([][]complex128, n)

	for t := range n {
		seg := padded[t*e.hop : t*e.hop+e.fftSize]
		for i, v := range seg {
			frame[i] = v * e.window[i]
		}

		out[t] = fft.Coefficients(nil, frame)
	}

	return out
}

// istft overlap-adds the inverse transform of each frame and undoes the
// centre padding of stft.
func (e *Extractor) istft(frames [][]complex128) []float64 {
	pad := e.fftSize / 2
	total := e.fftSize + (len(frames)-1)*e.hop
	out := make([]float64, total)
	norm := make([]float64, total)
	fft := fourier.NewFFT(e.fftSize)
	seq := make([]float64, e.fftSize)
	scale := 1 / float64(e.fftSize)

	for t, coeffs := range frames {
		fft.Sequence(seq, coeffs)

		base := t * e.hop
		for i, v := range seq {
			w := e.window[i]
			out[base+i] += v * scale * w
			norm[base+i] += w * w
		}
	}

	for i := range out {
		if norm[i] > 1e-8 {
			out[i] /= norm[i]
		}
	}

	end := max(total-pad, pad)

	return out[pad:end]
}

// GriffinLim reconstructs a waveform from a dB-scaled spectrogram laid out
// [bins][frames]. Mel input is spread back to linear bins first. Magnitudes
// are raised to power before phase estimation, and pre-emphasis is undone
// when the config enables it.
func (e *Extractor) GriffinLim(spec [][]float32, isMel bool, iters int, power float64) ([]float32, error) {
	if len(spec) != e.NumBins(isMel) {
		return nil, fmt.Errorf("audio: spectrogram has %d bins, want %d", len(spec), e.NumBins(isMel))
	}

	numFrames := len(spec[0])
	if numFrames == 0 {
		return nil, errors.New("audio: spectrogram has no frames")
	}

	nBins := e.fftSize/2 + 1
	mag := make([][]float64, numFrames)
	col := make([]float64, len(spec))

	for t := range numFrames {
		for b := range spec {
			col[b] = dbToAmplitude(float64(spec[b][t]))
		}

		if isMel {
			mag[t] = e.mel.Invert(col, nil)
		} else {
			mag[t] = append([]float64(nil), col...)
		}

		for k := range mag[t] {
			mag[t][k] = math.Pow(mag[t][k], power)
		}
	}

	frames := make([][]complex128, numFrames)
	for t := range frames {
		frames[t] = make([]complex128, nBins)
		for k, m := range mag[t] {
			frames[t][k] = complex(m, 0)
		}
	}

	signal := e.istft(frames)

	for range iters {
		est := e.stft(signal)

		for t := range min(len(est), numFrames) {
			for k, c := range est[t] {
				phase := cmplx.Phase(c)
				frames[t][k] = cmplx.Rect(mag[t][k], phase)
			}
		}

		signal = e.istft(frames)
	}

	out := make([]float32, len(signal))
	for i, v := range signal {
		out[i] = float32(v)
	}

	if e.cfg.UsePreemphasis {
		out = Deemphasis(out, e.cfg.Preemphasis)
	}

	return PeakNormalize(out), nil
}

func amplitudeToDB(x float64) float64 {
	return 20 * math.Log10(math.Max(minLevel, x))
}

func dbToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}
