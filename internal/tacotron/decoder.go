package tacotron

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// conditioning is a speaker or language embedding appended to every
// encoder step. A nil table yields a constant zero vector.
type conditioning struct {
	table *nn.Embedding
	dim   int
}

func newConditioning(p nn.Path, kind string, count, dim int) (*conditioning, error) {
	if kind == config.EmbeddingConstant {
		return &conditioning{dim: dim}, nil
	}

	table, err := nn.NewEmbedding(p, count, dim)
	if err != nil {
		return nil, err
	}

	return &conditioning{table: table, dim: dim}, nil
}

func (c *conditioning) vectors(ids []int, batch int) (*tensor.Tensor, error) {
	if c.table == nil {
		return tensor.Zeros([]int64{int64(batch), int64(c.dim)})
	}

	if len(ids) != batch {
		return nil, fmt.Errorf("tacotron: conditioning needs %d ids, got %d", batch, len(ids))
	}

	return c.table.Lookup(ids)
}

// Decoder predicts mel frames autoregressively: the attention LSTM reads
// the prenet output and previous context, attention produces a new context,
// and the generator LSTM feeds the frame and stop projections.
type Decoder struct {
	prenet       *nn.Prenet
	attention    Attention
	attentionRNN nn.RecurrentCell
	generatorRNN nn.RecurrentCell
	frame        *nn.Linear
	stop         *nn.Linear
	speaker      *conditioning
	language     *conditioning

	numMels    int
	memoryDim  int
	stopFrames int
	maxFrames  int
}

// DecoderOutput holds per-frame predictions of a decoder run.
type DecoderOutput struct {
	Mel        *tensor.Tensor // [B, num_mels, F]
	StopLogits *tensor.Tensor // [B, F]
	Alignments *tensor.Tensor // [B, F, T]
}

// DecoderInference is the result of a free-running decode.
type DecoderInference struct {
	DecoderOutput
	// Truncated reports that the frame cap was reached before the stop
	// countdown finished.
	Truncated bool
}

// NewDecoder builds a decoder over encoder states of width encodedDim.
// Speaker and language conditioning, when enabled, widen the memory.
func NewDecoder(p nn.Path, cfg config.Config, encodedDim int) (*Decoder, error) {
	mc := cfg.Model
	d := &Decoder{
		numMels:    cfg.Audio.NumMels,
		memoryDim:  encodedDim,
		stopFrames: mc.StopFrames,
		maxFrames:  mc.MaxOutputLength,
	}

	var err error

	if mc.MultiSpeaker {
		if d.speaker, err = newConditioning(p.Sub("speaker_embedding"), mc.EmbeddingType, mc.SpeakerNumber, mc.SpeakerEmbeddingDimension); err != nil {
			return nil, err
		}

		d.memoryDim += mc.SpeakerEmbeddingDimension
	}

	if mc.MultiLanguage {
		if d.language, err = newConditioning(p.Sub("language_embedding"), mc.EmbeddingType, len(cfg.Dataset.Languages), mc.LanguageEmbeddingDimension); err != nil {
			return nil, err
		}

		d.memoryDim += mc.LanguageEmbeddingDimension
	}

	if d.prenet, err = nn.NewPrenet(p.Sub("prenet"), d.numMels, mc.PrenetDimension, mc.PrenetLayers, mc.Dropout); err != nil {
		return nil, err
	}

	if d.attention, err = NewAttention(p.Sub("attention"), mc, d.memoryDim); err != nil {
		return nil, err
	}

	if d.attentionRNN, err = newRecurrentCell(p.Sub("attention_lstm"), mc, d.memoryDim+mc.PrenetDimension); err != nil {
		return nil, err
	}

	if d.generatorRNN, err = newRecurrentCell(p.Sub("generator_lstm"), mc, d.memoryDim+mc.DecoderDimension); err != nil {
		return nil, err
	}

	if d.frame, err = nn.NewLinear(p.Sub("frame_prediction"), d.memoryDim+mc.DecoderDimension, d.numMels, true); err != nil {
		return nil, err
	}

	if d.stop, err = nn.NewLinear(p.Sub("stop_prediction"), d.memoryDim+mc.DecoderDimension, 1, true); err != nil {
		return nil, err
	}

	return d, nil
}

func newRecurrentCell(p nn.Path, mc config.ModelConfig, in int) (nn.RecurrentCell, error) {
	cell, err := nn.NewLSTMCell(p, in, mc.DecoderDimension)
	if err != nil {
		return nil, err
	}

	if mc.DecoderRegularization == config.RegularizationZoneout {
		return &nn.ZoneoutLSTMCell{Cell: cell, Hidden: mc.ZoneoutHidden, Memory: mc.ZoneoutCell}, nil
	}

	return &nn.DropoutLSTMCell{Cell: cell, Dropout: mc.DropoutHidden}, nil
}

// MemoryDim is the width of encoder states after conditioning.
func (d *Decoder) MemoryDim() int { return d.memoryDim }

// decodeState is local to one decoder call.
type decodeState struct {
	attention nn.LSTMState
	generator nn.LSTMState
	align     AttentionState
	context   *tensor.Tensor
}

func (d *Decoder) condition(encoded *tensor.Tensor, speakers, languages []int) (*tensor.Tensor, error) {
	batch := encoded.Dim(0)
	memory := encoded

	for _, c := range []struct {
		emb *conditioning
		ids []int
	}{{d.speaker, speakers}, {d.language, languages}} {
		if c.emb == nil {
			continue
		}

		v, err := c.emb.vectors(c.ids, batch)
		if err != nil {
			return nil, err
		}

		if memory, err = appendPerStep(memory, v); err != nil {
			return nil, err
		}
	}

	if memory.Dim(2) != d.memoryDim {
		return nil, fmt.Errorf("tacotron: decoder memory width %d, want %d", memory.Dim(2), d.memoryDim)
	}

	return memory, nil
}

func (d *Decoder) start(memory *tensor.Tensor, mask [][]bool) (*decodeState, error) {
	batch := memory.Dim(0)

	align, err := d.attention.Start(memory, mask)
	if err != nil {
		return nil, err
	}

	return &decodeState{
		attention: d.attentionRNN.ZeroState(batch),
		generator: d.generatorRNN.ZeroState(batch),
		align:     align,
		context:   tensor.MustZeros(int64(batch), int64(d.memoryDim)),
	}, nil
}

// step consumes the previous frame [B, num_mels] and returns the next
// frame, its stop logit [B, 1] and the alignment [B, T].
func (d *Decoder) step(s *decodeState, previous *tensor.Tensor, m nn.Mode) (frame, stop, weights *tensor.Tensor, err error) {
	pre, err := d.prenet.Forward(previous, m.RNG)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: prenet: %w", err)
	}

	in, err := tensor.Concat([]*tensor.Tensor{pre, s.context}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	if s.attention, err = d.attentionRNN.Step(in, s.attention, m); err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: attention lstm: %w", err)
	}

	if s.context, weights, err = s.align.Step(s.attention.H, pre); err != nil {
		return nil, nil, nil, err
	}

	in, err = tensor.Concat([]*tensor.Tensor{s.attention.H, s.context}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	if s.generator, err = d.generatorRNN.Step(in, s.generator, m); err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: generator lstm: %w", err)
	}

	proto, err := tensor.Concat([]*tensor.Tensor{s.generator.H, s.context}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	if frame, err = d.frame.Forward(proto); err != nil {
		return nil, nil, nil, err
	}

	if stop, err = d.stop.Forward(proto); err != nil {
		return nil, nil, nil, err
	}

	return frame, stop, weights, nil
}

// frameRecorder accumulates step outputs into [B, M, F], [B, F] and
// [B, F, T] layouts.
type frameRecorder struct {
	batch, bins, steps int
	frames             [][]float32 // per step, [B*M]
	stops              [][]float32 // per step, [B]
	weights            [][]float32 // per step, [B*T]
}

func (r *frameRecorder) add(frame, stop, weights *tensor.Tensor) {
	r.frames = append(r.frames, frame.Data())
	r.stops = append(r.stops, stop.Data())
	r.weights = append(r.weights, weights.Data())
}

func (r *frameRecorder) output() *DecoderOutput {
	n := len(r.frames)
	mel := tensor.MustZeros(int64(r.batch), int64(r.bins), int64(n))
	stop := tensor.MustZeros(int64(r.batch), int64(n))
	align := tensor.MustZeros(int64(r.batch), int64(n), int64(r.steps))
	md, sd, ad := mel.RawData(), stop.RawData(), align.RawData()

	for f := range n {
		for b := range r.batch {
			for m := range r.bins {
				md[(b*r.bins+m)*n+f] = r.frames[f][b*r.bins+m]
			}

			sd[b*n+f] = r.stops[f][b]
			copy(ad[(b*n+f)*r.steps:(b*n+f+1)*r.steps], r.weights[f][b*r.steps:(b+1)*r.steps])
		}
	}

	return &DecoderOutput{Mel: mel, StopLogits: stop, Alignments: align}
}

// Forward decodes as many frames as target [B, num_mels, F] has. For each
// frame index a single draw shared by the whole batch decides whether the
// previous ground-truth frame or the previous prediction is fed back; the
// first step always starts from a zero frame.
func (d *Decoder) Forward(encoded *tensor.Tensor, lengths []int, target *tensor.Tensor, ratio float64, speakers, languages []int, m nn.Mode) (*DecoderOutput, error) {
	if target == nil || target.Rank() != 3 || target.Dim(1) != d.numMels {
		return nil, fmt.Errorf("tacotron: decoder target must be [B, %d, F], got %v", d.numMels, target.Shape())
	}

	batch, steps := encoded.Dim(0), encoded.Dim(1)
	if target.Dim(0) != batch || len(lengths) != batch {
		return nil, errors.New("tacotron: decoder batch size mismatch")
	}

	memory, err := d.condition(encoded, speakers, languages)
	if err != nil {
		return nil, err
	}

	s, err := d.start(memory, lengthsMask(lengths, steps))
	if err != nil {
		return nil, err
	}

	rec := &frameRecorder{batch: batch, bins: d.numMels, steps: steps}
	zero := tensor.MustZeros(int64(batch), int64(d.numMels))
	predicted := zero

	for i := range target.Dim(2) {
		input := predicted
		if m.RNG.Float64() < ratio {
			input = zero
			if i > 0 {
				input = frameAt(target, i-1)
			}
		}

		frame, stop, weights, err := d.step(s, input, m)
		if err != nil {
			return nil, fmt.Errorf("tacotron: decoder step %d: %w", i, err)
		}

		rec.add(frame, stop, weights)
		predicted = frame
	}

	return rec.output(), nil
}

// Inference decodes a single utterance without teacher forcing and returns
// the mel spectrogram [1, num_mels, F].
func (d *Decoder) Inference(encoded *tensor.Tensor, speaker, language int, m nn.Mode) (*tensor.Tensor, error) {
	out, err := d.InferenceDetailed(encoded, speaker, language, m)
	if err != nil {
		return nil, err
	}

	return out.Mel, nil
}

// InferenceDetailed decodes encoded [1, T, D] until the stop countdown
// ends or the frame cap is hit. The first frame whose stop probability
// reaches 0.5 arms a countdown of stop_frames further frames; the
// countdown is not reset by later predictions. A detection at step i
// therefore yields i + stop_frames + 1 frames.
func (d *Decoder) InferenceDetailed(encoded *tensor.Tensor, speaker, language int, m nn.Mode) (*DecoderInference, error) {
	if encoded.Rank() != 3 || encoded.Dim(0) != 1 {
		return nil, fmt.Errorf("tacotron: inference expects a single utterance, got %v", encoded.Shape())
	}

	memory, err := d.condition(encoded, []int{speaker}, []int{language})
	if err != nil {
		return nil, err
	}

	steps := encoded.Dim(1)

	s, err := d.start(memory, nil)
	if err != nil {
		return nil, err
	}

	rec := &frameRecorder{batch: 1, bins: d.numMels, steps: steps}
	previous := tensor.MustZeros(1, int64(d.numMels))
	countdown := newStopCountdown(d.stopFrames)
	stopped := false

	for i := 0; i < d.maxFrames && !stopped; i++ {
		frame, stop, weights, err := d.step(s, previous, m)
		if err != nil {
			return nil, fmt.Errorf("tacotron: decoder step %d: %w", i, err)
		}

		rec.add(frame, stop, weights)
		previous = frame
		stopped = countdown.observe(float64(tensor.SigmoidScalar(stop.At(0, 0))))
	}

	if !stopped {
		slog.Warn("decoder reached max output length without stopping", "frames", d.maxFrames)
	}

	return &DecoderInference{DecoderOutput: *rec.output(), Truncated: !stopped}, nil
}

// stopCountdown ends decoding stop_frames frames after the first stop
// detection. Later predictions below the threshold do not disarm it.
type stopCountdown struct {
	frames    int
	remaining int // -1 until armed
}

func newStopCountdown(frames int) *stopCountdown {
	return &stopCountdown{frames: frames, remaining: -1}
}

// observe takes the stop probability of the frame just emitted and reports
// whether it is the last one.
func (c *stopCountdown) observe(p float64) bool {
	if c.remaining < 0 && p >= 0.5 {
		c.remaining = c.frames
	}

	switch {
	case c.remaining == 0:
		return true
	case c.remaining > 0:
		c.remaining--
	}

	return false
}
