package config

import (
	"fmt"
	"strings"
)

const (
	EncoderSimple        = "simple"
	EncoderShared        = "shared"
	EncoderSeparate      = "separate"
	EncoderConvolutional = "convolutional"

	AttentionLocationSensitive = "location_sensitive"
	AttentionForward           = "forward"
	AttentionForwardTransition = "forward_transition_agent"

	RegularizationDropout = "dropout"
	RegularizationZoneout = "zoneout"

	EmbeddingSimple   = "simple"
	EmbeddingConstant = "constant"

	ClassifierReversal = "reversal"
	ClassifierCosine   = "cosine"

	ParallelData  = "data"
	ParallelModel = "model"
)

func NormalizeEncoderType(raw string) (string, error) {
	return normalizeChoice("encoder type", raw, EncoderSimple, EncoderSimple, EncoderShared, EncoderSeparate, EncoderConvolutional)
}

func NormalizeAttentionType(raw string) (string, error) {
	return normalizeChoice("attention type", raw, AttentionLocationSensitive,
		AttentionLocationSensitive, AttentionForward, AttentionForwardTransition)
}

func NormalizeRegularization(raw string) (string, error) {
	return normalizeChoice("decoder regularization", raw, RegularizationDropout, RegularizationDropout, RegularizationZoneout)
}

func NormalizeEmbeddingType(raw string) (string, error) {
	return normalizeChoice("embedding type", raw, EmbeddingSimple, EmbeddingSimple, EmbeddingConstant)
}

func NormalizeParallelization(raw string) (string, error) {
	return normalizeChoice("parallelization", raw, ParallelData, ParallelData, ParallelModel)
}

func normalizeChoice(what, raw, fallback string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return fallback, nil
	}

	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}

	return "", fmt.Errorf("%w: invalid %s %q (expected %s)", ErrInvalidConfig, what, raw, strings.Join(allowed, "|"))
}

// Validate normalizes the variant selectors in place and rejects
// combinations the model cannot be built from. It runs once at startup so
// a bad batch/split combination never surfaces mid-run.
func Validate(cfg *Config) error {
	var err error

	if cfg.Model.EncoderType, err = NormalizeEncoderType(cfg.Model.EncoderType); err != nil {
		return err
	}

	if cfg.Model.AttentionType, err = NormalizeAttentionType(cfg.Model.AttentionType); err != nil {
		return err
	}

	if cfg.Model.DecoderRegularization, err = NormalizeRegularization(cfg.Model.DecoderRegularization); err != nil {
		return err
	}

	if cfg.Model.EmbeddingType, err = NormalizeEmbeddingType(cfg.Model.EmbeddingType); err != nil {
		return err
	}

	if cfg.Training.Parallelization, err = NormalizeParallelization(cfg.Training.Parallelization); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Model.ReversalClassifierType)) {
	case "", ClassifierReversal:
		cfg.Model.ReversalClassifierType = ClassifierReversal
	case ClassifierCosine:
		return fmt.Errorf("%w: cosine similarity classifier is not supported", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: invalid classifier type %q", ErrInvalidConfig, cfg.Model.ReversalClassifierType)
	}

	if cfg.Text.PerLanguagePhonemes {
		return fmt.Errorf("%w: per-language phoneme dictionaries are not supported", ErrInvalidConfig)
	}

	if len(cfg.Dataset.Languages) == 0 {
		return fmt.Errorf("%w: dataset.languages must not be empty", ErrInvalidConfig)
	}

	if cfg.Audio.NumMels <= 0 || cfg.Audio.NumFFT <= 0 || cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: audio.num_mels, audio.num_fft and audio.sample_rate must be positive", ErrInvalidConfig)
	}

	if cfg.Model.PrenetLayers < 1 {
		return fmt.Errorf("%w: model.prenet_layers must be >= 1, got %d", ErrInvalidConfig, cfg.Model.PrenetLayers)
	}

	if cfg.Model.PostnetBlocks < 2 {
		return fmt.Errorf("%w: model.postnet_blocks must be >= 2, got %d", ErrInvalidConfig, cfg.Model.PostnetBlocks)
	}

	if cfg.Model.StopFrames < 0 || cfg.Model.MaxOutputLength <= 0 {
		return fmt.Errorf("%w: model.stop_frames must be >= 0 and model.max_output_length > 0", ErrInvalidConfig)
	}

	if cfg.Model.MultiSpeaker && cfg.Model.EmbeddingType == EmbeddingSimple && cfg.Model.SpeakerNumber <= 0 {
		return fmt.Errorf("%w: model.speaker_number must be set when multi_speaker is enabled", ErrInvalidConfig)
	}

	if cfg.Training.TeacherForcing < 0 || cfg.Training.TeacherForcing > 1 {
		return fmt.Errorf("%w: training.teacher_forcing must be in [0, 1], got %v", ErrInvalidConfig, cfg.Training.TeacherForcing)
	}

	if cfg.Training.BatchSize <= 0 {
		return fmt.Errorf("%w: training.batch_size must be positive", ErrInvalidConfig)
	}

	if cfg.Dataset.BalancedSampling {
		if !cfg.Model.MultiLanguage {
			return fmt.Errorf("%w: dataset.balanced_sampling requires model.multi_language", ErrInvalidConfig)
		}

		if n := len(cfg.Dataset.Languages); cfg.Dataset.PerfectSampling && cfg.Training.BatchSize%n != 0 {
			return fmt.Errorf("%w: batch size %d must be divisible by the %d languages for perfect sampling",
				ErrInvalidConfig, cfg.Training.BatchSize, n)
		}
	}

	if cfg.Training.Parallelization == ParallelModel {
		split := cfg.Training.ModelParallelSplitSize
		if split <= 0 || cfg.Training.BatchSize%split != 0 {
			return fmt.Errorf("%w: batch size %d must be divisible by model parallel split size %d",
				ErrInvalidConfig, cfg.Training.BatchSize, split)
		}
	}

	return nil
}
