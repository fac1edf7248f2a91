package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Validate for settings that cannot produce a
// working model or dataset.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Text     TextConfig     `mapstructure:"text"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Model    ModelConfig    `mapstructure:"model"`
	Training TrainingConfig `mapstructure:"training"`
	Server   ServerConfig   `mapstructure:"server"`
	LogLevel string         `mapstructure:"log_level"`
}

type PathsConfig struct {
	DatasetRoot       string `mapstructure:"dataset_root"`
	TrainFile         string `mapstructure:"train_file"`
	ValFile           string `mapstructure:"val_file"`
	TestFile          string `mapstructure:"test_file"`
	Checkpoint        string `mapstructure:"checkpoint"`
	NormalizationFile string `mapstructure:"normalization_file"`
}

type DatasetConfig struct {
	Languages         []string `mapstructure:"languages"`
	CacheSpectrograms bool     `mapstructure:"cache_spectrograms"`
	Workers           int      `mapstructure:"workers"`
	// BalancedSampling draws batches so every language is equally
	// represented. PerfectSampling additionally gives each batch the same
	// number of examples per language, grouped by language.
	BalancedSampling bool `mapstructure:"balanced_sampling"`
	PerfectSampling  bool `mapstructure:"perfect_sampling"`
}

type TextConfig struct {
	Characters                string `mapstructure:"characters"`
	Phonemes                  string `mapstructure:"phonemes"`
	UsePhonemes               bool   `mapstructure:"use_phonemes"`
	UsePunctuation            bool   `mapstructure:"use_punctuation"`
	PunctuationsOut           string `mapstructure:"punctuations_out"`
	PunctuationsIn            string `mapstructure:"punctuations_in"`
	CaseSensitive             bool   `mapstructure:"case_sensitive"`
	RemoveMultipleWhitespaces bool   `mapstructure:"remove_multiple_wspaces"`
	PerLanguagePhonemes       bool   `mapstructure:"per_language_phonemes"`
}

type AudioConfig struct {
	SampleRate           int     `mapstructure:"sample_rate"`
	NumFFT               int     `mapstructure:"num_fft"`
	NumMels              int     `mapstructure:"num_mels"`
	STFTWindowMs         float64 `mapstructure:"stft_window_ms"`
	STFTShiftMs          float64 `mapstructure:"stft_shift_ms"`
	NormalizeSpectrogram bool    `mapstructure:"normalize_spectrogram"`
	UsePreemphasis       bool    `mapstructure:"use_preemphasis"`
	Preemphasis          float64 `mapstructure:"preemphasis"`
	GriffinLimIters      int     `mapstructure:"griffin_lim_iters"`
	GriffinLimPower      float64 `mapstructure:"griffin_lim_power"`
}

type ModelConfig struct {
	EmbeddingDimension         int     `mapstructure:"embedding_dimension"`
	EncoderDisabled            bool    `mapstructure:"encoder_disabled"`
	EncoderType                string  `mapstructure:"encoder_type"`
	EncoderDimension           int     `mapstructure:"encoder_dimension"`
	EncoderBlocks              int     `mapstructure:"encoder_blocks"`
	EncoderKernelSize          int     `mapstructure:"encoder_kernel_size"`
	InputLanguageEmbedding     int     `mapstructure:"input_language_embedding"`
	PrenetDimension            int     `mapstructure:"prenet_dimension"`
	PrenetLayers               int     `mapstructure:"prenet_layers"`
	AttentionType              string  `mapstructure:"attention_type"`
	AttentionDimension         int     `mapstructure:"attention_dimension"`
	AttentionKernelSize        int     `mapstructure:"attention_kernel_size"`
	AttentionLocationDimension int     `mapstructure:"attention_location_dimension"`
	DecoderDimension           int     `mapstructure:"decoder_dimension"`
	DecoderRegularization      string  `mapstructure:"decoder_regularization"`
	ZoneoutHidden              float64 `mapstructure:"zoneout_hidden"`
	ZoneoutCell                float64 `mapstructure:"zoneout_cell"`
	DropoutHidden              float64 `mapstructure:"dropout_hidden"`
	PostnetDimension           int     `mapstructure:"postnet_dimension"`
	PostnetBlocks              int     `mapstructure:"postnet_blocks"`
	PostnetKernelSize          int     `mapstructure:"postnet_kernel_size"`
	Dropout                    float64 `mapstructure:"dropout"`
	PredictLinear              bool    `mapstructure:"predict_linear"`
	ResidualEncoder            bool    `mapstructure:"residual_encoder"`
	ResidualLatentDimension    int     `mapstructure:"residual_latent_dimension"`
	MultiSpeaker               bool    `mapstructure:"multi_speaker"`
	MultiLanguage              bool    `mapstructure:"multi_language"`
	EmbeddingType              string  `mapstructure:"embedding_type"`
	SpeakerEmbeddingDimension  int     `mapstructure:"speaker_embedding_dimension"`
	LanguageEmbeddingDimension int     `mapstructure:"language_embedding_dimension"`
	SpeakerNumber              int     `mapstructure:"speaker_number"`
	ReversalClassifier         bool    `mapstructure:"reversal_classifier"`
	ReversalClassifierType     string  `mapstructure:"reversal_classifier_type"`
	ReversalClassifierDim      int     `mapstructure:"reversal_classifier_dim"`
	ReversalGradientClipping   float64 `mapstructure:"reversal_gradient_clipping"`
	ReversalLambda             float64 `mapstructure:"reversal_lambda"`
	StopFrames                 int     `mapstructure:"stop_frames"`
	MaxOutputLength            int     `mapstructure:"max_output_length"`
}

type TrainingConfig struct {
	BatchSize                 int     `mapstructure:"batch_size"`
	Seed                      int64   `mapstructure:"seed"`
	Threads                   int     `mapstructure:"threads"`
	GuidedAttentionLoss       bool    `mapstructure:"guided_attention_loss"`
	GuidedAttentionSteps      int     `mapstructure:"guided_attention_steps"`
	GuidedAttentionToleration float64 `mapstructure:"guided_attention_toleration"`
	GuidedAttentionGain       float64 `mapstructure:"guided_attention_gain"`
	ConstantTeacherForcing    bool    `mapstructure:"constant_teacher_forcing"`
	TeacherForcing            float64 `mapstructure:"teacher_forcing"`
	TeacherForcingSteps       int     `mapstructure:"teacher_forcing_steps"`
	TeacherForcingStartSteps  int     `mapstructure:"teacher_forcing_start_steps"`
	Parallelization           string  `mapstructure:"parallelization"`
	ModelParallelSplitSize    int     `mapstructure:"modelparallel_split_size"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			DatasetRoot:       "data",
			TrainFile:         "train.txt",
			ValFile:           "val.txt",
			TestFile:          "",
			Checkpoint:        "checkpoints/tacotron.safetensors",
			NormalizationFile: "data/normalization.safetensors",
		},
		Dataset: DatasetConfig{
			Languages:         []string{"en-us"},
			CacheSpectrograms: true,
			Workers:           4,
		},
		Text: TextConfig{
			Characters:                "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz ",
			Phonemes:                  "ɹɐpbtdkɡfvθðszʃʒhmnŋlrwjeəɪɒuːɛiaʌʊɑɜɔx ",
			UsePhonemes:               false,
			UsePunctuation:            true,
			PunctuationsOut:           `、。，"(),.:;¿?¡!\`,
			PunctuationsIn:            `'-`,
			CaseSensitive:             true,
			RemoveMultipleWhitespaces: true,
		},
		Audio: AudioConfig{
			SampleRate:           22050,
			NumFFT:               1102,
			NumMels:              80,
			STFTWindowMs:         50,
			STFTShiftMs:          12.5,
			NormalizeSpectrogram: true,
			UsePreemphasis:       true,
			Preemphasis:          0.97,
			GriffinLimIters:      50,
			GriffinLimPower:      1.5,
		},
		Model: ModelConfig{
			EmbeddingDimension:         512,
			EncoderType:                EncoderSimple,
			EncoderDimension:           512,
			EncoderBlocks:              3,
			EncoderKernelSize:          5,
			InputLanguageEmbedding:     4,
			PrenetDimension:            256,
			PrenetLayers:               2,
			AttentionType:              AttentionLocationSensitive,
			AttentionDimension:         128,
			AttentionKernelSize:        31,
			AttentionLocationDimension: 32,
			DecoderDimension:           1024,
			DecoderRegularization:      RegularizationDropout,
			ZoneoutHidden:              0.1,
			ZoneoutCell:                0.1,
			DropoutHidden:              0.1,
			PostnetDimension:           512,
			PostnetBlocks:              5,
			PostnetKernelSize:          5,
			Dropout:                    0.5,
			PredictLinear:              false,
			ResidualLatentDimension:    16,
			EmbeddingType:              EmbeddingSimple,
			SpeakerEmbeddingDimension:  32,
			LanguageEmbeddingDimension: 32,
			ReversalClassifierType:     ClassifierReversal,
			ReversalClassifierDim:      256,
			ReversalGradientClipping:   0.25,
			ReversalLambda:             1.0,
			StopFrames:                 5,
			MaxOutputLength:            5000,
		},
		Training: TrainingConfig{
			BatchSize:                 52,
			Seed:                      42,
			Threads:                   1,
			GuidedAttentionLoss:       true,
			GuidedAttentionSteps:      20000,
			GuidedAttentionToleration: 0.25,
			GuidedAttentionGain:       1.00025,
			ConstantTeacherForcing:    true,
			TeacherForcing:            1.0,
			TeacherForcingSteps:       100000,
			TeacherForcingStartSteps:  50000,
			Parallelization:           ParallelData,
			ModelParallelSplitSize:    13,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxTextBytes:    4096,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-dataset-root", defaults.Paths.DatasetRoot, "Dataset root directory")
	fs.String("paths-train-file", defaults.Paths.TrainFile, "Training manifest, relative to the dataset root")
	fs.String("paths-val-file", defaults.Paths.ValFile, "Validation manifest, relative to the dataset root")
	fs.String("paths-test-file", defaults.Paths.TestFile, "Test manifest, relative to the dataset root (empty to skip)")
	fs.String("paths-checkpoint", defaults.Paths.Checkpoint, "Model checkpoint (.safetensors)")
	fs.String("paths-normalization-file", defaults.Paths.NormalizationFile, "Spectrogram normalization constants (.safetensors)")

	fs.StringSlice("languages", defaults.Dataset.Languages, "Accepted manifest languages")
	fs.Bool("cache-spectrograms", defaults.Dataset.CacheSpectrograms, "Load cached spectrograms instead of computing them from audio")
	fs.Int("dataset-workers", defaults.Dataset.Workers, "Parallel example loaders per batch")
	fs.Bool("balanced-sampling", defaults.Dataset.BalancedSampling, "Sample batches with equal weight per language")
	fs.Bool("perfect-sampling", defaults.Dataset.PerfectSampling, "With balanced sampling, put the same number of examples of each language in every batch")

	fs.Bool("use-phonemes", defaults.Text.UsePhonemes, "Feed phonemized text instead of characters")
	fs.Bool("use-punctuation", defaults.Text.UsePunctuation, "Keep punctuation symbols")
	fs.Bool("case-sensitive", defaults.Text.CaseSensitive, "Keep the case of raw text")
	fs.Bool("remove-multiple-wspaces", defaults.Text.RemoveMultipleWhitespaces, "Collapse whitespace runs")

	fs.Int("audio-sample-rate", defaults.Audio.SampleRate, "Sample rate in Hz")
	fs.Int("audio-num-fft", defaults.Audio.NumFFT, "FFT size")
	fs.Int("audio-num-mels", defaults.Audio.NumMels, "Mel band count")
	fs.Bool("normalize-spectrogram", defaults.Audio.NormalizeSpectrogram, "Normalize spectrograms with the stored constants")

	fs.String("encoder-type", defaults.Model.EncoderType, "Encoder variant (simple|shared|separate|convolutional)")
	fs.String("attention-type", defaults.Model.AttentionType, "Attention variant (location_sensitive|forward|forward_transition_agent)")
	fs.String("decoder-regularization", defaults.Model.DecoderRegularization, "Decoder LSTM regularization (dropout|zoneout)")
	fs.Bool("predict-linear", defaults.Model.PredictLinear, "Predict linear spectrograms in the postnet")
	fs.Bool("multi-speaker", defaults.Model.MultiSpeaker, "Condition the decoder on speaker ids")
	fs.Bool("multi-language", defaults.Model.MultiLanguage, "Condition the decoder on language ids")
	fs.Int("speaker-number", defaults.Model.SpeakerNumber, "Speaker embedding table size")
	fs.Bool("reversal-classifier", defaults.Model.ReversalClassifier, "Enable the adversarial language classifier")
	fs.Bool("residual-encoder", defaults.Model.ResidualEncoder, "Enable the variational residual encoder")
	fs.Int("stop-frames", defaults.Model.StopFrames, "Extra frames decoded after the first stop prediction")
	fs.Int("max-output-length", defaults.Model.MaxOutputLength, "Hard cap on decoded frames")

	fs.Int("batch-size", defaults.Training.BatchSize, "Batch size")
	fs.Int64("seed", defaults.Training.Seed, "Random seed")
	fs.Int("threads", defaults.Training.Threads, "Tensor kernel worker count")
	fs.Float64("teacher-forcing", defaults.Training.TeacherForcing, "Teacher forcing ratio")
	fs.Bool("constant-teacher-forcing", defaults.Training.ConstantTeacherForcing, "Keep the teacher forcing ratio constant")
	fs.String("parallelization", defaults.Training.Parallelization, "Parallelization mode (data|model)")

	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Concurrent synthesis requests")

	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("TACOTRON")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("tacotron")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.dataset_root", c.Paths.DatasetRoot)
	v.SetDefault("paths.train_file", c.Paths.TrainFile)
	v.SetDefault("paths.val_file", c.Paths.ValFile)
	v.SetDefault("paths.test_file", c.Paths.TestFile)
	v.SetDefault("paths.checkpoint", c.Paths.Checkpoint)
	v.SetDefault("paths.normalization_file", c.Paths.NormalizationFile)

	v.SetDefault("dataset.languages", c.Dataset.Languages)
	v.SetDefault("dataset.cache_spectrograms", c.Dataset.CacheSpectrograms)
	v.SetDefault("dataset.workers", c.Dataset.Workers)
	v.SetDefault("dataset.balanced_sampling", c.Dataset.BalancedSampling)
	v.SetDefault("dataset.perfect_sampling", c.Dataset.PerfectSampling)

	v.SetDefault("text.characters", c.Text.Characters)
	v.SetDefault("text.phonemes", c.Text.Phonemes)
	v.SetDefault("text.use_phonemes", c.Text.UsePhonemes)
	v.SetDefault("text.use_punctuation", c.Text.UsePunctuation)
	v.SetDefault("text.punctuations_out", c.Text.PunctuationsOut)
	v.SetDefault("text.punctuations_in", c.Text.PunctuationsIn)
	v.SetDefault("text.case_sensitive", c.Text.CaseSensitive)
	v.SetDefault("text.remove_multiple_wspaces", c.Text.RemoveMultipleWhitespaces)
	v.SetDefault("text.per_language_phonemes", c.Text.PerLanguagePhonemes)

	v.SetDefault("audio.sample_rate", c.Audio.SampleRate)
	v.SetDefault("audio.num_fft", c.Audio.NumFFT)
	v.SetDefault("audio.num_mels", c.Audio.NumMels)
	v.SetDefault("audio.stft_window_ms", c.Audio.STFTWindowMs)
	v.SetDefault("audio.stft_shift_ms", c.Audio.STFTShiftMs)
	v.SetDefault("audio.normalize_spectrogram", c.Audio.NormalizeSpectrogram)
	v.SetDefault("audio.use_preemphasis", c.Audio.UsePreemphasis)
	v.SetDefault("audio.preemphasis", c.Audio.Preemphasis)
	v.SetDefault("audio.griffin_lim_iters", c.Audio.GriffinLimIters)
	v.SetDefault("audio.griffin_lim_power", c.Audio.GriffinLimPower)

	v.SetDefault("model.embedding_dimension", c.Model.EmbeddingDimension)
	v.SetDefault("model.encoder_disabled", c.Model.EncoderDisabled)
	v.SetDefault("model.encoder_type", c.Model.EncoderType)
	v.SetDefault("model.encoder_dimension", c.Model.EncoderDimension)
	v.SetDefault("model.encoder_blocks", c.Model.EncoderBlocks)
	v.SetDefault("model.encoder_kernel_size", c.Model.EncoderKernelSize)
	v.SetDefault("model.input_language_embedding", c.Model.InputLanguageEmbedding)
	v.SetDefault("model.prenet_dimension", c.Model.PrenetDimension)
	v.SetDefault("model.prenet_layers", c.Model.PrenetLayers)
	v.SetDefault("model.attention_type", c.Model.AttentionType)
	v.SetDefault("model.attention_dimension", c.Model.AttentionDimension)
	v.SetDefault("model.attention_kernel_size", c.Model.AttentionKernelSize)
	v.SetDefault("model.attention_location_dimension", c.Model.AttentionLocationDimension)
	v.SetDefault("model.decoder_dimension", c.Model.DecoderDimension)
	v.SetDefault("model.decoder_regularization", c.Model.DecoderRegularization)
	v.SetDefault("model.zoneout_hidden", c.Model.ZoneoutHidden)
	v.SetDefault("model.zoneout_cell", c.Model.ZoneoutCell)
	v.SetDefault("model.dropout_hidden", c.Model.DropoutHidden)
	v.SetDefault("model.postnet_dimension", c.Model.PostnetDimension)
	v.SetDefault("model.postnet_blocks", c.Model.PostnetBlocks)
	v.SetDefault("model.postnet_kernel_size", c.Model.PostnetKernelSize)
	v.SetDefault("model.dropout", c.Model.Dropout)
	v.SetDefault("model.predict_linear", c.Model.PredictLinear)
	v.SetDefault("model.residual_encoder", c.Model.ResidualEncoder)
	v.SetDefault("model.residual_latent_dimension", c.Model.ResidualLatentDimension)
	v.SetDefault("model.multi_speaker", c.Model.MultiSpeaker)
	v.SetDefault("model.multi_language", c.Model.MultiLanguage)
	v.SetDefault("model.embedding_type", c.Model.EmbeddingType)
	v.SetDefault("model.speaker_embedding_dimension", c.Model.SpeakerEmbeddingDimension)
	v.SetDefault("model.language_embedding_dimension", c.Model.LanguageEmbeddingDimension)
	v.SetDefault("model.speaker_number", c.Model.SpeakerNumber)
	v.SetDefault("model.reversal_classifier", c.Model.ReversalClassifier)
	v.SetDefault("model.reversal_classifier_type", c.Model.ReversalClassifierType)
	v.SetDefault("model.reversal_classifier_dim", c.Model.ReversalClassifierDim)
	v.SetDefault("model.reversal_gradient_clipping", c.Model.ReversalGradientClipping)
	v.SetDefault("model.reversal_lambda", c.Model.ReversalLambda)
	v.SetDefault("model.stop_frames", c.Model.StopFrames)
	v.SetDefault("model.max_output_length", c.Model.MaxOutputLength)

	v.SetDefault("training.batch_size", c.Training.BatchSize)
	v.SetDefault("training.seed", c.Training.Seed)
	v.SetDefault("training.threads", c.Training.Threads)
	v.SetDefault("training.guided_attention_loss", c.Training.GuidedAttentionLoss)
	v.SetDefault("training.guided_attention_steps", c.Training.GuidedAttentionSteps)
	v.SetDefault("training.guided_attention_toleration", c.Training.GuidedAttentionToleration)
	v.SetDefault("training.guided_attention_gain", c.Training.GuidedAttentionGain)
	v.SetDefault("training.constant_teacher_forcing", c.Training.ConstantTeacherForcing)
	v.SetDefault("training.teacher_forcing", c.Training.TeacherForcing)
	v.SetDefault("training.teacher_forcing_steps", c.Training.TeacherForcingSteps)
	v.SetDefault("training.teacher_forcing_start_steps", c.Training.TeacherForcingStartSteps)
	v.SetDefault("training.parallelization", c.Training.Parallelization)
	v.SetDefault("training.modelparallel_split_size", c.Training.ModelParallelSplitSize)

	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)

	v.SetDefault("log_level", c.LogLevel)
}

// flagKeys maps CLI flag names to config keys. Flags are bound rather than
// aliased so values from a config file still apply when a flag is left unset.
var flagKeys = map[string]string{
	"paths-dataset-root":       "paths.dataset_root",
	"paths-train-file":         "paths.train_file",
	"paths-val-file":           "paths.val_file",
	"paths-test-file":          "paths.test_file",
	"paths-checkpoint":         "paths.checkpoint",
	"paths-normalization-file": "paths.normalization_file",
	"languages":                "dataset.languages",
	"cache-spectrograms":       "dataset.cache_spectrograms",
	"dataset-workers":          "dataset.workers",
	"balanced-sampling":        "dataset.balanced_sampling",
	"perfect-sampling":         "dataset.perfect_sampling",
	"use-phonemes":             "text.use_phonemes",
	"use-punctuation":          "text.use_punctuation",
	"case-sensitive":           "text.case_sensitive",
	"remove-multiple-wspaces":  "text.remove_multiple_wspaces",
	"audio-sample-rate":        "audio.sample_rate",
	"audio-num-fft":            "audio.num_fft",
	"audio-num-mels":           "audio.num_mels",
	"normalize-spectrogram":    "audio.normalize_spectrogram",
	"encoder-type":             "model.encoder_type",
	"attention-type":           "model.attention_type",
	"decoder-regularization":   "model.decoder_regularization",
	"predict-linear":           "model.predict_linear",
	"multi-speaker":            "model.multi_speaker",
	"multi-language":           "model.multi_language",
	"speaker-number":           "model.speaker_number",
	"reversal-classifier":      "model.reversal_classifier",
	"residual-encoder":         "model.residual_encoder",
	"stop-frames":              "model.stop_frames",
	"max-output-length":        "model.max_output_length",
	"batch-size":               "training.batch_size",
	"seed":                     "training.seed",
	"threads":                  "training.threads",
	"teacher-forcing":          "training.teacher_forcing",
	"constant-teacher-forcing": "training.constant_teacher_forcing",
	"parallelization":          "training.parallelization",
	"server-listen-addr":       "server.listen_addr",
	"server-workers":           "server.workers",
	"log-level":                "log_level",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	return nil
}
