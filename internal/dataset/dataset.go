package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/example/go-tacotron/internal/audio"
	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/safetensors"
	"github.com/example/go-tacotron/internal/text"
)

var ErrSpectrogramDimension = errors.New("dataset: spectrogram dimension mismatch")

// Item is one accepted manifest record with its cleaned text and symbol
// ids. Items are never modified after Build.
type Item struct {
	ID         string
	SpeakerID  int
	LanguageID int
	AudioPath  string
	MelPath    string
	LinearPath string
	RawText    string
	Text       string
	Phonemes   string
	TextIDs    []int
	PhonemeIDs []int
}

// Example is the materialized input of one utterance. Spectrograms are laid
// out [bins][frames]; Linear is nil unless linear prediction is enabled.
type Example struct {
	Speaker  int
	Language int
	Symbols  []int
	Mel      [][]float32
	Linear   [][]float32
}

// Dataset indexes one manifest and loads spectrograms on demand. It is safe
// for concurrent Example calls once normalization constants are set.
type Dataset struct {
	cfg       config.Config
	root      string
	items     []Item
	speakers  *Vocabulary
	languages *Vocabulary
	chars     *text.Symbols
	phonemes  *text.Symbols
	extractor *audio.Extractor
	norm      *NormalizationConstants
}

// Symbols returns the character and phoneme vocabularies described by cfg.
func Symbols(cfg config.TextConfig) (chars, phonemes *text.Symbols) {
	punct := cfg.PunctuationsOut + cfg.PunctuationsIn
	return text.NewSymbols(cfg.Characters, punct, cfg.UsePunctuation),
		text.NewSymbols(cfg.Phonemes, punct, cfg.UsePunctuation)
}

// Build reads manifestPath, keeps the records whose language is accepted
// by cfg, cleans their text and converts it to symbol ids. Speaker and
// language ids follow the order of first occurrence among kept records.
func Build(cfg config.Config, manifestPath, rootDir string) (*Dataset, error) {
	return BuildSeeded(cfg, manifestPath, rootDir, nil, nil)
}

// BuildSeeded is Build with existing speaker and language vocabularies:
// known names keep their ids and new ones are appended in order of first
// occurrence. The seeds are cloned, never modified. Nil seeds start empty.
func BuildSeeded(cfg config.Config, manifestPath, rootDir string, speakers, languages *Vocabulary) (*Dataset, error) {
	records, err := ReadManifestFile(manifestPath)
	if err != nil {
		return nil, err
	}

	extractor, err := audio.NewExtractor(cfg.Audio)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		cfg:       cfg,
		root:      rootDir,
		speakers:  seedVocabulary(speakers),
		languages: seedVocabulary(languages),
		extractor: extractor,
	}
	ds.chars, ds.phonemes = Symbols(cfg.Text)

	textOpts, phonOpts := cleanOptions(cfg.Text)
	dropped := 0

	for _, r := range records {
		if !slices.Contains(cfg.Dataset.Languages, r.Language) {
			dropped++
			continue
		}

		cleanText := text.Clean(r.Text, textOpts)
		cleanPhon := text.Clean(r.Phonemes, phonOpts)

		ds.items = append(ds.items, Item{
			ID:         r.ID,
			SpeakerID:  ds.speakers.Add(r.Speaker),
			LanguageID: ds.languages.Add(r.Language),
			AudioPath:  r.AudioPath,
			MelPath:    r.MelPath,
			LinearPath: r.LinearPath,
			RawText:    r.Text,
			Text:       cleanText,
			Phonemes:   cleanPhon,
			TextIDs:    ds.chars.Encode(cleanText),
			PhonemeIDs: ds.phonemes.Encode(cleanPhon),
		})
	}

	slog.Debug("dataset indexed",
		"manifest", manifestPath,
		"items", len(ds.items),
		"dropped", dropped,
		"speakers", ds.speakers.Len(),
		"languages", ds.languages.Len(),
	)

	return ds, nil
}

func seedVocabulary(seed *Vocabulary) *Vocabulary {
	if seed == nil {
		return NewVocabulary()
	}

	return seed.Clone()
}

func cleanOptions(cfg config.TextConfig) (textOpts, phonOpts text.CleanOptions) {
	punct := cfg.PunctuationsOut + cfg.PunctuationsIn

	textOpts = text.CleanOptions{
		RemovePunctuation:  !cfg.UsePunctuation,
		Punctuation:        punct,
		Lowercase:          !cfg.CaseSensitive,
		CollapseWhitespace: cfg.RemoveMultipleWhitespaces,
	}

	phonOpts = textOpts
	phonOpts.Lowercase = false

	return textOpts, phonOpts
}

// EncodeText cleans s the way Build cleans manifest text and converts it to
// the symbol ids the model consumes. With use_phonemes set, s must already
// be phonemized.
func EncodeText(cfg config.TextConfig, s string) []int {
	chars, phonemes := Symbols(cfg)
	textOpts, phonOpts := cleanOptions(cfg)

	if cfg.UsePhonemes {
		return phonemes.Encode(text.Clean(s, phonOpts))
	}

	return chars.Encode(text.Clean(s, textOpts))
}

func (d *Dataset) Len() int { return len(d.items) }

// Item returns the i-th indexed record.
func (d *Dataset) Item(i int) Item { return d.items[i] }

func (d *Dataset) Speakers() *Vocabulary  { return d.speakers }
func (d *Dataset) Languages() *Vocabulary { return d.languages }

func (d *Dataset) NumSpeakers() int  { return d.speakers.Len() }
func (d *Dataset) NumLanguages() int { return d.languages.Len() }

// CharacterSymbols and PhonemeSymbols expose the vocabularies used to
// encode items.
func (d *Dataset) CharacterSymbols() *text.Symbols { return d.chars }
func (d *Dataset) PhonemeSymbols() *text.Symbols   { return d.phonemes }

// SetNormalization installs the constants used by Example when spectrogram
// normalization is enabled. Call it before loading examples concurrently.
func (d *Dataset) SetNormalization(c *NormalizationConstants) { d.norm = c }

// Example materializes item i: its symbol ids (phonemes or characters per
// configuration) and its mel (and optionally linear) spectrogram.
func (d *Dataset) Example(i int) (Example, error) {
	if i < 0 || i >= len(d.items) {
		return Example{}, fmt.Errorf("dataset: example index %d out of range [0,%d)", i, len(d.items))
	}

	item := d.items[i]
	normalize := d.cfg.Audio.NormalizeSpectrogram

	ex := Example{
		Speaker:  item.SpeakerID,
		Language: item.LanguageID,
		Symbols:  item.TextIDs,
	}
	if d.cfg.Text.UsePhonemes {
		ex.Symbols = item.PhonemeIDs
	}

	var err error

	if ex.Mel, err = d.LoadSpectrogram(item, true, normalize); err != nil {
		return Example{}, err
	}

	if d.cfg.Model.PredictLinear {
		if ex.Linear, err = d.LoadSpectrogram(item, false, normalize); err != nil {
			return Example{}, err
		}
	}

	return ex, nil
}

// LoadSpectrogram returns the mel or linear spectrogram of item, read from
// the cache when caching is enabled and computed from audio otherwise. The
// frequency dimension must match the configured bin count exactly.
func (d *Dataset) LoadSpectrogram(item Item, isMel, normalize bool) ([][]float32, error) {
	var (
		spec [][]float32
		err  error
	)

	if d.cfg.Dataset.CacheSpectrograms {
		path := item.LinearPath
		if isMel {
			path = item.MelPath
		}

		spec, err = loadCachedSpectrogram(filepath.Join(d.root, path))
	} else {
		var samples []float32

		samples, err = audio.LoadWAV(filepath.Join(d.root, item.AudioPath), d.cfg.Audio.SampleRate)
		if err == nil {
			spec, err = d.extractor.Spectrogram(samples, isMel)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("dataset: item %s: %w", item.ID, err)
	}

	want := d.extractor.NumBins(isMel)
	if len(spec) != want {
		return nil, fmt.Errorf("%w: item %s has %d bins, expected %d", ErrSpectrogramDimension, item.ID, len(spec), want)
	}

	if normalize {
		if d.norm == nil {
			return nil, errors.New("dataset: spectrogram normalization enabled but no constants loaded")
		}

		mean, std := d.norm.For(isMel)
		if err := audio.Normalize(spec, mean, std); err != nil {
			return nil, fmt.Errorf("dataset: item %s: %w", item.ID, err)
		}
	}

	return spec, nil
}

func loadCachedSpectrogram(path string) ([][]float32, error) {
	t, err := safetensors.LoadFirstTensor(path)
	if err != nil {
		return nil, err
	}

	return t.Matrix()
}

// SaveSpectrogram writes spec ([bins][frames]) as a single-tensor cache file.
func SaveSpectrogram(path, name string, spec [][]float32) error {
	t, err := safetensors.MatrixTensor(name, spec)
	if err != nil {
		return err
	}

	return safetensors.WriteFile(path, []safetensors.Tensor{t}, nil)
}
