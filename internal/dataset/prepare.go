package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	conciter "github.com/sourcegraph/conc/iter"

	"github.com/example/go-tacotron/internal/audio"
	"github.com/example/go-tacotron/internal/config"
)

const (
	melCacheDir    = "spectrograms"
	linearCacheDir = "linear_spectrograms"
)

// CacheDirs returns the spectrogram cache directories PrepareCache fills
// under root.
func CacheDirs(root string) []string {
	return []string{filepath.Join(root, melCacheDir), filepath.Join(root, linearCacheDir)}
}

// Source is one utterance of a raw corpus before preparation.
type Source struct {
	Speaker   string
	Language  string
	AudioPath string
	Text      string
	Phonemes  string
}

// ReadSources parses a corpus list of speaker|language|audio|text lines
// with an optional fifth phonemes field. Blank lines are skipped.
func ReadSources(r io.Reader) ([]Source, error) {
	var out []Source

	sc := bufio.NewScanner(r)
	line := 0

	for sc.Scan() {
		line++

		raw := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}

		f := strings.Split(raw, "|")
		if len(f) != 4 && len(f) != 5 {
			return nil, fmt.Errorf("dataset: source line %d: expected 4 or 5 fields, got %d", line, len(f))
		}

		s := Source{Speaker: f[0], Language: f[1], AudioPath: f[2], Text: f[3]}
		if len(f) == 5 {
			s.Phonemes = f[4]
		}

		out = append(out, s)
	}

	return out, sc.Err()
}

// PrepareOptions configures PrepareCache.
type PrepareOptions struct {
	Root         string
	ManifestName string
	// Spectrograms disables cache generation when false; the manifest then
	// carries empty spectrogram paths.
	Spectrograms bool
	Workers      int
}

// PrepareCache computes mel and linear spectrograms of every source into
// <root>/spectrograms and <root>/linear_spectrograms, one safetensors file
// per utterance, and writes the manifest describing them. Sources without a
// language get the first accepted language.
func PrepareCache(ctx context.Context, cfg config.Config, sources []Source, opts PrepareOptions) ([]Record, error) {
	extractor, err := audio.NewExtractor(cfg.Audio)
	if err != nil {
		return nil, err
	}

	if opts.Spectrograms {
		for _, dir := range CacheDirs(opts.Root) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("dataset: create cache dir: %w", err)
			}
		}
	}

	defaultLang := ""
	if len(cfg.Dataset.Languages) > 0 {
		defaultLang = cfg.Dataset.Languages[0]
	}

	indices := make([]int, len(sources))
	for i := range indices {
		indices[i] = i
	}

	mapper := conciter.Mapper[int, Record]{MaxGoroutines: max(opts.Workers, 1)}

	records, err := mapper.MapErr(indices, func(ip *int) (Record, error) {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		i := *ip
		src := sources[i]
		id := fmt.Sprintf("%06d", i)

		rec := Record{
			ID:        id,
			Speaker:   src.Speaker,
			Language:  src.Language,
			AudioPath: src.AudioPath,
			Text:      src.Text,
			Phonemes:  src.Phonemes,
		}
		if rec.Language == "" {
			rec.Language = defaultLang
		}

		if !opts.Spectrograms {
			return rec, nil
		}

		samples, err := audio.LoadWAV(filepath.Join(opts.Root, src.AudioPath), cfg.Audio.SampleRate)
		if err != nil {
			return Record{}, fmt.Errorf("dataset: source %d: %w", i, err)
		}

		rec.MelPath = filepath.Join(melCacheDir, id+".safetensors")
		rec.LinearPath = filepath.Join(linearCacheDir, id+".safetensors")

		for _, kind := range []struct {
			isMel bool
			path  string
			name  string
		}{
			{true, rec.MelPath, "mel"},
			{false, rec.LinearPath, "linear"},
		} {
			spec, err := extractor.Spectrogram(samples, kind.isMel)
			if err != nil {
				return Record{}, fmt.Errorf("dataset: source %d: %w", i, err)
			}

			if err := SaveSpectrogram(filepath.Join(opts.Root, kind.path), kind.name, spec); err != nil {
				return Record{}, fmt.Errorf("dataset: source %d: %w", i, err)
			}
		}

		slog.Debug("spectrograms cached", "id", id, "frames", len(samples)/extractor.Hop()+1)

		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	path := filepath.Join(opts.Root, opts.ManifestName)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: create manifest: %w", err)
	}

	if err := WriteManifest(f, records); err != nil {
		f.Close()
		return nil, fmt.Errorf("dataset: write manifest %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("dataset: write manifest %s: %w", path, err)
	}

	return records, nil
}
