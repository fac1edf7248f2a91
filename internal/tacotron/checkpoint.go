package tacotron

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/nn"
)

// Checkpoint metadata keys.
const (
	MetaFormat    = "format"
	MetaStep      = "step"
	MetaEncoder   = "encoder_type"
	MetaAttention = "attention_type"
	MetaVersion   = "format_version"
	MetaSpeakers  = "speakers"
	MetaLanguages = "languages"

	checkpointFormat  = "tacotron2"
	checkpointVersion = "1.0"
)

// SaveCheckpoint writes every model parameter to path. extra is merged into
// the metadata alongside the architecture selectors.
func (m *Model) SaveCheckpoint(path string, step int, extra map[string]string) error {
	meta := map[string]string{
		MetaFormat:    checkpointFormat,
		MetaVersion:   checkpointVersion,
		MetaStep:      strconv.Itoa(step),
		MetaEncoder:   m.cfg.Model.EncoderType,
		MetaAttention: m.cfg.Model.AttentionType,
	}
	maps.Copy(meta, extra)

	if err := m.vars.Save(path, meta); err != nil {
		return err
	}

	slog.Debug("checkpoint saved", "path", path, "step", step, "tensors", len(m.vars.Names()))

	return nil
}

// LoadModel builds a model from a checkpoint written by SaveCheckpoint.
// Architecture selectors recorded in the checkpoint must match cfg, and
// every tensor in the file must be consumed by the model.
func LoadModel(cfg config.Config, path string) (*Model, int, error) {
	vars, err := nn.OpenVarStore(path)
	if err != nil {
		return nil, 0, err
	}

	meta := vars.Metadata()
	if err := config.Validate(&cfg); err != nil {
		return nil, 0, err
	}

	for key, want := range map[string]string{MetaEncoder: cfg.Model.EncoderType, MetaAttention: cfg.Model.AttentionType} {
		if got, ok := meta[key]; ok && got != want {
			return nil, 0, fmt.Errorf("tacotron: checkpoint %s has %s %q, config has %q", path, key, got, want)
		}
	}

	model, err := New(cfg, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("tacotron: load %s: %w", path, err)
	}

	if unused := vars.Unused(); len(unused) > 0 {
		return nil, 0, fmt.Errorf("tacotron: checkpoint %s has %d tensors the model does not use (first: %q)", path, len(unused), unused[0])
	}

	step := 0
	if s, ok := meta[MetaStep]; ok {
		if step, err = strconv.Atoi(s); err != nil {
			return nil, 0, fmt.Errorf("tacotron: checkpoint %s: bad step %q", path, s)
		}
	}

	return model, step, nil
}

// ReadCheckpointMetadata returns the metadata of a checkpoint without
// building a model.
func ReadCheckpointMetadata(path string) (map[string]string, error) {
	vars, err := nn.OpenVarStore(path)
	if err != nil {
		return nil, err
	}

	return vars.Metadata(), nil
}

// VocabularyMetadata encodes the speaker and language names, ordered by id,
// as checkpoint metadata. Empty lists are omitted.
func VocabularyMetadata(speakers, languages []string) (map[string]string, error) {
	meta := make(map[string]string, 2)

	for key, names := range map[string][]string{MetaSpeakers: speakers, MetaLanguages: languages} {
		if len(names) == 0 {
			continue
		}

		raw, err := json.Marshal(names)
		if err != nil {
			return nil, fmt.Errorf("tacotron: encode %s: %w", key, err)
		}

		meta[key] = string(raw)
	}

	return meta, nil
}

// CheckpointVocabulary decodes the names written by VocabularyMetadata. A
// missing key yields a nil list.
func CheckpointVocabulary(meta map[string]string) (speakers, languages []string, err error) {
	decode := func(key string) ([]string, error) {
		raw, ok := meta[key]
		if !ok {
			return nil, nil
		}

		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, fmt.Errorf("tacotron: checkpoint %s: %w", key, err)
		}

		return names, nil
	}

	if speakers, err = decode(MetaSpeakers); err != nil {
		return nil, nil, err
	}

	if languages, err = decode(MetaLanguages); err != nil {
		return nil, nil, err
	}

	return speakers, languages, nil
}
