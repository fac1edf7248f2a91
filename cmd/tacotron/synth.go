package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/audio"
	"github.com/example/go-tacotron/internal/dataset"
	"github.com/example/go-tacotron/internal/tts"
)

func newSynthCmd() *cobra.Command {
	var (
		text          string
		out           string
		melOut        string
		checkpoint    string
		speaker       int
		language      int
		maxChunkChars int
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV with Griffin-Lim reconstruction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if checkpoint == "" {
				checkpoint = cfg.Paths.Checkpoint
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg, checkpoint)
			if err != nil {
				return err
			}

			result, err := svc.Synthesize(cmd.Context(), tts.Request{
				Text:          inputText,
				Speaker:       speaker,
				Language:      language,
				MaxChunkChars: maxChunkChars,
			})
			if err != nil {
				return err
			}

			if result.Truncated {
				slog.Warn("synthesis hit the decoder frame cap", "max_output_length", cfg.Model.MaxOutputLength)
			}

			if melOut != "" {
				if err := dataset.SaveSpectrogram(melOut, "mel", result.Mel); err != nil {
					return err
				}
			}

			wav, err := audio.EncodeWAV(result.Samples, svc.SampleRate())
			if err != nil {
				return err
			}

			return writeSynthOutput(out, wav, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&melOut, "mel-out", "", "Also write the predicted mel spectrogram as safetensors")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint path (default paths.checkpoint)")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "Speaker id for multi-speaker models")
	cmd.Flags().IntVar(&language, "language", 0, "Language id for multi-language models")
	cmd.Flags().IntVar(&maxChunkChars, "max-chunk-chars", 200, "Maximum characters per decoded sentence chunk (0 disables chunking)")

	return cmd
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return errors.New("stdout writer is nil")
		}

		_, err := stdout.Write(wavData)

		return err
	}

	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", errors.New("either provide --text or pipe text on stdin")
	}

	return input, nil
}
