package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/bench"
	"github.com/example/go-tacotron/internal/tts"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		checkpoint   string
		runs         int
		format       string
		rtfThreshold float64
		cpuprofile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return errors.New("--text is required for bench")
			}
			if runs < 1 {
				return errors.New("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			if checkpoint == "" {
				checkpoint = cfg.Paths.Checkpoint
			}

			svc, err := tts.NewService(cfg, checkpoint)
			if err != nil {
				return err
			}

			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpu profile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpu profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			req := tts.Request{Text: text}
			results, err := bench.Run(cmd.Context(), runs, svc.SampleRate(), func(ctx context.Context) (bench.Output, error) {
				res, err := svc.Synthesize(ctx, req)
				if err != nil {
					return bench.Output{}, err
				}

				out := bench.Output{Samples: len(res.Samples), Truncated: res.Truncated}
				if len(res.Mel) > 0 {
					out.Frames = len(res.Mel[0])
				}

				return out, nil
			})
			if err != nil {
				return err
			}

			stats := bench.Summarize(results)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint path (default paths.checkpoint)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile of the runs to this file")

	return cmd
}
