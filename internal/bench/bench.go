// Package bench provides benchmarking primitives for the tacotron bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (cold-start)
	Duration      time.Duration
	AudioDuration time.Duration
	Frames        int
	Truncated     bool
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summarize computes duration stats and the mean RTF of runs.
func Summarize(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))
	var rtf float64
	for i, r := range runs {
		durations[i] = r.Duration
		rtf += r.RTF
	}

	s := ComputeStats(durations)
	if len(runs) > 0 {
		s.MeanRTF = rtf / float64(len(runs))
	}

	return s
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Output describes what one synthesis produced.
type Output struct {
	Samples   int
	Frames    int
	Truncated bool
}

// SynthFunc performs one complete synthesis.
type SynthFunc func(ctx context.Context) (Output, error)

// Run calls synth runs times and times each call. sampleRate converts the
// produced sample count into playback duration.
func Run(ctx context.Context, runs, sampleRate int, synth SynthFunc) ([]RunResult, error) {
	results := make([]RunResult, 0, runs)

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		out, err := synth(ctx)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		dur := time.Since(start)

		audioDur := SampleDuration(out.Samples, sampleRate)

		results = append(results, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      dur,
			AudioDuration: audioDur,
			Frames:        out.Frames,
			Truncated:     out.Truncated,
			RTF:           CalcRTF(dur, audioDur),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// SampleDuration returns the playback duration of n mono samples.
func SampleDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
// Runs that hit the decoder frame cap are flagged with '*'.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %7s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "Frames", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 57))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		frames := fmt.Sprint(r.Frames)
		if r.Truncated {
			frames += "*"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %7s  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Milliseconds()),
			float64(r.AudioDuration.Milliseconds()),
			frames,
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 57))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %7s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %7s  %8.3f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", "", stats.MeanRTF)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %7s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "", "")

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	Frames     int     `json:"frames"`
	Truncated  bool    `json:"truncated"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: stats.MeanRTF,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			AudioMS:    float64(r.AudioDuration.Milliseconds()),
			Frames:     r.Frames,
			Truncated:  r.Truncated,
			RTF:        r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
