// Package doctor provides preflight checks for a Tacotron workspace: dataset
// layout, normalization constants and the model checkpoint.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// CheckFunc inspects one artifact and returns a short description of it or
// an error if it is unusable.
type CheckFunc func() (string, error)

// Config holds the paths and injectable checks for each doctor check.
type Config struct {
	// DatasetRoot must be an existing directory.
	DatasetRoot string
	// Manifests are the manifest files that must exist.
	Manifests []string
	// CacheDirs are spectrogram cache directories; checked only when
	// spectrogram caching is enabled.
	CacheDirs []string
	// Normalization loads the normalization constants.
	Normalization CheckFunc
	// SkipNormalization skips the normalization check (normalization disabled).
	SkipNormalization bool
	// Checkpoint loads the model checkpoint and reports its format version.
	Checkpoint CheckFunc
	// SkipCheckpoint skips the checkpoint check.
	SkipCheckpoint bool
	// MinFormat is the oldest checkpoint format version accepted, e.g. "2.0".
	// Empty accepts any version.
	MinFormat string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- dataset root -----------------------------------------------------
	if info, err := os.Stat(cfg.DatasetRoot); err != nil {
		res.fail(fmt.Sprintf("dataset root %q: %v", cfg.DatasetRoot, err))
		fmt.Fprintf(w, "%s dataset root %s: not found\n", FailMark, cfg.DatasetRoot)
	} else if !info.IsDir() {
		res.fail(fmt.Sprintf("dataset root %q: not a directory", cfg.DatasetRoot))
		fmt.Fprintf(w, "%s dataset root %s: not a directory\n", FailMark, cfg.DatasetRoot)
	} else {
		fmt.Fprintf(w, "%s dataset root: %s\n", PassMark, cfg.DatasetRoot)
	}

	// ---- manifests --------------------------------------------------------
	for _, path := range cfg.Manifests {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("manifest %q: %v", path, err))
			fmt.Fprintf(w, "%s manifest %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s manifest: %s\n", PassMark, path)
		}
	}

	for _, dir := range cfg.CacheDirs {
		if _, err := os.Stat(dir); err != nil {
			res.fail(fmt.Sprintf("spectrogram cache %q: %v", dir, err))
			fmt.Fprintf(w, "%s spectrogram cache %s: not found (run prepare)\n", FailMark, dir)
		} else {
			fmt.Fprintf(w, "%s spectrogram cache: %s\n", PassMark, dir)
		}
	}

	// ---- normalization ----------------------------------------------------
	if cfg.SkipNormalization {
		fmt.Fprintf(w, "%s normalization: skipped\n", PassMark)
	} else {
		desc, err := runCheck(cfg.Normalization)
		if err != nil {
			res.fail(fmt.Sprintf("normalization: %v", err))
			fmt.Fprintf(w, "%s normalization: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s normalization: %s\n", PassMark, desc)
		}
	}

	// ---- checkpoint -------------------------------------------------------
	if cfg.SkipCheckpoint {
		fmt.Fprintf(w, "%s checkpoint: skipped\n", PassMark)
	} else {
		ver, err := runCheck(cfg.Checkpoint)
		if err != nil {
			res.fail(fmt.Sprintf("checkpoint: %v", err))
			fmt.Fprintf(w, "%s checkpoint: %v\n", FailMark, err)
		} else if verErr := checkFormatVersion(ver, cfg.MinFormat); verErr != nil {
			res.fail(fmt.Sprintf("checkpoint format: %v", verErr))
			fmt.Fprintf(w, "%s checkpoint format %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s checkpoint: format %s\n", PassMark, ver)
		}
	}

	return res
}

func runCheck(fn CheckFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("no check configured")
	}

	return fn()
}

// checkFormatVersion returns an error if ver is older than minVer. Both are
// "major.minor" strings; an empty minVer accepts anything parseable.
func checkFormatVersion(ver, minVer string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if minVer == "" {
		return nil
	}

	wantMajor, wantMinor, err := parseMajorMinor(minVer)
	if err != nil {
		return fmt.Errorf("cannot parse minimum %q: %w", minVer, err)
	}

	if major != wantMajor {
		return fmt.Errorf("requires format %d.x, got %d.%d", wantMajor, major, minor)
	}

	if minor < wantMinor {
		return fmt.Errorf("requires format >=%d.%d, got %d.%d", wantMajor, wantMinor, major, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}

	return major, minor, nil
}
