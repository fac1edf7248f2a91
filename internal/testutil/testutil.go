// Package testutil provides shared skip helpers and WAV assertions for tests.
//
// The skip helpers call t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    ckpt := testutil.RequireCheckpoint(t)
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

// Environment variables naming trained artifacts for integration tests.
const (
	CheckpointEnv = "TACOTRON_TEST_CHECKPOINT"
	ConfigEnv     = "TACOTRON_TEST_CONFIG"
)

// Artifacts locates a trained model and the config it was trained with.
type Artifacts struct {
	Checkpoint string
	Config     string
}

// RequireCheckpoint skips the test unless TACOTRON_TEST_CHECKPOINT and
// TACOTRON_TEST_CONFIG both name existing files.
func RequireCheckpoint(tb testing.TB) Artifacts {
	tb.Helper()

	var a Artifacts

	for _, v := range []struct {
		env string
		dst *string
	}{
		{CheckpointEnv, &a.Checkpoint},
		{ConfigEnv, &a.Config},
	} {
		p := os.Getenv(v.env)
		if p == "" {
			tb.Skipf("trained model not available; set %s and %s", CheckpointEnv, ConfigEnv)
			return a
		}

		// #nosec G703 -- Integration tests intentionally accept explicit env-provided local paths.
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("%s=%q not found: %v", v.env, p, err)
			return a
		}

		*v.dst = p
	}

	return a
}
