package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-tacotron/internal/audio"
	"github.com/example/go-tacotron/internal/testutil"
)

func TestRequireCheckpoint_SkipsWhenUnset(t *testing.T) {
	t.Setenv(testutil.CheckpointEnv, "")
	t.Setenv(testutil.ConfigEnv, "")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireCheckpoint(fakeT)

	if !skipped {
		t.Error("expected RequireCheckpoint to skip when no checkpoint is configured")
	}
}

func TestRequireCheckpoint_SkipsWhenMissing(t *testing.T) {
	t.Setenv(testutil.CheckpointEnv, "/nonexistent/model.safetensors")
	t.Setenv(testutil.ConfigEnv, "/nonexistent/tacotron.yaml")

	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireCheckpoint(fakeT)

	if !skipped {
		t.Error("expected RequireCheckpoint to skip when the checkpoint is absent")
	}
}

func TestRequireCheckpoint_ReturnsPaths(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "model.safetensors")
	cfg := filepath.Join(dir, "tacotron.yaml")

	for _, p := range []string{ckpt, cfg} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	t.Setenv(testutil.CheckpointEnv, ckpt)
	t.Setenv(testutil.ConfigEnv, cfg)

	got := testutil.RequireCheckpoint(t)
	if got.Checkpoint != ckpt || got.Config != cfg {
		t.Fatalf("artifacts = %+v", got)
	}
}

func TestAssertValidWAV(t *testing.T) {
	data, err := audio.EncodeWAV(make([]float32, 4000), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	testutil.AssertValidWAV(t, data, 8000)
	testutil.AssertWAVDurationApprox(t, data, 8000, 0.49, 0.51)
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
	// Do NOT call s.TB.Skip; that would actually skip the outer test.
}
