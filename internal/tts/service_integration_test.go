package tts

import (
	"context"
	"testing"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/testutil"
)

func TestSynthesizeWithTrainedCheckpoint(t *testing.T) {
	artifacts := testutil.RequireCheckpoint(t)

	cfg, err := config.Load(config.LoadOptions{ConfigFile: artifacts.Config, Defaults: config.DefaultConfig()})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	svc, err := NewService(cfg, artifacts.Checkpoint)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	wav, err := svc.SynthesizeWAV(context.Background(), Request{Text: "Hello world.", MaxChunkChars: 200})
	if err != nil {
		t.Fatalf("SynthesizeWAV: %v", err)
	}

	testutil.AssertValidWAV(t, wav, cfg.Audio.SampleRate)
	testutil.AssertWAVDurationApprox(t, wav, cfg.Audio.SampleRate, 0.2, 10)
}
