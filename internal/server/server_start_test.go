package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/tts"
)

type fixedSynthesizer struct{}

func (fixedSynthesizer) SynthesizeWAV(context.Context, tts.Request) ([]byte, error) {
	return []byte("RIFF"), nil
}

func TestStart_LifecycleHealthAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close()

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = addr

	s := New(cfg, fixedSynthesizer{}).WithShutdownTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer checkCancel()

	for {
		if err = CheckHTTP(checkCtx, addr); err == nil {
			break
		}

		if checkCtx.Err() != nil {
			t.Fatalf("server never became ready: %v", err)
		}

		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned error after shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStart_RequiresSynthesizer(t *testing.T) {
	if err := New(config.DefaultConfig(), nil).Start(context.Background()); err == nil {
		t.Fatal("expected error without a synthesizer")
	}
}
