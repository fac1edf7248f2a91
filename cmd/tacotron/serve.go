package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/server"
	"github.com/example/go-tacotron/internal/tts"
)

func newServeCmd() *cobra.Command {
	var checkpoint string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve synthesis over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if checkpoint == "" {
				checkpoint = cfg.Paths.Checkpoint
			}

			svc, err := tts.NewService(cfg, checkpoint)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			info := server.InfoFromConfig(cfg).WithVocabulary(svc.Vocabulary())

			return server.New(cfg, svc).WithInfo(info).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint path (default paths.checkpoint)")

	return cmd
}
