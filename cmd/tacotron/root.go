package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron/internal/config"
	"github.com/example/go-tacotron/internal/logging"
	"github.com/example/go-tacotron/internal/runtime/tensor"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "tacotron",
		Short:         "Tacotron 2 text-to-spectrogram toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			if err := config.Validate(&loaded); err != nil {
				return err
			}

			activeCfg = loaded
			logging.Setup(cmd.ErrOrStderr(), loaded.LogLevel)
			tensor.SetWorkers(loaded.Training.Threads)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newPrepareCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newEvaluateCmd())
	cmd.AddCommand(newSynthCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// requireConfig returns the configuration loaded by the root command.
// Validate guarantees at least one language, so an empty list means the
// pre-run hook never ran.
func requireConfig() (config.Config, error) {
	if len(activeCfg.Dataset.Languages) == 0 {
		return config.Config{}, errors.New("configuration not loaded")
	}

	return activeCfg, nil
}
