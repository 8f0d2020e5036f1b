package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfg "github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/fuzzer"
)

// NewRunCmd returns the command that loads a data directory and fuzzes the
// pool built by engineProvider. SIGINT and SIGTERM drain the run: the
// in-flight submission completes and a final snapshot is written.
func NewRunCmd(engineProvider fuzzer.EngineProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"start"},
		Short:   "Run the fuzz loop against a data directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString(flagConfigFile)
			dataDir, _ := cmd.Flags().GetString(flagDataDir)

			conf, err := cfg.LoadRunConfig(path)
			if err != nil {
				return err
			}
			if err := setupLogger(cmd, conf.BaseConfig); err != nil {
				return err
			}
			if iterations, _ := cmd.Flags().GetUint64("max-iterations"); cmd.Flags().Changed("max-iterations") {
				conf.Driver.MaxIterations = iterations
			}

			d, err := fuzzer.Load(conf, dataDir,
				fuzzer.WithLogger(logger),
				fuzzer.WithEngineProvider(engineProvider),
			)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			runErr := d.Run(ctx)
			if err := d.Close(); err != nil {
				logger.Error("Failed to close driver", "err", err)
				if runErr == nil {
					runErr = err
				}
			}
			return runErr
		},
	}

	cmd.Flags().String(flagConfigFile, "", "path to the run YAML file")
	cmd.Flags().String(flagDataDir, "", "data directory created by init")
	cmd.Flags().Uint64("max-iterations", 0, "overrides driver.max_iterations (0 runs until interrupted)")
	requireFlags(cmd, flagConfigFile, flagDataDir)
	return cmd
}
