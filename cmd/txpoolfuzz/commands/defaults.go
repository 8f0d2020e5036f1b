package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/cellfuzz/txpoolfuzz/config"
)

// DefaultsCmd writes the default init or run configuration file.
var DefaultsCmd = &cobra.Command{
	Use:       "defaults [init|run] <path>",
	Short:     "Write a default configuration file",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"init", "run"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogger(cmd, cfg.DefaultBaseConfig()); err != nil {
			return err
		}

		var (
			content []byte
			err     error
		)
		switch args[0] {
		case "init":
			content, err = cfg.RenderInitConfig(cfg.DefaultInitConfig())
		case "run":
			content, err = cfg.RenderRunConfig(cfg.DefaultRunConfig())
		default:
			return fmt.Errorf("unknown config kind %q (must be 'init' or 'run')", args[0])
		}
		if err != nil {
			return err
		}
		if err := cfg.WriteConfigFile(args[1], content); err != nil {
			return err
		}
		logger.Info("Wrote default configuration", "kind", args[0], "path", args[1])
		return nil
	},
}
