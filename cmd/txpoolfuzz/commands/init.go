package commands

import (
	"github.com/spf13/cobra"

	cfg "github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/fuzzer"
)

// InitCmd creates a data directory from an init config file.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a data directory holding the genesis chain state",
	Long: `init builds the genesis chain state described by --config-file and
writes it, with the initial seed state, to --data-dir. The data directory must
not exist yet; on failure nothing is left behind.`,
	Args: cobra.NoArgs,
	RunE: initFiles,
}

func init() {
	InitCmd.Flags().String(flagConfigFile, "", "path to the init YAML file")
	InitCmd.Flags().String(flagDataDir, "", "data directory to create")
	requireFlags(InitCmd, flagConfigFile, flagDataDir)
}

func initFiles(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString(flagConfigFile)
	dataDir, _ := cmd.Flags().GetString(flagDataDir)

	conf, err := cfg.LoadInitConfig(path)
	if err != nil {
		return err
	}
	if err := setupLogger(cmd, conf.BaseConfig); err != nil {
		return err
	}
	return fuzzer.Init(conf, dataDir, logger)
}
