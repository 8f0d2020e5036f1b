package commands

import (
	"os"

	"github.com/spf13/cobra"

	cfg "github.com/cellfuzz/txpoolfuzz/config"
	tpfflags "github.com/cellfuzz/txpoolfuzz/libs/cli/flags"
	"github.com/cellfuzz/txpoolfuzz/libs/log"
)

const (
	flagLogLevel   = "log_level"
	flagLogFormat  = "log_format"
	flagConfigFile = "config-file"
	flagDataDir    = "data-dir"
)

var logger = log.NewLogger(os.Stdout)

func init() {
	registerFlagsRootCmd(RootCmd)
}

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().String(flagLogLevel, "", "log level, overrides the config file (e.g. \"generator:debug,*:info\")")
	cmd.PersistentFlags().String(flagLogFormat, "", "log format, overrides the config file: plain | json")
}

// RootCmd is the root command for txpoolfuzz.
var RootCmd = &cobra.Command{
	Use:           "txpoolfuzz",
	Short:         "Stateful fuzz harness for UTXO transaction pools",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setupLogger builds the process logger from the base section of a config
// file, with the persistent flags taking precedence.
func setupLogger(cmd *cobra.Command, base cfg.BaseConfig) error {
	if lvl, _ := cmd.Flags().GetString(flagLogLevel); lvl != "" {
		base.LogLevel = lvl
	}
	if format, _ := cmd.Flags().GetString(flagLogFormat); format != "" {
		base.LogFormat = format
	}
	if err := base.ValidateBasic(); err != nil {
		return cfg.ErrConfig{Err: err}
	}

	var l log.Logger
	if base.LogFormat == cfg.LogFormatJSON {
		l = log.NewJSONLogger(os.Stdout)
	} else {
		l = log.NewLogger(os.Stdout)
	}
	l, err := tpfflags.ParseLogLevel(base.LogLevel, l, cfg.DefaultLogLevel)
	if err != nil {
		return cfg.ErrConfig{Err: err}
	}
	logger = l
	return nil
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}
