package commands

import (
	"github.com/spf13/cobra"

	cfg "github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/fuzzer"
)

var withRawTx bool

// ReportCmd prints a YAML summary of a data directory.
var ReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the outcome log of a data directory",
	Long: `report prints, as YAML, the counts of outcomes by kind and strategy and
every outcome that recorded a finding, as of the last snapshot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dataDir, _ := cmd.Flags().GetString(flagDataDir)
		r, err := fuzzer.BuildReport(dataDir, cfg.DefaultDBProvider, withRawTx)
		if err != nil {
			return err
		}
		return r.WriteYAML(cmd.OutOrStdout())
	},
}

func init() {
	ReportCmd.Flags().String(flagDataDir, "", "data directory to summarize")
	ReportCmd.Flags().BoolVar(&withRawTx, "raw-tx", false, "include the hex encoded transaction of each finding")
	requireFlags(ReportCmd, flagDataDir)
}
