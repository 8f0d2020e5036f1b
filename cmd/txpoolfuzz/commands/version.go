package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cellfuzz/txpoolfuzz/version"
)

var verbose bool

// VersionCmd ...
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, _ []string) {
		if verbose {
			values, err := json.MarshalIndent(struct {
				TxPoolFuzz   string `json:"txpoolfuzz"`
				StoreVersion uint64 `json:"store_version"`
			}{
				TxPoolFuzz:   version.String(),
				StoreVersion: version.StoreVersion,
			}, "", "  ")
			if err != nil {
				panic(fmt.Sprintf("failed to marshal version info: %v", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		}
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the store version")
}
