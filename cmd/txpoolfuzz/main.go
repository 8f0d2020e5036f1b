package main

import (
	"os"

	cmd "github.com/cellfuzz/txpoolfuzz/cmd/txpoolfuzz/commands"
	"github.com/cellfuzz/txpoolfuzz/fuzzer"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitCmd,
		cmd.ReportCmd,
		cmd.DefaultsCmd,
		cmd.VersionCmd,
	)

	// NOTE:
	// Users wishing to fuzz another pool implementation can copy this file
	// and pass their own fuzzer.EngineProvider.
	rootCmd.AddCommand(cmd.NewRunCmd(fuzzer.DefaultEngineProvider))

	os.Exit(cmd.Execute(rootCmd))
}
