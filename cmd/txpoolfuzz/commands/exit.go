package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cfg "github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/fuzzer"
	"github.com/cellfuzz/txpoolfuzz/store"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitStore   = 3
	ExitFinding = 4
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		errConfig   cfg.ErrConfig
		errFinding  fuzzer.ErrFinding
		errStore    store.ErrStore
		errCorrupt  store.ErrCorrupted
		errVersion  store.ErrStoreVersion
		errNotInit  fuzzer.ErrNotInitialized
		errDirExist fuzzer.ErrDataDirExists
	)
	switch {
	case errors.As(err, &errFinding):
		return ExitFinding
	case errors.As(err, &errConfig), errors.As(err, &errDirExist):
		return ExitConfig
	case errors.As(err, &errStore), errors.As(err, &errCorrupt),
		errors.As(err, &errVersion), errors.As(err, &errNotInit):
		return ExitStore
	default:
		return ExitFailure
	}
}

// Execute runs cmd and returns the exit code of the process.
func Execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return ExitCode(err)
}
