package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/stackbackup/internal/config"
	"github.com/kebairia/stackbackup/internal/logger"
	"github.com/kebairia/stackbackup/internal/operations"
)

// Exit codes returned by Execute.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitAborted = 2
)

// ConfigFile is the path to the YAML configuration.
var ConfigFile string

// rootCmd runs a backup when invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "stackbackup",
	Short: "Back up Docker compose stacks",
	Long: `stackbackup stops each configured compose stack, archives its
directory, and starts it again, one stack at a time. Old archives are
pruned and a report is logged and optionally mailed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackup,
}

// Execute runs the root command and maps the outcome to an exit code:
// 0 when every stack succeeded, 1 when any stack failed, and 2 when the run
// could not start.
func Execute() int {
	defer logger.Cleanup()
	return ExitCode(rootCmd.ExecuteContext(context.Background()))
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, operations.ErrRunFailed):
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return ExitFailure
	default:
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return ExitAborted
	}
}

func newManager(cmd *cobra.Command) (*operations.OperationManager, error) {
	return operations.NewOperationManager(cmd.Context(), ConfigFile)
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", config.DefaultPath, "path to YAML config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(diskCmd)
	rootCmd.AddCommand(stacksCmd)
}
