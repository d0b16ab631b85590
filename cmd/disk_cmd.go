package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/kebairia/stackbackup/internal/report"
)

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Show disk usage of the backup destination and the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		om, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer om.Close()

		out := cmd.OutOrStdout()
		fmt.Fprint(out, report.RenderDisk(om.DiskUsage()))

		last, err := om.LastRun()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fmt.Fprintln(out, "No previous run recorded.")
		case err != nil:
			om.Logger().Warn("could not read last run", "error", err.Error())
			fmt.Fprintln(out, "Last run unavailable.")
		default:
			fmt.Fprint(out, report.RenderLastRun(last))
		}
		return nil
	},
}
