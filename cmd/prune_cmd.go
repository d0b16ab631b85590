package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/stackbackup/internal/report"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archives older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		om, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer om.Close()

		res := om.Prune()
		fmt.Fprint(cmd.OutOrStdout(), report.RenderRetention(res))
		if res.Err != "" {
			return errors.New(res.Err)
		}
		return nil
	},
}
