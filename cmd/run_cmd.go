package cmd

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up every configured stack",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, _ []string) error {
	om, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer om.Close()

	_, err = om.BackupAll()
	return err
}
