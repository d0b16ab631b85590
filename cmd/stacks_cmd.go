package cmd

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/kebairia/stackbackup/internal/config"
	"github.com/kebairia/stackbackup/internal/stack"
)

var stacksCmd = &cobra.Command{
	Use:   "stacks",
	Short: "List configured stacks and their compose files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var cfg config.Config
		if err := cfg.Load(ConfigFile); err != nil {
			return err
		}

		table := uitable.New()
		table.MaxColWidth = 60
		table.AddRow("STACK", "PATH", "COMPOSE FILE")
		for _, s := range cfg.StackList() {
			file, err := stack.ComposeFile(s.Path)
			if err != nil {
				file = "missing"
			}
			table.AddRow(s.Name, s.Path, file)
		}
		fmt.Fprintln(cmd.OutOrStdout(), table)
		return nil
	},
}
