package main

import (
	"mailtriage/internal/console"

	"github.com/spf13/cobra"
)

// listCmd prints both tables
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the parsed and raw email tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession()
		if err := s.loader.Reload(cmd.Context()); err != nil {
			s.printNotice(cmd)
			return err
		}
		return console.RenderTerminal(cmd.OutOrStdout(), s.view.Snapshot())
	},
}
