package main

import (
	"fmt"
	"os"
	"path/filepath"

	"mailtriage/internal/console"

	"github.com/spf13/cobra"
)

var uploadShowTables bool

// uploadCmd sends one file through the same path as the console's upload form
var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an .eml or .arf file for parsing and analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadShowTables, "show", false, "Print the refreshed tables after the upload")
}

func runUpload(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	s := newSession()
	err = s.coordinator.SubmitUpload(cmd.Context(), &console.Upload{
		Filename: filepath.Base(args[0]),
		Content:  f,
	})
	if err != nil {
		s.printNotice(cmd)
		return err
	}
	if uploadShowTables {
		return console.RenderTerminal(cmd.OutOrStdout(), s.view.Snapshot())
	}
	s.printNotice(cmd)
	return nil
}
