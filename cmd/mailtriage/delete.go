package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var deleteYes bool

// deleteCmd deletes a parsed email after the same confirmation step the console shows
var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a parsed email",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid email id %q", args[0])
	}

	s := newSession()
	s.coordinator.RequestDelete(id)

	if !deleteYes && !confirm(cmd, fmt.Sprintf("Are you sure you want to delete parsed email %d?", id)) {
		s.coordinator.CancelDelete()
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	err = s.coordinator.ConfirmDelete(cmd.Context())
	s.printNotice(cmd)
	return err
}

// confirm asks a yes/no question on the command's input
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
