package main

import (
	"github.com/spf13/cobra"

	"github.com/StepaOpa/SQLinter/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Review the queries of one file interactively",
	Long:  "Open an interactive list of the file's queries: a applies the selected correction, d dismisses it, r re-analyses the file and q quits.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return tui.Run(cmd.Context(), args[0], a.engine, a.docs)
	},
}
