package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/StepaOpa/SQLinter/internal/extractor"
	"github.com/StepaOpa/SQLinter/internal/model"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Print the SQL candidates found in files, without judging them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd.OutOrStdout(), extractor.NewDefaultManager(), args)
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print one JSON object per candidate")
}

type extractedQuery struct {
	File  string           `json:"file"`
	Query string           `json:"query"`
	Span  model.SourceSpan `json:"span"`
}

func runExtract(out io.Writer, mgr *extractor.Manager, files []string) error {
	enc := json.NewEncoder(out)
	for _, file := range files {
		_, seq, err := mgr.ExtractFile(file)
		if err != nil {
			return err
		}
		for c := range seq {
			if extractJSON {
				if err := enc.Encode(extractedQuery{File: file, Query: c.Text, Span: c.Span}); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(out, "%s:%s [%d,%d) %s\n", file, c.Span, c.Span.AbsoluteStart, c.Span.AbsoluteEnd, oneLine(c.Text))
		}
	}
	return nil
}

func oneLine(s string) string { return strings.Join(strings.Fields(s), " ") }
