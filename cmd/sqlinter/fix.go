package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/StepaOpa/SQLinter/internal/engine"
	"github.com/StepaOpa/SQLinter/internal/model"
)

var dryRun bool

var fixCmd = &cobra.Command{
	Use:   "fix [paths...]",
	Short: "Analyse files and apply every available correction",
	Long:  "Run a check over the given paths, then replace each query that has a correction with it. Files are rewritten atomically.",
	Args:  cobra.ArbitraryArgs,
	RunE:  runFix,
}

func init() {
	fixCmd.Flags().StringSliceVarP(&excludes, "exclude", "e", nil, "extra glob patterns or path fragments to skip")
	fixCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list corrections without writing files")
}

// cliSurface prints notices and persists writes through the document store.
type cliSurface struct {
	out   io.Writer
	write func(path, text string) error
	shown map[string]int
}

func (s *cliSurface) Show(path string, records []model.QueryRecord) { s.shown[path] = len(records) }

func (s *cliSurface) Notify(level engine.NoticeLevel, message string) {
	fmt.Fprintf(s.out, "%s %s\n", color.YellowString("[%s]", level), message)
}

func (s *cliSurface) Write(path, text string) error { return s.write(path, text) }

func runFix(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	records, _, err := scan(cmd.Context(), a, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	surface := &cliSurface{out: cmd.ErrOrStderr(), write: a.docs.Write, shown: map[string]int{}}
	fixed, files := 0, map[string]bool{}
	var errs error
	for _, rec := range records {
		if !rec.Fixable() {
			continue
		}
		loc := fmt.Sprintf("%s:%d", rec.FilePath, rec.Span.StartLine)
		if dryRun {
			fmt.Fprintf(out, "%s: %s\n\t-> %s\n", loc, oneLine(rec.QueryText), color.GreenString(oneLine(*rec.Correction)))
			fixed++
			files[rec.FilePath] = true
			continue
		}
		effects := a.engine.Dispatch(cmd.Context(), engine.Event{Type: engine.EventApply, Identity: rec.Identity})
		if err := engine.Deliver(surface, effects); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if wrote(effects) {
			fmt.Fprintf(out, "%s: fixed %s\n", loc, color.CyanString(oneLine(rec.QueryText)))
			fixed++
			files[rec.FilePath] = true
		}
	}

	verb := "fixed"
	if dryRun {
		verb = "would fix"
	}
	fmt.Fprintf(out, "%s %d queries in %d files.\n", verb, fixed, len(files))
	return errs
}

func wrote(effects []engine.Effect) bool {
	for _, ef := range effects {
		if ef.Type == engine.EffectWrite {
			return true
		}
	}
	return false
}
