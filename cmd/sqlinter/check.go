package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/reporter"
	"github.com/StepaOpa/SQLinter/internal/scanner"
)

// errFindings makes the process exit non-zero without printing an error.
var errFindings = errors.New("queries failed the check")

var (
	reportFmt  string
	outputFile string
	excludes   []string
	failOn     string
	verbose    bool
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Analyse every SQL query under the given files and directories",
	Args:  cobra.ArbitraryArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&reportFmt, "report", "r", "console", "report format (console, json)")
	checkCmd.Flags().StringVarP(&outputFile, "out", "o", "", "write the report to this file instead of stdout")
	checkCmd.Flags().StringSliceVarP(&excludes, "exclude", "e", nil, "extra glob patterns or path fragments to skip")
	checkCmd.Flags().StringVar(&failOn, "fail-on", "error", "exit non-zero on: error, warning or never")
	checkCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also list queries judged correct")
}

func runCheck(cmd *cobra.Command, args []string) error {
	threshold, err := failThreshold(failOn)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	records, skipped, err := scan(cmd.Context(), a, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		out = f
	}
	rpt, err := newReporter(reportFmt, out)
	if err != nil {
		return err
	}
	if err := rpt.Report(records); err != nil {
		return fmt.Errorf("reporting failed: %w", err)
	}

	return outcome(records, skipped, threshold)
}

// outcome decides the exit status of a check. Files that could not be
// analysed fail the run unless nothing is set to fail it.
func outcome(records []model.QueryRecord, skipped int, threshold map[model.VerdictKind]bool) error {
	if failed(records, threshold) {
		return errFindings
	}
	if skipped > 0 && len(threshold) > 0 {
		return fmt.Errorf("%d file(s) could not be analysed", skipped)
	}
	return nil
}

// scan analyses every file under roots. Per-file failures are logged,
// skipped and counted; a configuration problem aborts the run.
func scan(ctx context.Context, a *app, roots []string) ([]model.QueryRecord, int, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	walker := scanner.NewFileWalker(a.cfg.Scan.Extensions, append(a.cfg.Scan.Excludes, excludes...))
	pool := scanner.NewWorkerPool(a.cfg.Scan.Workers, func(ctx context.Context, path string) ([]model.QueryRecord, error) {
		res, err := a.engine.AnalyzeFile(ctx, path)
		return res.Records, err
	})

	records, err := scanner.Scan(ctx, walker, pool, roots...)
	skipped := 0
	for _, e := range multierr.Errors(err) {
		var cfgErr *model.ConfigurationError
		if errors.As(e, &cfgErr) {
			return nil, 0, fmt.Errorf("%w (set %s)", e, a.cfg.CredentialEnv())
		}
		if errors.Is(e, context.Canceled) {
			return nil, 0, e
		}
		a.log.Warn("skipped file", zap.Error(e))
		skipped++
	}
	return records, skipped, nil
}

func newReporter(format string, out io.Writer) (model.Reporter, error) {
	switch format {
	case "console":
		return reporter.NewConsoleReporterTo(out, verbose), nil
	case "json":
		return reporter.NewJSONReporter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want console or json)", format)
	}
}

// failThreshold returns the verdicts that fail the run.
func failThreshold(level string) (map[model.VerdictKind]bool, error) {
	switch level {
	case "error":
		return map[model.VerdictKind]bool{model.VerdictError: true}, nil
	case "warning":
		return map[model.VerdictKind]bool{model.VerdictError: true, model.VerdictWarning: true}, nil
	case "never":
		return map[model.VerdictKind]bool{}, nil
	default:
		return nil, fmt.Errorf("unknown --fail-on %q (want error, warning or never)", level)
	}
}

func failed(records []model.QueryRecord, threshold map[model.VerdictKind]bool) bool {
	for _, r := range records {
		if threshold[r.Verdict] {
			return true
		}
	}
	return false
}
