package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/StepaOpa/SQLinter/internal/model"
)

const snippetWidth = 80

type ConsoleReporter struct {
	out     io.Writer
	verbose bool // also list queries judged correct
}

func NewConsoleReporter() *ConsoleReporter {
	return NewConsoleReporterTo(os.Stdout, false)
}

// NewConsoleReporterTo writes to out. Colour is disabled unless out is a terminal.
func NewConsoleReporterTo(out io.Writer, verbose bool) *ConsoleReporter {
	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}
	return &ConsoleReporter{out: out, verbose: verbose}
}

func (r *ConsoleReporter) Report(records []model.QueryRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(r.out, color.GreenString("✔ No SQL queries found."))
		return nil
	}

	problems := 0
	for _, rec := range records {
		if rec.Verdict == model.VerdictError || rec.Verdict == model.VerdictWarning {
			problems++
		} else if !r.verbose {
			continue
		}

		// Format: file:line:col: [VERDICT] reason
		loc := fmt.Sprintf("%s:%d:%d", rec.FilePath, rec.Span.StartLine, rec.Span.StartColumn+1)
		fmt.Fprintf(r.out, "%s: [%s] %s\n", loc, verdictColor(rec.Verdict).Sprint(strings.ToUpper(rec.Verdict.String())), rec.Reason)
		fmt.Fprintf(r.out, "\tQuery: %s\n", color.CyanString(truncate(oneLine(rec.QueryText), snippetWidth)))
		if rec.Correction != nil {
			fmt.Fprintf(r.out, "\tCorrection: %s\n", color.GreenString(truncate(oneLine(*rec.Correction), snippetWidth)))
		}
		fmt.Fprintf(r.out, "\tId: %s\n", rec.Identity)
		fmt.Fprintln(r.out)
	}

	fmt.Fprint(r.out, summary(records))
	if problems == 0 {
		fmt.Fprintf(r.out, "\n%s %d queries checked, no problems.\n", color.GreenString("✔"), len(records))
	} else {
		fmt.Fprintf(r.out, "\n%s found %d problems in %d queries.\n", color.RedString("✘"), problems, len(records))
	}
	return nil
}

func verdictColor(k model.VerdictKind) *color.Color {
	switch k {
	case model.VerdictError:
		return color.New(color.FgRed, color.Bold)
	case model.VerdictWarning:
		return color.New(color.FgYellow, color.Bold)
	case model.VerdictCorrect:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgWhite)
	}
}

// summary renders per-file verdict counts.
func summary(records []model.QueryRecord) string {
	type counts [4]int
	perFile := make(map[string]*counts)
	var total counts
	for _, rec := range records {
		c, ok := perFile[rec.FilePath]
		if !ok {
			c = &counts{}
			perFile[rec.FilePath] = c
		}
		c[column(rec.Verdict)]++
		total[column(rec.Verdict)]++
	}

	files := make([]string, 0, len(perFile))
	for f := range perFile {
		files = append(files, f)
	}
	sort.Strings(files)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"File", "Error", "Warning", "Correct", "Unknown"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	for _, f := range files {
		c := perFile[f]
		table.Append([]string{truncate(f, 60), itoa(c[0]), itoa(c[1]), itoa(c[2]), itoa(c[3])})
	}
	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(files)),
		itoa(total[0]), itoa(total[1]), itoa(total[2]), itoa(total[3]),
	})
	table.Render()
	return buf.String()
}

func column(k model.VerdictKind) int {
	switch k {
	case model.VerdictError:
		return 0
	case model.VerdictWarning:
		return 1
	case model.VerdictCorrect:
		return 2
	default:
		return 3
	}
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to width display cells.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
