package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Status glyphs.
const (
	GlyphPass = "✔"
	GlyphFail = "✘"
	GlyphSkip = "⊘"
)

type SummaryOptions struct {
	Color bool
}

// WriteSummary prints one line per scenario, failure details, and a totals table.
func WriteSummary(w io.Writer, doc *Document, opts SummaryOptions) error {
	paint := func(c text.Color, s string) string {
		if !opts.Color {
			return s
		}
		return c.Sprint(s)
	}
	var b strings.Builder
	for _, m := range doc.Missions {
		for _, sc := range m.Scenarios {
			line := fmt.Sprintf("%s / %s (%dms)", m.Name, sc.Name, sc.DurationMs)
			switch sc.Status {
			case "pass":
				fmt.Fprintf(&b, "%s %s\n", paint(text.FgGreen, GlyphPass), line)
			case "skip":
				fmt.Fprintf(&b, "%s %s: %s\n", paint(text.FgYellow, GlyphSkip), line, sc.Reason)
			default:
				fmt.Fprintf(&b, "%s %s: %s\n", paint(text.FgRed, GlyphFail), line, sc.Reason)
				writeFailure(&b, sc.Failure)
			}
			for _, s := range sc.SoftFailures {
				fmt.Fprintf(&b, "    soft: %s\n", s)
			}
			for _, warn := range sc.TeardownWarnings {
				fmt.Fprintf(&b, "    teardown warning: %s\n", warn)
			}
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	header := table.Row{"Passed", "Failed", "Skipped", "Total", "Duration"}
	if opts.Color {
		for i := range header {
			header[i] = text.FgHiCyan.Sprint(header[i])
		}
	}
	t.AppendHeader(header)
	s := doc.Summary
	t.AppendRow(table.Row{s.Passed, s.Failed, s.Skipped, s.Passed + s.Failed + s.Skipped,
		doc.FinishedAt.Sub(doc.StartedAt).Round(time.Millisecond).String()})
	t.Render()
	return nil
}

func writeFailure(b *strings.Builder, f *Failure) {
	if f == nil {
		return
	}
	fmt.Fprintf(b, "    step %d: %s\n", f.StepIndex, f.Diagnostic)
	if r := f.RequestExcerpt; r != nil {
		fmt.Fprintf(b, "    request: %s %s\n", r.Method, r.URL)
	}
	if r := f.ResponseExcerpt; r != nil {
		fmt.Fprintf(b, "    response: %d in %dms after %d attempt(s)\n", r.Status, r.ElapsedMs, r.Attempts)
		if r.Body != "" {
			fmt.Fprintf(b, "    body: %s\n", r.Body)
		}
	}
}
