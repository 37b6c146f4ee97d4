package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

func writeText(w io.Writer, doc Document) error {
	outcome := "ok"
	if !doc.Success {
		outcome = fmt.Sprintf("FAILED (exit %d)", doc.ExitCode)
	}
	if _, err := fmt.Fprintf(w, "Project %s on %s: %s\n", doc.Project, doc.Platform, outcome); err != nil {
		return err
	}
	if len(doc.IgnoredVariables) > 0 {
		if _, err := fmt.Fprintf(w, "Ignored variables: %s\n", strings.Join(doc.IgnoredVariables, ", ")); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATUS\tTIME\tERROR")
	for _, m := range doc.Modules {
		errCol := ""
		if m.ErrorKind != "" {
			errCol = m.ErrorKind + ": " + firstLine(m.Cause)
		}
		d := (time.Duration(m.DurationMS) * time.Millisecond).String()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Status, d, errCol)
		for _, in := range m.Installed {
			fmt.Fprintf(tw, "  %s\t%s\t\t-> %s\n", in.Type, in.Payload, in.Path)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeTests(w, doc)
}

// writeTests lists every test outcome followed by the totals. Nothing is
// written when no test ran.
func writeTests(w io.Writer, doc Document) error {
	if doc.TestsPassed+doc.TestsFailed == 0 {
		return nil
	}
	var b strings.Builder
	for _, m := range doc.Modules {
		for _, t := range m.Tests {
			outcome := "PASSED"
			if !t.Passed {
				outcome = "FAILED"
			}
			fmt.Fprintf(&b, "%s - [%s] %s\n", outcome, m.Name, t.Name)
			if t.Cause != "" {
				fmt.Fprintf(&b, "      %s\n", firstLine(t.Cause))
			}
		}
	}
	fmt.Fprintf(&b, "Tests complete (%d passed, %d failed)\n", doc.TestsPassed, doc.TestsFailed)
	_, err := io.WriteString(w, b.String())
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func writeJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
