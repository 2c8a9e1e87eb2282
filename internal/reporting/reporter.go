// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/rodaine/table"

	"github.com/xkilldash9x/navcrawl/internal/checks"
	"github.com/xkilldash9x/navcrawl/internal/discovery"
	"github.com/xkilldash9x/navcrawl/internal/visitor"
)

// Report is the machine readable record of one run.
type Report struct {
	RunID       string                     `json:"run_id"`
	Mode        string                     `json:"mode"`
	Target      string                     `json:"target"`
	StartedAt   time.Time                  `json:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at"`
	Discovered  []discovery.NavigationLink `json:"discovered"`
	Visited     int                        `json:"visited"`
	Counts      map[checks.Category]int    `json:"counts,omitempty"`
	TotalErrors int                        `json:"total_errors"`
	Links       []visitor.LinkOutcome      `json:"links,omitempty"`
}

// NewReport starts a report for a run in mode against target.
func NewReport(mode, target string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Target:    target,
		StartedAt: time.Now().UTC(),
	}
}

// Complete records the run outcome. results is nil for discovery-only runs.
func (r *Report) Complete(links []discovery.NavigationLink, results *visitor.Results) {
	r.FinishedAt = time.Now().UTC()
	r.Discovered = links
	if results != nil {
		r.Visited = results.Visited
		r.Counts = results.Counts
		r.TotalErrors = results.Total()
		r.Links = results.Links
	}
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Open returns a writer for outputPath; "" and "stdout" mean standard
// output, which is never closed.
func Open(outputPath string) (io.WriteCloser, error) {
	if outputPath == "" || outputPath == "stdout" {
		return &nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return f, nil
}

// WriteJSON writes the report as indented JSON to outputPath.
func WriteJSON(outputPath string, r *Report) error {
	w, err := Open(outputPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		w.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return w.Close()
}

// PrintLinks writes a numbered list of links.
func PrintLinks(w io.Writer, links []discovery.NavigationLink) {
	if len(links) == 0 {
		fmt.Fprintln(w, "No links.")
		return
	}
	tbl := table.New("#", "Text", "Href").WithWriter(w)
	for i, l := range links {
		tbl.AddRow(i+1, l.Text, l.Href)
	}
	tbl.Print()
}

// PrintSummary writes per-category error counts, then every link that did
// not come back clean.
func PrintSummary(w io.Writer, results visitor.Results) {
	fmt.Fprintf(w, "Visited %d link(s).\n\n", results.Visited)

	counts := table.New("Category", "Errors").WithWriter(w)
	for _, c := range checks.Categories {
		counts.AddRow(c, results.Counts[c])
	}
	counts.AddRow("total", results.Total())
	counts.Print()

	var problems [][]string
	for _, l := range results.Links {
		if l.Outcome != visitor.OutcomeOK {
			problems = append(problems, []string{l.Link.Text, string(l.Outcome), l.Error})
		}
		for _, f := range l.Findings {
			problems = append(problems, []string{l.Link.Text, f.Kind, findingDetail(f)})
		}
	}
	if len(problems) == 0 {
		fmt.Fprintln(w, "\nNo problems found.")
		return
	}
	fmt.Fprintln(w)
	tbl := table.New("Page", "Problem", "Detail").WithWriter(w)
	for i, p := range problems {
		// repeated page names are blanked like a grouped report
		if i > 0 && problems[i-1][0] == p[0] {
			p = []string{"", p[1], p[2]}
		}
		tbl.AddRow(p[0], p[1], p[2])
	}
	tbl.Print()
}

func findingDetail(f checks.Finding) string {
	detail := f.Detail
	if f.URL != "" {
		detail = f.URL + " " + detail
	}
	if f.Screenshot != "" {
		detail += " [" + f.Screenshot + "]"
	}
	return detail
}
