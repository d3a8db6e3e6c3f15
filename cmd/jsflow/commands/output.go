package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/l3aro/jsflow/pkg/analyzer"
	"github.com/l3aro/jsflow/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SkippedOutput is a skipped function in the analyze output.
type SkippedOutput struct {
	File string `json:"file"`
	types.SkippedFunction
}

// FailureOutput is a file that could not be analyzed.
type FailureOutput struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// AnalyzeOutput represents the output of the analyze command
type AnalyzeOutput struct {
	Files     int             `json:"files"`
	Functions int             `json:"functions"`
	Truncated int             `json:"truncated"`
	Issues    []types.Issue   `json:"issues"`
	Skipped   []SkippedOutput `json:"skipped,omitempty"`
	Failures  []FailureOutput `json:"failures,omitempty"`
}

func newAnalyzeOutput(report *analyzer.Report) *AnalyzeOutput {
	out := &AnalyzeOutput{Files: len(report.Files), Issues: report.Issues()}
	if out.Issues == nil {
		out.Issues = []types.Issue{}
	}
	for _, f := range report.Files {
		out.Functions += f.Functions
		out.Truncated += f.Truncated
		for _, s := range f.Skipped {
			out.Skipped = append(out.Skipped, SkippedOutput{File: f.Path, SkippedFunction: s})
		}
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, FailureOutput{File: f.Path, Error: f.Err.Error()})
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// styles renders text output. Colors are dropped when w is not a terminal.
type styles struct {
	location lipgloss.Style
	rule     lipgloss.Style
	muted    lipgloss.Style
	summary  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		location: r.NewStyle().Bold(true),
		rule:     r.NewStyle().Foreground(lipgloss.Color("3")),
		muted:    r.NewStyle().Faint(true),
		summary:  r.NewStyle().Bold(true),
	}
}

func printAnalyzeOutput(w io.Writer, out *AnalyzeOutput) {
	st := newStyles(w)

	for _, issue := range out.Issues {
		loc := fmt.Sprintf("%s:%d:%d:", issue.File, issue.Location.Line, issue.Location.Column)
		fmt.Fprintf(w, "%s %s %s\n", st.location.Render(loc), issue.Message, st.rule.Render("["+issue.Rule+"]"))
		for _, sec := range issue.Secondary {
			fmt.Fprintf(w, "    %s %s\n", st.muted.Render(fmt.Sprintf("%d:%d:", sec.Line, sec.Column)), sec.Message)
		}
	}
	for _, s := range out.Skipped {
		fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("skipped %s:%d %s: %s", s.File, s.Line, s.Name, s.Reason)))
	}
	for _, f := range out.Failures {
		fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("failed %s: %s", f.File, f.Error)))
	}

	summary := fmt.Sprintf("%d %s in %d %s (%d functions",
		len(out.Issues), plural(len(out.Issues), "issue", "issues"),
		out.Files, plural(out.Files, "file", "files"), out.Functions)
	if len(out.Skipped) > 0 {
		summary += fmt.Sprintf(", %d skipped", len(out.Skipped))
	}
	if out.Truncated > 0 {
		summary += fmt.Sprintf(", %d truncated", out.Truncated)
	}
	summary += ")"
	fmt.Fprintln(w, st.summary.Render(summary))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
