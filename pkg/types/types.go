// Package types defines the results jsflow reports to its host: issues found
// in a file and the functions that could not be analyzed.
// It does not depend on the CFG or the engine.
package types

import (
	"fmt"
	"sort"
)

// Location is a source range. Lines and columns are 1-based.
type Location struct {
	Line      int `json:"line" msgpack:"line"`
	Column    int `json:"column" msgpack:"column"`
	EndLine   int `json:"end_line" msgpack:"end_line"`
	EndColumn int `json:"end_column" msgpack:"end_column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// SecondaryLocation points at code related to an issue.
type SecondaryLocation struct {
	Location
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// Issue is a defect reported by a rule
type Issue struct {
	File      string              `json:"file" msgpack:"file"`
	Location  Location            `json:"location" msgpack:"location"`
	Message   string              `json:"message" msgpack:"message"`
	Rule      string              `json:"rule" msgpack:"rule"`
	Secondary []SecondaryLocation `json:"secondary,omitempty" msgpack:"secondary,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s:%s: %s [%s]", i.File, i.Location, i.Message, i.Rule)
}

// SkippedFunction is a function left out of the analysis.
type SkippedFunction struct {
	Name   string `json:"name" msgpack:"name"`
	Line   int    `json:"line" msgpack:"line"`
	Reason string `json:"reason" msgpack:"reason"`
}

// FileResult holds everything found in one file.
type FileResult struct {
	Path      string            `json:"path" msgpack:"path"`
	Issues    []Issue           `json:"issues" msgpack:"issues"`
	Skipped   []SkippedFunction `json:"skipped,omitempty" msgpack:"skipped,omitempty"`
	Functions int               `json:"functions" msgpack:"functions"`
	// Truncated counts explorations stopped by the node or step cap.
	Truncated int `json:"truncated,omitempty" msgpack:"truncated,omitempty"`
}

// SortIssues orders issues by file, line, column, rule and message.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Location.Column != b.Location.Column {
			return a.Location.Column < b.Location.Column
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Message < b.Message
	})
}
