package models

import "fmt"

// Rule identifies a diagnostic kind. The string values are part of the
// stable output contract.
type Rule string

const (
	RuleUnusedVariable        Rule = "unusedVariable"
	RuleUnreadVariable        Rule = "unreadVariable"
	RuleUnassignedVariable    Rule = "unassignedVariable"
	RuleUnusedAllocatedMemory Rule = "unusedAllocatedMemory"
	RuleUnusedStructMember    Rule = "unusedStructMember"
	RuleInsufficientTypeInfo  Rule = "insufficientTypeInfo"
)

// Severity classifies a diagnostic. Style diagnostics are actionable
// findings; information diagnostics report analysis coverage gaps.
type Severity string

const (
	SeverityStyle       Severity = "style"
	SeverityInformation Severity = "information"
)

// Location is a source position.
type Location struct {
	File   string `json:"file"`
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Diagnostic is one analysis finding.
type Diagnostic struct {
	Location Location `json:"location"`
	Severity Severity `json:"severity"`
	Rule     Rule     `json:"rule"`
	Message  string   `json:"message"`
	Symbol   string   `json:"symbol,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s [%s]", d.Location, d.Severity, d.Message, d.Rule)
}

// Report aggregates diagnostics for a set of analyzed files.
type Report struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	FilesTotal  int          `json:"files_total"`
	FilesFailed int          `json:"files_failed"`
}

// CountByRule returns how many diagnostics carry each rule.
func (r *Report) CountByRule() map[Rule]int {
	counts := make(map[Rule]int)
	for _, d := range r.Diagnostics {
		counts[d.Rule]++
	}
	return counts
}

// StyleCount returns the number of style-severity diagnostics.
func (r *Report) StyleCount() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityStyle {
			n++
		}
	}
	return n
}
