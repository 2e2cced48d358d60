package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind tags a Report.
type Kind int

const (
	// Clean means every validator ran and returned no issue.
	Clean Kind = iota
	// ContentIssues means validators ran and at least one reported issues.
	ContentIssues
	// InternalFailure means a hook failed; the report is not a verdict on
	// the data.
	InternalFailure
)

func (k Kind) String() string {
	switch k {
	case Clean:
		return "clean"
	case ContentIssues:
		return "content_issues"
	case InternalFailure:
		return "internal_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	// InternalErrorKey is the synthetic validator name holding the
	// internal-failure description.
	InternalErrorKey = "internal_error"
	// InternalErrorMarker prefixes the description stored under
	// InternalErrorKey so readers of report.json can spot it.
	InternalErrorMarker = "Internal error"
)

// Report maps validator names to ordered issue descriptions.
// The zero value is a clean, empty report.
type Report struct {
	kind   Kind
	issues map[string][]string
	detail string
}

// NewReport builds a Clean or ContentIssues report. Issue slices are copied.
func NewReport(issues map[string][]string) Report {
	r := Report{issues: copyIssues(issues)}
	for _, list := range r.issues {
		if len(list) > 0 {
			r.kind = ContentIssues
			break
		}
	}
	return r
}

// NewInternalFailure builds an InternalFailure report that keeps the issues
// gathered before the failure and records the failing hook under
// InternalErrorKey.
func NewInternalFailure(partial map[string][]string, hook string, err error) Report {
	detail := fmt.Sprintf("%s in %s", InternalErrorMarker, hook)
	if err != nil {
		detail = fmt.Sprintf("%s: %v", detail, err)
	}
	issues := copyIssues(partial)
	issues[InternalErrorKey] = []string{detail}
	return Report{kind: InternalFailure, issues: issues, detail: detail}
}

func copyIssues(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for name, list := range in {
		if list == nil {
			list = []string{}
		}
		out[name] = append([]string{}, list...)
	}
	return out
}

func (r Report) Kind() Kind { return r.kind }

// IsClean reports whether the data may be integrated.
func (r Report) IsClean() bool { return r.kind == Clean }

// Detail describes the internal failure; empty for other kinds.
func (r Report) Detail() string { return r.detail }

// Validators returns the validator names in sorted order, with
// InternalErrorKey last.
func (r Report) Validators() []string {
	names := make([]string, 0, len(r.issues))
	for name := range r.issues {
		if name != InternalErrorKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := r.issues[InternalErrorKey]; ok {
		names = append(names, InternalErrorKey)
	}
	return names
}

// Issues returns a copy of the issues recorded for name.
func (r Report) Issues(name string) []string {
	return append([]string{}, r.issues[name]...)
}

// IssueCount returns the total number of issues across validators.
func (r Report) IssueCount() int {
	total := 0
	for _, list := range r.issues {
		total += len(list)
	}
	return total
}

// Failed lists validators with at least one issue.
func (r Report) Failed() []string {
	var out []string
	for _, name := range r.Validators() {
		if len(r.issues[name]) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// Map returns a copy of the underlying mapping.
func (r Report) Map() map[string][]string {
	return copyIssues(r.issues)
}

// MarshalJSON writes the structured form: an object of validator name to
// issue array.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON restores a report. A structured form holding
// InternalErrorKey decodes as InternalFailure.
func (r *Report) UnmarshalJSON(data []byte) error {
	var issues map[string][]string
	if err := json.Unmarshal(data, &issues); err != nil {
		return err
	}
	if sentinel, ok := issues[InternalErrorKey]; ok {
		*r = Report{kind: InternalFailure, issues: copyIssues(issues), detail: strings.Join(sentinel, "; ")}
		return nil
	}
	*r = NewReport(issues)
	return nil
}
