package ledger

import (
	"time"

	"caravel/internal/validation"
)

// Outcome is the terminal state of one mount in a run.
type Outcome string

const (
	OutcomeIntegrated    Outcome = "integrated"
	OutcomeReported      Outcome = "reported"
	OutcomeInternalError Outcome = "internal_error"
	OutcomeSkipped       Outcome = "skipped"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// StampFormat namespaces every artifact written for a run.
const StampFormat = "2006-01-02_15-04-05"

// ItemRecord is one entry of a run's outputs.
type ItemRecord struct {
	Mount      string             `json:"mount"`
	Upload     string             `json:"upload"`
	Collect    string             `json:"collect,omitempty"`
	Family     string             `json:"family,omitempty"`
	Outcome    Outcome            `json:"outcome"`
	Report     *validation.Report `json:"report,omitempty"`
	Moved      []string           `json:"moved,omitempty"`
	Skipped    []string           `json:"skipped,omitempty"`
	ReportJSON string             `json:"report_json,omitempty"`
	ReportDOCX string             `json:"report_docx,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Runtime describes the tool that produced a run.
type Runtime struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	GoVersion string   `json:"go_version"`
	Host      string   `json:"host,omitempty"`
	Families  []string `json:"families,omitempty"`
}

// Record is the finalized view of a run.
type Record struct {
	RunID    string       `json:"run_id"`
	Project  string       `json:"project"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Status   string       `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Inputs   any          `json:"inputs"`
	Outputs  []ItemRecord `json:"outputs"`
	Runtime  Runtime      `json:"runtime"`
}

// Stamp is the artifact timestamp derived from the run start.
func (r Record) Stamp() string {
	return r.Started.Format(StampFormat)
}

// Tally counts outputs per outcome.
func (r Record) Tally() map[Outcome]int {
	counts := make(map[Outcome]int, 4)
	for _, item := range r.Outputs {
		counts[item.Outcome]++
	}
	return counts
}
