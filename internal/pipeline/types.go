// Package pipeline orchestrates one sync cycle: pull batch files from the
// source drop, archive and stage them, and reconcile staged records against
// the CRM, keeping file-level and record-level state consistent when any
// step fails partway.
package pipeline

// Mode selects how staging and reconciliation are coupled.
type Mode string

const (
	// ModeCombined reconciles each file's records immediately after staging,
	// within the same invocation.
	ModeCombined Mode = "combined"

	// ModeDeferred only stages; a separate reconciliation cycle later picks
	// up pending rows old enough to be safely mutable.
	ModeDeferred Mode = "deferred"
)

// File and cycle outcomes.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

type (
	// RecordFailure describes one VIN that could not be reconciled.
	RecordFailure struct {
		VIN     string `json:"vin"`
		StageID string `json:"stage_id"`
		Message string `json:"error"`
	}

	// FileReport is the outcome of one source file's pass through the
	// pipeline. A file is a success once its data is staged and its archive
	// copy reaches the processed location; individual VIN failures are
	// reported but do not demote the file.
	FileReport struct {
		SourceFilename string          `json:"source_filename"`
		FileURI        string          `json:"file_uri,omitempty"`
		Status         string          `json:"status"`
		StagedRecords  int             `json:"staged_records"`
		Successes      int             `json:"successful_updates"`
		Failures       []RecordFailure `json:"failures,omitempty"`
		Error          string          `json:"error,omitempty"`
	}

	// CycleSummary is the structured result of one pipeline invocation, the
	// sole externally observable outcome besides side effects. The trigger
	// surface returns it verbatim; it never carries a transport error.
	CycleSummary struct {
		Status         string          `json:"status"`
		FilesProcessed int             `json:"files_processed"`
		StagedRecords  int             `json:"staged_records"`
		Successes      int             `json:"successful_updates"`
		Failures       []RecordFailure `json:"failures,omitempty"`
		FileReports    []FileReport    `json:"file_reports,omitempty"`
		Error          string          `json:"error,omitempty"`
	}
)

// summarize folds file reports into the cycle-level view.
func summarize(reports []FileReport) CycleSummary {
	summary := CycleSummary{
		Status:         StatusSuccess,
		FilesProcessed: len(reports),
		FileReports:    reports,
	}

	anyError := false

	for _, report := range reports {
		summary.StagedRecords += report.StagedRecords
		summary.Successes += report.Successes
		summary.Failures = append(summary.Failures, report.Failures...)

		if report.Status == StatusError {
			anyError = true
		}
	}

	switch {
	case anyError:
		summary.Status = StatusError
	case len(summary.Failures) > 0:
		summary.Status = StatusPartial
	}

	return summary
}
