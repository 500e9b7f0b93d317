package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vinsync-io/vinsync/internal/crm"
	"github.com/vinsync-io/vinsync/internal/decode"
	"github.com/vinsync-io/vinsync/internal/filestore"
	"github.com/vinsync-io/vinsync/internal/notify"
	"github.com/vinsync-io/vinsync/internal/source"
	"github.com/vinsync-io/vinsync/internal/staging"
)

// notFoundMessage is the per-record failure recorded when the CRM has no
// vehicle for a staged VIN. Absence is a normal outcome, not a system fault;
// the record fails, the batch continues.
const notFoundMessage = "Vehicle not found in CRM"

// Reconciler is the pipeline's view of the CRM client. Satisfied by
// *crm.Client and by fakes in tests.
type Reconciler interface {
	Authenticate(ctx context.Context) error
	FindVehicle(ctx context.Context, vin string) (crm.Lookup, error)
	UpdateVehicle(ctx context.Context, vehicleID string, record staging.VehicleRecord) error
}

// Pipeline drives sync cycles. All collaborators are injected; the pipeline
// holds no connection state of its own.
type Pipeline struct {
	config   *Config
	source   source.Source
	files    *filestore.Manager
	store    staging.Store
	crm      Reconciler
	notifier notify.Notifier
	decoder  *decode.Decoder
	logger   *slog.Logger
}

// NewPipeline assembles a pipeline from its collaborators.
func NewPipeline(
	config *Config,
	src source.Source,
	files *filestore.Manager,
	store staging.Store,
	reconciler Reconciler,
	notifier notify.Notifier,
	decoder *decode.Decoder,
	logger *slog.Logger,
) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	return &Pipeline{
		config:   config,
		source:   src,
		files:    files,
		store:    store,
		crm:      reconciler,
		notifier: notifier,
		decoder:  decoder,
		logger:   logger,
	}, nil
}

// Run executes one sync cycle over every file currently in the drop. It
// never returns an error: any fault is folded into the summary so the
// trigger mechanism does not redeliver on partial failure.
func (p *Pipeline) Run(ctx context.Context) CycleSummary {
	if err := p.store.EnsureSchema(ctx); err != nil {
		return p.cycleError(ctx, "failed to ensure staging schema", err)
	}

	if p.config.Mode == ModeCombined {
		if err := p.crm.Authenticate(ctx); err != nil {
			return p.cycleError(ctx, "CRM authentication failed", err)
		}
	}

	filenames, err := p.source.List(ctx)
	if err != nil {
		return p.cycleError(ctx, "failed to list source files", err)
	}

	reports := make([]FileReport, 0, len(filenames))

	for _, filename := range filenames {
		p.logger.Info("Processing batch file", slog.String("filename", filename))
		reports = append(reports, p.processFile(ctx, filename))
	}

	summary := summarize(reports)

	p.logger.Info("Sync cycle finished",
		slog.String("status", summary.Status),
		slog.Int("files", summary.FilesProcessed),
		slog.Int("staged", summary.StagedRecords),
		slog.Int("successes", summary.Successes),
		slog.Int("failures", len(summary.Failures)))

	return summary
}

// ReconcilePending executes one deferred reconciliation cycle over pending
// rows at least minAge old, across all source files.
func (p *Pipeline) ReconcilePending(ctx context.Context) CycleSummary {
	if err := p.store.EnsureSchema(ctx); err != nil {
		return p.cycleError(ctx, "failed to ensure staging schema", err)
	}

	if err := p.crm.Authenticate(ctx); err != nil {
		return p.cycleError(ctx, "CRM authentication failed", err)
	}

	entries, err := p.store.FetchPending(ctx, p.config.PendingMinAge)
	if err != nil {
		return p.cycleError(ctx, "failed to fetch pending records", err)
	}

	successes, failures := p.reconcileEntries(ctx, entries)

	summary := CycleSummary{
		Status:        StatusSuccess,
		StagedRecords: len(entries),
		Successes:     successes,
		Failures:      failures,
	}
	if len(failures) > 0 {
		summary.Status = StatusPartial
	}

	p.notifyCycleOutcome(ctx, summary)

	p.logger.Info("Reconciliation cycle finished",
		slog.String("status", summary.Status),
		slog.Int("pending", len(entries)),
		slog.Int("successes", successes),
		slog.Int("failures", len(failures)))

	return summary
}

// processFile runs the per-file state machine. From raw upload onward any
// fault escapes to the error location, bulk-failing staged rows so none are
// left silently pending for a file that will not come back through here.
func (p *Pipeline) processFile(ctx context.Context, filename string) (report FileReport) {
	report = FileReport{SourceFilename: filename, Status: StatusError}

	data, err := p.source.Fetch(ctx, filename)
	if err != nil {
		report.Error = err.Error()
		p.notifyFileOutcome(ctx, report)

		return report
	}

	raw, err := p.files.UploadRaw(ctx, filename, data)
	if err != nil {
		report.Error = err.Error()
		p.notifyFileOutcome(ctx, report)

		return report
	}

	// The raw copy is durable; delete the remote file now so a retried
	// invocation does not reprocess it. One more attempt at the very end if
	// this one fails. Never coupled to downstream reconciliation outcomes.
	deletePending := false
	if err := p.source.Delete(ctx, filename); err != nil {
		p.logger.Warn("Failed to delete source file; will retry after processing",
			slog.String("filename", filename),
			slog.String("error", err.Error()))

		deletePending = true
	}

	defer func() {
		if !deletePending {
			return
		}

		if err := p.source.Delete(ctx, filename); err != nil {
			p.logger.Error("Failed to delete source file after processing",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		}
	}()

	records, err := p.decoder.DecodeAll(bytes.NewReader(data))
	if err != nil {
		var headerErr *decode.HeaderError
		if errors.As(err, &headerErr) {
			p.notifyHeaderFailure(ctx, filename, headerErr)
		}

		return p.escape(ctx, report, raw, false, err)
	}

	p.logger.Info("Decoded eligible records",
		slog.String("filename", filename),
		slog.Int("records", len(records)))

	entries, err := p.store.Stage(ctx, records, filename)
	if err != nil {
		return p.escape(ctx, report, raw, false, err)
	}

	report.StagedRecords = len(entries)

	processed, err := p.files.MoveToProcessed(ctx, raw)
	if err != nil {
		return p.escape(ctx, report, raw, len(entries) > 0, err)
	}

	// The file's data is durable and staged: this file is a success, no
	// matter how many individual VINs fail reconciliation below.
	report.Status = StatusSuccess
	report.FileURI = processed.URI()

	if p.config.Mode == ModeCombined {
		pending, err := p.store.FetchPendingByFile(ctx, filename)
		if err != nil {
			// Rows stay pending and remain reconcilable by a deferred cycle.
			p.logger.Error("Failed to fetch staged records for reconciliation",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		} else {
			report.Successes, report.Failures = p.reconcileEntries(ctx, pending)
		}
	}

	p.notifyFileOutcome(ctx, report)

	return report
}

// escape is the single error transition: relocate the archive copy to the
// error location and bulk-fail any rows staged from this file.
func (p *Pipeline) escape(ctx context.Context, report FileReport, file filestore.StoredFile, staged bool, cause error) FileReport {
	report.Status = StatusError
	report.Error = cause.Error()

	p.logger.Error("File processing failed",
		slog.String("filename", report.SourceFilename),
		slog.String("error", cause.Error()))

	errored, moveErr := p.files.MoveToError(ctx, file)
	if moveErr != nil {
		p.logger.Error("Failed to relocate file to error location",
			slog.String("filename", report.SourceFilename),
			slog.String("error", moveErr.Error()))
	} else {
		report.FileURI = errored.URI()
	}

	if staged {
		message := fmt.Sprintf("failed to process %s: %v", report.SourceFilename, cause)

		failed, err := p.store.MarkFailedByFile(ctx, report.SourceFilename, message)
		if err != nil {
			p.logger.Error("Failed to bulk-fail staged records",
				slog.String("filename", report.SourceFilename),
				slog.String("error", err.Error()))
		} else {
			p.logger.Info("Bulk-failed staged records for errored file",
				slog.String("filename", report.SourceFilename),
				slog.Int64("rows", failed))
		}
	}

	p.notifyFileOutcome(ctx, report)

	return report
}

// reconcileEntries applies each staged entry to the CRM, isolating failures
// so one record never aborts its siblings.
func (p *Pipeline) reconcileEntries(ctx context.Context, entries []staging.StagedEntry) (int, []RecordFailure) {
	successes := 0

	var failures []RecordFailure

	for _, entry := range entries {
		if err := p.reconcileOne(ctx, entry); err != nil {
			failures = append(failures, RecordFailure{
				VIN:     entry.Record.VIN,
				StageID: entry.StageID,
				Message: err.Error(),
			})

			continue
		}

		successes++
	}

	return successes, failures
}

func (p *Pipeline) reconcileOne(ctx context.Context, entry staging.StagedEntry) error {
	lookup, err := p.crm.FindVehicle(ctx, entry.Record.VIN)
	if err != nil {
		p.recordFailure(ctx, entry, err.Error())

		return err
	}

	if !lookup.Found {
		p.recordFailure(ctx, entry, notFoundMessage)

		return errors.New(notFoundMessage)
	}

	if err := p.crm.UpdateVehicle(ctx, lookup.VehicleID, entry.Record); err != nil {
		p.recordFailure(ctx, entry, err.Error())

		return err
	}

	if err := p.store.MarkPushed(ctx, entry.StageID); err != nil {
		// The CRM write landed but the row stayed pending; a later cycle will
		// reapply the same values, which is safe.
		return fmt.Errorf("CRM updated but status update failed: %w", err)
	}

	p.logger.Info("Reconciled staged record",
		slog.String("vin", entry.Record.VIN),
		slog.String("stage_id", entry.StageID))

	return nil
}

func (p *Pipeline) recordFailure(ctx context.Context, entry staging.StagedEntry, message string) {
	p.logger.Warn("Record reconciliation failed",
		slog.String("vin", entry.Record.VIN),
		slog.String("stage_id", entry.StageID),
		slog.String("error", message))

	if err := p.store.RecordError(ctx, entry.StageID, message); err != nil {
		p.logger.Error("Failed to record reconciliation error",
			slog.String("stage_id", entry.StageID),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) cycleError(ctx context.Context, message string, cause error) CycleSummary {
	p.logger.Error(message, slog.String("error", cause.Error()))

	summary := CycleSummary{
		Status: StatusError,
		Error:  fmt.Sprintf("%s: %v", message, cause),
	}

	p.notifier.Failure(ctx, "VIN sync cycle failed", summary.Error)

	return summary
}

func (p *Pipeline) notifyHeaderFailure(ctx context.Context, filename string, headerErr *decode.HeaderError) {
	received := "None"
	if len(headerErr.Actual) > 0 {
		received = strings.Join(headerErr.Actual, ", ")
	}

	body := fmt.Sprintf(
		"Deregistered VIN ingestion failed due to an invalid CSV header.\n\n"+
			"File: %s\nExpected: %s\nReceived: %s\n",
		filename, strings.Join(decode.ExpectedHeaders, ", "), received)

	p.notifier.Failure(ctx, "VIN ingest failed - header validation for "+filename, body)
}

func (p *Pipeline) notifyFileOutcome(ctx context.Context, report FileReport) {
	if report.Status == StatusSuccess && len(report.Failures) == 0 {
		p.notifier.Success(ctx, "VIN sync completed for "+report.SourceFilename,
			fmt.Sprintf("File: %s\nLocation: %s\nStaged records: %d\nSuccessful updates: %d\n",
				report.SourceFilename, report.FileURI, report.StagedRecords, report.Successes))

		return
	}

	lines := []string{
		"Deregistered VIN sync completed with failures.",
		"File: " + report.SourceFilename,
	}

	if report.FileURI != "" {
		lines = append(lines, "Location: "+report.FileURI)
	}

	if report.Error != "" {
		lines = append(lines, "Error: "+report.Error)
	}

	lines = append(lines,
		fmt.Sprintf("Staged records: %d", report.StagedRecords),
		fmt.Sprintf("Successful updates: %d", report.Successes),
		fmt.Sprintf("Failed updates: %d", len(report.Failures)))

	if len(report.Failures) > 0 {
		lines = append(lines, "", "Failed VINs:")
		for _, failure := range report.Failures {
			lines = append(lines, fmt.Sprintf("- %s: %s", failure.VIN, failure.Message))
		}
	}

	p.notifier.Failure(ctx, "VIN sync failures for "+report.SourceFilename,
		strings.Join(lines, "\n"))
}

func (p *Pipeline) notifyCycleOutcome(ctx context.Context, summary CycleSummary) {
	if len(summary.Failures) == 0 {
		p.notifier.Success(ctx, "VIN reconciliation cycle completed",
			fmt.Sprintf("Pending records: %d\nSuccessful updates: %d\n",
				summary.StagedRecords, summary.Successes))

		return
	}

	lines := []string{
		"Deregistered VIN reconciliation completed with failures.",
		fmt.Sprintf("Pending records: %d", summary.StagedRecords),
		fmt.Sprintf("Successful updates: %d", summary.Successes),
		fmt.Sprintf("Failed updates: %d", len(summary.Failures)),
		"",
		"Failed VINs:",
	}

	for _, failure := range summary.Failures {
		lines = append(lines, fmt.Sprintf("- %s: %s", failure.VIN, failure.Message))
	}

	p.notifier.Failure(ctx, "VIN reconciliation failures", strings.Join(lines, "\n"))
}
