// Package staging provides the domain model for staged vehicle-deregistration
// records and the status lifecycle they move through during reconciliation.
//
// This package defines the Store interface which represents what the domain
// needs for record persistence, following the Dependency Inversion Principle.
// The concrete PostgreSQL implementation lives in the internal/storage package.
package staging

import (
	"strings"
	"time"
)

type (
	// VehicleRecord is one decoded row from a deregistration batch file.
	// It carries only the attributes that are applied to the CRM entity;
	// the VIN is the business key used to locate that entity.
	VehicleRecord struct {
		// Make is the vehicle manufacturer, upper-cased by the decoder.
		Make string

		// Model is the vehicle model as supplied by the source file.
		Model string

		// VIN is the vehicle identification number. Always non-empty for
		// records that reach staging; rows without a VIN are skipped at
		// decode time.
		VIN string

		// DeregDate is the deregistration date in ISO format (YYYY-MM-DD),
		// or empty when the source row carried no usable date.
		DeregDate string

		// RegPlate is the registration plate, upper-cased by the decoder.
		RegPlate string
	}

	// Status represents a staged record's reconciliation state.
	Status string

	// StagedEntry is the handle returned by Store.Stage for each input record:
	// the assigned stage ID plus the record and its provenance. Reconciliation
	// operates on StagedEntry values, never on raw VehicleRecords.
	StagedEntry struct {
		// StageID is the opaque unique identifier assigned at staging time.
		// Immutable for the lifetime of the row.
		StageID string

		// Record is the staged payload.
		Record VehicleRecord

		// SourceFilename links the entry back to the originating batch file.
		SourceFilename string
	}

	// StagedRecord is the full persisted form of a staged entry, including
	// lifecycle state. Returned by queries; mutations go through the Store
	// methods keyed by stage ID or source filename.
	StagedRecord struct {
		StageID        string
		Record         VehicleRecord
		Status         Status
		SourceFilename string
		ErrorMessage   string
		CreatedAt      time.Time
		ModifiedAt     time.Time
	}
)

// Status lifecycle values.
//
// A row is created as StatusPending and moves exactly once, to StatusPushed on
// confirmed application to the CRM or to StatusFailed with an error message.
// Re-staging the same VIN later creates a new pending row; history is
// append-only.
const (
	// StatusPending marks a row that has been staged but not yet reconciled.
	// Pending rows are the pipeline's resumable checkpoint.
	StatusPending Status = "pending"

	// StatusPushed marks a row whose attributes were confirmed applied to the
	// CRM entity. Terminal.
	StatusPushed Status = "pushed"

	// StatusFailed marks a row whose reconciliation failed unrecoverably in
	// this cycle. Terminal for this row; the VIN is retried only via a new
	// staged row in a later batch.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is one of the known lifecycle values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPushed, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusPushed || s == StatusFailed
}

// String returns the status as a string for logging and persistence.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a stored string into a Status, case-insensitively.
// Returns ("", false) for unknown values.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", false
	}

	return s, true
}
