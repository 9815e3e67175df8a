// Package periods owns the management-period ("gestión") lifecycle: open,
// close, exceptional reopen and post-close adjustments. A firm has at most one
// ACTIVE period at a time and a CLOSED period is locked against ordinary
// writes.
package periods

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pampa-erp/pampa-erp/internal/works"
)

// Status enumerates the period lifecycle states.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// Period is a bounded accounting cycle for a firm, analogous to a fiscal year.
type Period struct {
	ID          int64
	FirmID      int64
	Name        string
	StartDate   time.Time
	EndDate     time.Time
	Status      Status
	Locked      bool
	Notes       string
	ClosedBy    *int64
	ClosedAt    *time.Time
	ClosedNotes string
	ReopenedBy  *int64
	ReopenedAt  *time.Time
	ReopenReason string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Adjustment is a bounded correction recorded against a closed period. It
// never reopens the period; it is a parallel trail with before/after values.
type Adjustment struct {
	ID             int64
	PeriodID       int64
	Type           string
	Description    string
	OldValue       string
	NewValue       string
	ReferenceTable string
	ReferenceID    int64
	CreatedBy      int64
	CreatedAt      time.Time
}

// OpenInput captures a request to open a new period.
type OpenInput struct {
	FirmID    int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Notes     string
}

// CloseInput captures a request to close a period.
type CloseInput struct {
	ValuationMethod string
	Notes           string
}

// ReopenInput captures the exceptional reopen request.
type ReopenInput struct {
	Reason string
}

// AdjustmentInput captures a post-close correction.
type AdjustmentInput struct {
	PeriodID       int64
	Type           string
	Description    string
	OldValue       string
	NewValue       string
	ReferenceTable string
	ReferenceID    int64
}

// DefaultName builds the conventional period name from the bounding years,
// e.g. "Gestión 2025/2026".
func DefaultName(start, end time.Time) string {
	return fmt.Sprintf("Gestión %d/%d", start.Year(), end.Year())
}

var (
	// ErrPeriodNotFound indicates the period does not exist.
	ErrPeriodNotFound = errors.New("periods: period not found")
	// ErrAlreadyClosed indicates a close attempt on a CLOSED period.
	ErrAlreadyClosed = errors.New("periods: period already closed")
	// ErrNotClosed indicates an operation that requires a CLOSED period.
	ErrNotClosed = errors.New("periods: period not closed")
	// ErrMissingReopenReason indicates a reopen without justification.
	ErrMissingReopenReason = errors.New("periods: reopen reason required")
	// ErrMissingDescription indicates an adjustment without justification.
	ErrMissingDescription = errors.New("periods: adjustment description required")
	// ErrInvalidRange indicates an open request whose dates are incoherent.
	ErrInvalidRange = errors.New("periods: end date must follow start date")
)

// OpenConflictError reports that the firm already has an active period.
type OpenConflictError struct {
	ExistingID int64
}

func (e *OpenConflictError) Error() string {
	return fmt.Sprintf("periods: firm already has active period %d", e.ExistingID)
}

// PendingWorksError reports work records still blocking a close.
type PendingWorksError struct {
	Kind  works.Kind
	Count int
}

func (e *PendingWorksError) Error() string {
	return fmt.Sprintf("periods: %d %s work record(s) pending approval", e.Count, strings.ToLower(string(e.Kind)))
}
