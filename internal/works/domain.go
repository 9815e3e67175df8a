// Package works manages agricultural and livestock work records. Periods can
// only close once every record scoped to them reaches a terminal status.
package works

import (
	"errors"
	"strings"
	"time"
)

// Kind distinguishes agricultural from livestock work records.
type Kind string

const (
	KindAgricultural Kind = "AGRICULTURAL"
	KindLivestock    Kind = "LIVESTOCK"
)

// Status enumerates the approval workflow stages.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusApproved   Status = "APPROVED"
	StatusClosed     Status = "CLOSED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether the status no longer blocks a period close.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusClosed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Record is a logged field or livestock operation tied to a period.
type Record struct {
	ID          int64
	PeriodID    int64
	PremiseID   int64
	Kind        Kind
	Status      Status
	Description string
	WorkDate    time.Time
	CreatedBy   int64
	ApprovedBy  *int64
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput captures a new work record.
type CreateInput struct {
	PeriodID    int64
	PremiseID   int64
	Kind        Kind
	Description string
	WorkDate    time.Time
	ActorID     int64
}

// Validate ensures the create input is coherent.
func (in CreateInput) Validate() error {
	if in.PeriodID == 0 {
		return errors.New("works: period id required")
	}
	if in.PremiseID == 0 {
		return errors.New("works: premise id required")
	}
	if in.Kind != KindAgricultural && in.Kind != KindLivestock {
		return ErrInvalidKind
	}
	if strings.TrimSpace(in.Description) == "" {
		return errors.New("works: description required")
	}
	if in.WorkDate.IsZero() {
		return errors.New("works: work date required")
	}
	return nil
}

// ErrInvalidKind indicates an unsupported work record kind.
var ErrInvalidKind = errors.New("works: invalid kind")

// ErrRecordNotFound indicates a work record could not be loaded.
var ErrRecordNotFound = errors.New("works: record not found")

// ErrInvalidTransition indicates a status change not allowed by the workflow.
var ErrInvalidTransition = errors.New("works: status transition not allowed")

// CanTransition checks the approval workflow policy.
func CanTransition(current, target Status) bool {
	if current == target {
		return false
	}
	switch current {
	case StatusDraft:
		return target == StatusInProgress || target == StatusApproved || target == StatusCancelled
	case StatusInProgress:
		return target == StatusApproved || target == StatusCancelled
	case StatusApproved:
		return target == StatusClosed || target == StatusCancelled
	default:
		return false
	}
}
