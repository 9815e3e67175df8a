package works

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pampa-erp/pampa-erp/internal/audit"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service coordinates the work record approval workflow.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService constructs a Service.
func NewService(repo Repository, auditLog AuditPort) *Service {
	return &Service{repo: repo, audit: auditLog}
}

// Create registers a new work record in DRAFT status.
func (s *Service) Create(ctx context.Context, in CreateInput) (Record, error) {
	if err := in.Validate(); err != nil {
		return Record{}, err
	}
	return s.repo.Insert(ctx, in)
}

// Get loads a work record by id.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	return s.repo.Load(ctx, id)
}

// ListByPeriod returns work records scoped to a period.
func (s *Service) ListByPeriod(ctx context.Context, periodID int64) ([]Record, error) {
	return s.repo.ListByPeriod(ctx, periodID)
}

// Start moves a record from DRAFT to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, id, actorID int64) (Record, error) {
	return s.transition(ctx, id, StatusInProgress, actorID, "")
}

// Approve marks a record APPROVED.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (Record, error) {
	return s.transition(ctx, id, StatusApproved, actorID, audit.TypeWorkApproved)
}

// Cancel marks a record CANCELLED.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Record, error) {
	return s.transition(ctx, id, StatusCancelled, actorID, audit.TypeWorkCancelled)
}

// CloseRecord marks an approved record CLOSED.
func (s *Service) CloseRecord(ctx context.Context, id, actorID int64) (Record, error) {
	return s.transition(ctx, id, StatusClosed, actorID, "")
}

// CountPending counts records of a kind still blocking the period close.
func (s *Service) CountPending(ctx context.Context, periodID int64, kind Kind) (int, error) {
	return s.repo.CountPending(ctx, periodID, kind)
}

func (s *Service) transition(ctx context.Context, id int64, target Status, actorID int64, auditType string) (Record, error) {
	current, err := s.repo.Load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !CanTransition(current.Status, target) {
		return Record{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}
	updated, err := s.repo.UpdateStatus(ctx, id, target, actorID)
	if err != nil {
		return Record{}, err
	}
	if s.audit != nil && auditType != "" {
		_ = s.audit.Record(ctx, audit.Entry{
			Type:        auditType,
			Description: fmt.Sprintf("work record %d: %s", id, target),
			Module:      "works",
			ActorID:     actorID,
			Reference:   strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"period_id": updated.PeriodID,
				"kind":      updated.Kind,
				"from":      current.Status,
				"to":        target,
			},
		})
	}
	return updated, nil
}
