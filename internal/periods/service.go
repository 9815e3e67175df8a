package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/shared"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
	"github.com/pampa-erp/pampa-erp/internal/works"
)

// WorksPort exposes the pending-work counts that gate a close.
type WorksPort interface {
	CountPending(ctx context.Context, periodID int64, kind works.Kind) (int, error)
}

// Enqueuer schedules the post-close valuation run. Implemented by the asynq
// client; nil disables scheduling (tests).
type Enqueuer interface {
	EnqueueCloseValuation(ctx context.Context, periodID, firmID int64, method valuation.Method, actorID int64) error
}

// ReportInvalidator drops cached read models after a lifecycle transition.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, periodID int64) error
}

// Service orchestrates the period lifecycle.
type Service struct {
	logger  *slog.Logger
	repo    Repository
	works   WorksPort
	jobs    Enqueuer
	reports ReportInvalidator
}

// NewService constructs a Service. jobs and reports may be nil.
func NewService(logger *slog.Logger, repo Repository, worksPort WorksPort, jobs Enqueuer, reports ReportInvalidator) *Service {
	return &Service{logger: logger, repo: repo, works: worksPort, jobs: jobs, reports: reports}
}

func (s *Service) invalidateReports(ctx context.Context, periodID int64) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Invalidate(ctx, periodID); err != nil {
		s.logger.Warn("invalidate period reports", slog.Int64("period_id", periodID), slog.Any("error", err))
	}
}

// Get loads a period by id.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// ListByFirm returns the firm's periods, newest first.
func (s *Service) ListByFirm(ctx context.Context, principal auth.Principal, firmID int64) ([]Period, error) {
	if principal.IsZero() {
		return nil, shared.ErrAuthRequired
	}
	if !principal.CanAccessFirm(firmID) {
		return nil, shared.ErrFirmAccessDenied
	}
	return s.repo.ListByFirm(ctx, firmID)
}

// ListAdjustments returns the corrections recorded against a period.
func (s *Service) ListAdjustments(ctx context.Context, periodID int64) ([]Adjustment, error) {
	if _, err := s.repo.Get(ctx, periodID); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustments(ctx, periodID)
}

// Open creates a new ACTIVE period for the firm. At most one period per firm
// may be active; a conflict carries the existing period's id.
func (s *Service) Open(ctx context.Context, principal auth.Principal, in OpenInput) (Period, error) {
	if principal.IsZero() {
		return Period{}, shared.ErrAuthRequired
	}
	if !principal.CanAccessFirm(in.FirmID) {
		return Period{}, shared.ErrFirmAccessDenied
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || in.EndDate.Before(in.StartDate) {
		return Period{}, ErrInvalidRange
	}
	if existing, ok, err := s.repo.FindActive(ctx, in.FirmID); err != nil {
		return Period{}, err
	} else if ok {
		return Period{}, &OpenConflictError{ExistingID: existing.ID}
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultName(in.StartDate, in.EndDate)
	}

	period, err := s.repo.CreateActive(ctx, in, name, audit.Entry{
		FirmID:      in.FirmID,
		Type:        audit.TypePeriodOpened,
		Description: fmt.Sprintf("period %q opened", name),
		Module:      "periods",
		ActorID:     principal.UserID,
		Meta: map[string]any{
			"name":       name,
			"start_date": in.StartDate.Format("2006-01-02"),
			"end_date":   in.EndDate.Format("2006-01-02"),
		},
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// Close transitions the period to CLOSED and locks it. Preconditions are
// checked in a fixed order, each with its own failure: authentication, firm
// access, current state, then pending agricultural and livestock work records.
// On success the final valuation run for the period is scheduled.
func (s *Service) Close(ctx context.Context, principal auth.Principal, periodID int64, in CloseInput) (Period, error) {
	if principal.IsZero() {
		return Period{}, shared.ErrAuthRequired
	}
	period, err := s.repo.Get(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if !principal.CanAccessFirm(period.FirmID) {
		return Period{}, shared.ErrFirmAccessDenied
	}
	if period.Status == StatusClosed {
		return Period{}, ErrAlreadyClosed
	}

	method := valuation.MethodWeightedAvg
	if in.ValuationMethod != "" {
		method, err = valuation.ParseMethod(in.ValuationMethod)
		if err != nil {
			return Period{}, err
		}
	}

	for _, kind := range []works.Kind{works.KindAgricultural, works.KindLivestock} {
		count, err := s.works.CountPending(ctx, periodID, kind)
		if err != nil {
			return Period{}, fmt.Errorf("periods: pending %s works check: %w", strings.ToLower(string(kind)), err)
		}
		if count > 0 {
			return Period{}, &PendingWorksError{Kind: kind, Count: count}
		}
	}

	closed, err := s.repo.MarkClosed(ctx, periodID, principal.UserID, in.Notes, audit.Entry{
		FirmID:      period.FirmID,
		Type:        audit.TypePeriodClosed,
		Description: fmt.Sprintf("period %q closed", period.Name),
		Module:      "periods",
		ActorID:     principal.UserID,
		Reference:   strconv.FormatInt(periodID, 10),
		Meta: map[string]any{
			"valuation_method": string(method),
			"notes":            in.Notes,
		},
	})
	if err != nil {
		return Period{}, err
	}

	if s.jobs != nil {
		if err := s.jobs.EnqueueCloseValuation(ctx, closed.ID, closed.FirmID, method, principal.UserID); err != nil {
			s.logger.Warn("enqueue close valuation",
				slog.Int64("period_id", closed.ID), slog.Any("error", err))
		}
	}
	s.invalidateReports(ctx, closed.ID)
	return closed, nil
}

// Reopen forces a CLOSED period back to ACTIVE. The operation is exceptional:
// it requires a justification and its audit entry carries a warning flag so
// reviewers cannot miss it.
func (s *Service) Reopen(ctx context.Context, principal auth.Principal, periodID int64, in ReopenInput) (Period, error) {
	if principal.IsZero() {
		return Period{}, shared.ErrAuthRequired
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Period{}, ErrMissingReopenReason
	}
	period, err := s.repo.Get(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if !principal.CanAccessFirm(period.FirmID) {
		return Period{}, shared.ErrFirmAccessDenied
	}
	if period.Status != StatusClosed {
		return Period{}, ErrNotClosed
	}

	reopened, err := s.repo.MarkReopened(ctx, periodID, principal.UserID, reason, audit.Entry{
		FirmID:      period.FirmID,
		Type:        audit.TypePeriodReopened,
		Description: fmt.Sprintf("period %q reopened: %s", period.Name, reason),
		Module:      "periods",
		ActorID:     principal.UserID,
		Reference:   strconv.FormatInt(periodID, 10),
		Meta: map[string]any{
			"warning": true,
			"reason":  reason,
		},
	})
	if err != nil {
		return Period{}, err
	}
	s.invalidateReports(ctx, reopened.ID)
	return reopened, nil
}

// RecordAdjustment stores a bounded correction against a CLOSED period. It
// never changes the period's status.
func (s *Service) RecordAdjustment(ctx context.Context, principal auth.Principal, in AdjustmentInput) (Adjustment, error) {
	if principal.IsZero() {
		return Adjustment{}, shared.ErrAuthRequired
	}
	period, err := s.repo.Get(ctx, in.PeriodID)
	if err != nil {
		return Adjustment{}, err
	}
	if !principal.CanAccessFirm(period.FirmID) {
		return Adjustment{}, shared.ErrFirmAccessDenied
	}
	if period.Status != StatusClosed {
		return Adjustment{}, ErrNotClosed
	}
	if strings.TrimSpace(in.Description) == "" {
		return Adjustment{}, ErrMissingDescription
	}

	adjustment, err := s.repo.InsertAdjustment(ctx, in, principal.UserID, audit.Entry{
		FirmID:      period.FirmID,
		Type:        audit.TypePeriodAdjusted,
		Description: fmt.Sprintf("adjustment on period %q: %s", period.Name, in.Description),
		Module:      "periods",
		ActorID:     principal.UserID,
		Reference:   strconv.FormatInt(in.PeriodID, 10),
		Meta: map[string]any{
			"adjustment_type": in.Type,
			"reference_table": in.ReferenceTable,
			"reference_id":    in.ReferenceID,
		},
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.invalidateReports(ctx, in.PeriodID)
	return adjustment, nil
}

// ValidateClose reports the human-readable reasons currently blocking a close.
// It is advisory and read-only; Close performs its own authoritative checks.
func (s *Service) ValidateClose(ctx context.Context, periodID int64) ([]string, error) {
	if _, err := s.repo.Get(ctx, periodID); err != nil {
		return nil, err
	}
	var reasons []string
	for _, kind := range []works.Kind{works.KindAgricultural, works.KindLivestock} {
		count, err := s.works.CountPending(ctx, periodID, kind)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			reasons = append(reasons,
				fmt.Sprintf("%d %s work(s) pending approval", count, strings.ToLower(string(kind))))
		}
	}
	return reasons, nil
}
