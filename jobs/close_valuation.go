package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
)

// PeriodSource loads the closed period being valuated.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// PremiseLister enumerates the firm's premises.
type PremiseLister interface {
	ListPremises(ctx context.Context, firmID int64) ([]firms.Premise, error)
}

// ValuationRunner runs the livestock and input valuations.
type ValuationRunner interface {
	ValuateLivestock(ctx context.Context, principal auth.Principal, in valuation.RunInput) (valuation.Record, error)
	ValuateInputs(ctx context.Context, principal auth.Principal, in valuation.RunInput) (valuation.Record, error)
}

// NewCloseValuationHandler builds the post-close handler. For every premise of
// the firm it records the FINAL valuation as of the period end date, then the
// INITIAL valuation for the following day so the next period starts from the
// same snapshot. Premises already valuated are skipped, which makes the task
// safe to retry.
func NewCloseValuationHandler(logger *slog.Logger, periodSource PeriodSource, premises PremiseLister, runner ValuationRunner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CloseValuationPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		period, err := periodSource.Get(ctx, payload.PeriodID)
		if err != nil {
			if errors.Is(err, periods.ErrPeriodNotFound) {
				return asynq.SkipRetry
			}
			return err
		}
		if period.Status != periods.StatusClosed {
			// reopened before the job ran; nothing to valuate
			logger.Warn("close valuation skipped, period no longer closed",
				slog.Int64("period_id", period.ID))
			return nil
		}

		list, err := premises.ListPremises(ctx, payload.FirmID)
		if err != nil {
			return err
		}

		principal := auth.Principal{UserID: payload.ActorID, FirmIDs: []int64{payload.FirmID}}
		runs := []valuation.RunInput{
			{PeriodID: period.ID, Date: period.EndDate, Type: valuation.TypeFinal},
			{Date: period.EndDate.AddDate(0, 0, 1), Type: valuation.TypeInitial},
		}
		for _, premise := range list {
			for _, run := range runs {
				run.PremiseID = premise.ID
				run.Method = payload.Method
				run.Notes = "generated on period close"
				if _, err := runner.ValuateLivestock(ctx, principal, run); err != nil && !errors.Is(err, valuation.ErrDuplicateRun) {
					return err
				}
				if _, err := runner.ValuateInputs(ctx, principal, run); err != nil && !errors.Is(err, valuation.ErrDuplicateRun) {
					return err
				}
			}
			logger.Info("close valuation recorded",
				slog.Int64("period_id", period.ID), slog.Int64("premise_id", premise.ID))
		}
		return nil
	}
}
