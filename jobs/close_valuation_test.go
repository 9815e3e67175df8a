package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPeriodSource struct {
	period periods.Period
	err    error
}

func (s *stubPeriodSource) Get(ctx context.Context, id int64) (periods.Period, error) {
	if s.err != nil {
		return periods.Period{}, s.err
	}
	return s.period, nil
}

type stubPremiseLister struct {
	premises []firms.Premise
}

func (s *stubPremiseLister) ListPremises(ctx context.Context, firmID int64) ([]firms.Premise, error) {
	return s.premises, nil
}

type recordedRun struct {
	scope valuation.Scope
	in    valuation.RunInput
}

type stubRunner struct {
	runs         []recordedRun
	livestockErr error
	inputsErr    error
}

func (s *stubRunner) ValuateLivestock(ctx context.Context, principal auth.Principal, in valuation.RunInput) (valuation.Record, error) {
	s.runs = append(s.runs, recordedRun{scope: valuation.ScopeLivestock, in: in})
	return valuation.Record{}, s.livestockErr
}

func (s *stubRunner) ValuateInputs(ctx context.Context, principal auth.Principal, in valuation.RunInput) (valuation.Record, error) {
	s.runs = append(s.runs, recordedRun{scope: valuation.ScopeInputs, in: in})
	return valuation.Record{}, s.inputsErr
}

func closedPeriod() periods.Period {
	return periods.Period{
		ID:        4,
		FirmID:    1,
		Status:    periods.StatusClosed,
		StartDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func closeTask(t *testing.T, payload CloseValuationPayload) *asynq.Task {
	t.Helper()
	task, err := NewCloseValuationTask(payload)
	require.NoError(t, err)
	return task
}

func TestCloseValuationRecordsFinalAndInitialPerPremise(t *testing.T) {
	source := &stubPeriodSource{period: closedPeriod()}
	lister := &stubPremiseLister{premises: []firms.Premise{{ID: 10, FirmID: 1}, {ID: 11, FirmID: 1}}}
	runner := &stubRunner{}
	handler := NewCloseValuationHandler(testLogger(), source, lister, runner)

	task := closeTask(t, CloseValuationPayload{PeriodID: 4, FirmID: 1, Method: valuation.MethodWeightedAvg, ActorID: 7})
	require.NoError(t, handler(context.Background(), task))

	// two premises, two dates, two scopes each
	require.Len(t, runner.runs, 8)

	end := closedPeriod().EndDate
	var finals, initials int
	for _, run := range runner.runs {
		require.Equal(t, valuation.MethodWeightedAvg, run.in.Method)
		switch run.in.Type {
		case valuation.TypeFinal:
			finals++
			require.Equal(t, int64(4), run.in.PeriodID)
			require.True(t, run.in.Date.Equal(end))
		case valuation.TypeInitial:
			initials++
			require.Zero(t, run.in.PeriodID)
			require.True(t, run.in.Date.Equal(end.AddDate(0, 0, 1)))
		}
	}
	require.Equal(t, 4, finals)
	require.Equal(t, 4, initials)
}

func TestCloseValuationSkipsReopenedPeriod(t *testing.T) {
	period := closedPeriod()
	period.Status = periods.StatusActive
	source := &stubPeriodSource{period: period}
	runner := &stubRunner{}
	handler := NewCloseValuationHandler(testLogger(), source, &stubPremiseLister{}, runner)

	task := closeTask(t, CloseValuationPayload{PeriodID: 4, FirmID: 1, Method: valuation.MethodWeightedAvg})
	require.NoError(t, handler(context.Background(), task))
	require.Empty(t, runner.runs)
}

func TestCloseValuationSkipsRetryOnMissingPeriod(t *testing.T) {
	source := &stubPeriodSource{err: periods.ErrPeriodNotFound}
	handler := NewCloseValuationHandler(testLogger(), source, &stubPremiseLister{}, &stubRunner{})

	task := closeTask(t, CloseValuationPayload{PeriodID: 99, FirmID: 1, Method: valuation.MethodWeightedAvg})
	require.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
}

func TestCloseValuationToleratesDuplicateRuns(t *testing.T) {
	source := &stubPeriodSource{period: closedPeriod()}
	lister := &stubPremiseLister{premises: []firms.Premise{{ID: 10, FirmID: 1}}}
	runner := &stubRunner{livestockErr: valuation.ErrDuplicateRun, inputsErr: valuation.ErrDuplicateRun}
	handler := NewCloseValuationHandler(testLogger(), source, lister, runner)

	task := closeTask(t, CloseValuationPayload{PeriodID: 4, FirmID: 1, Method: valuation.MethodWeightedAvg})
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, runner.runs, 4)
}

func TestCloseValuationPropagatesRunFailures(t *testing.T) {
	source := &stubPeriodSource{period: closedPeriod()}
	lister := &stubPremiseLister{premises: []firms.Premise{{ID: 10, FirmID: 1}}}
	runner := &stubRunner{livestockErr: errors.New("boom")}
	handler := NewCloseValuationHandler(testLogger(), source, lister, runner)

	task := closeTask(t, CloseValuationPayload{PeriodID: 4, FirmID: 1, Method: valuation.MethodWeightedAvg})
	require.Error(t, handler(context.Background(), task))
}

type stubCleaner struct {
	olderThan time.Duration
	err       error
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.olderThan = olderThan
	return s.err
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	handler := NewIdempotencyCleanupHandler(testLogger(), cleaner)

	task, err := NewIdempotencyCleanupTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, idempotencyRetention, cleaner.olderThan)
}
