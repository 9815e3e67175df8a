package works

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pampa-erp/pampa-erp/internal/audit"
)

type stubWorksRepo struct {
	records map[int64]Record
	nextID  int64
}

func newStubWorksRepo() *stubWorksRepo {
	return &stubWorksRepo{records: map[int64]Record{}, nextID: 1}
}

func (s *stubWorksRepo) Insert(_ context.Context, in CreateInput) (Record, error) {
	record := Record{
		ID:          s.nextID,
		PeriodID:    in.PeriodID,
		PremiseID:   in.PremiseID,
		Kind:        in.Kind,
		Status:      StatusDraft,
		Description: in.Description,
		WorkDate:    in.WorkDate,
		CreatedBy:   in.ActorID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.records[record.ID] = record
	s.nextID++
	return record, nil
}

func (s *stubWorksRepo) Load(_ context.Context, id int64) (Record, error) {
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (s *stubWorksRepo) UpdateStatus(_ context.Context, id int64, status Status, actorID int64) (Record, error) {
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	record.Status = status
	if status == StatusApproved {
		now := time.Now()
		record.ApprovedBy = &actorID
		record.ApprovedAt = &now
	}
	record.UpdatedAt = time.Now()
	s.records[id] = record
	return record, nil
}

func (s *stubWorksRepo) ListByPeriod(_ context.Context, periodID int64) ([]Record, error) {
	var out []Record
	for _, record := range s.records {
		if record.PeriodID == periodID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubWorksRepo) CountPending(_ context.Context, periodID int64, kind Kind) (int, error) {
	count := 0
	for _, record := range s.records {
		if record.PeriodID == periodID && record.Kind == kind && !record.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

type stubAudit struct {
	entries []audit.Entry
}

func (s *stubAudit) Record(_ context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newWorkInput(kind Kind) CreateInput {
	return CreateInput{
		PeriodID:    1,
		PremiseID:   10,
		Kind:        kind,
		Description: "siembra de maíz",
		WorkDate:    time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		ActorID:     7,
	}
}

func TestCreateStartsInDraft(t *testing.T) {
	svc := NewService(newStubWorksRepo(), &stubAudit{})

	record, err := svc.Create(context.Background(), newWorkInput(KindAgricultural))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, record.Status)
	require.False(t, record.Status.IsTerminal())
}

func TestCreateRejectsInvalidKind(t *testing.T) {
	svc := NewService(newStubWorksRepo(), &stubAudit{})

	in := newWorkInput("HARVEST")
	_, err := svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestApprovalFlowReachesTerminal(t *testing.T) {
	repo := newStubWorksRepo()
	auditLog := &stubAudit{}
	svc := NewService(repo, auditLog)
	ctx := context.Background()

	record, err := svc.Create(ctx, newWorkInput(KindLivestock))
	require.NoError(t, err)

	record, err = svc.Start(ctx, record.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, record.Status)

	record, err = svc.Approve(ctx, record.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, record.Status)
	require.NotNil(t, record.ApprovedBy)
	require.Equal(t, int64(9), *record.ApprovedBy)
	require.True(t, record.Status.IsTerminal())

	require.Len(t, auditLog.entries, 1)
	require.Equal(t, audit.TypeWorkApproved, auditLog.entries[0].Type)
}

func TestTerminalStatusesRejectTransitions(t *testing.T) {
	repo := newStubWorksRepo()
	svc := NewService(repo, &stubAudit{})
	ctx := context.Background()

	record, err := svc.Create(ctx, newWorkInput(KindAgricultural))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, record.ID, 7)
	require.NoError(t, err)

	_, err = svc.Start(ctx, record.ID, 7)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Approve(ctx, record.ID, 7)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCloseRequiresApproval(t *testing.T) {
	repo := newStubWorksRepo()
	svc := NewService(repo, &stubAudit{})
	ctx := context.Background()

	record, err := svc.Create(ctx, newWorkInput(KindAgricultural))
	require.NoError(t, err)

	_, err = svc.CloseRecord(ctx, record.ID, 7)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Approve(ctx, record.ID, 7)
	require.NoError(t, err)

	record, err = svc.CloseRecord(ctx, record.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, record.Status)
}

func TestCountPendingIgnoresTerminalRecords(t *testing.T) {
	repo := newStubWorksRepo()
	svc := NewService(repo, &stubAudit{})
	ctx := context.Background()

	first, err := svc.Create(ctx, newWorkInput(KindAgricultural))
	require.NoError(t, err)
	_, err = svc.Create(ctx, newWorkInput(KindAgricultural))
	require.NoError(t, err)
	_, err = svc.Create(ctx, newWorkInput(KindLivestock))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, first.ID, 7)
	require.NoError(t, err)

	agri, err := svc.CountPending(ctx, 1, KindAgricultural)
	require.NoError(t, err)
	require.Equal(t, 1, agri)

	livestock, err := svc.CountPending(ctx, 1, KindLivestock)
	require.NoError(t, err)
	require.Equal(t, 1, livestock)
}

func TestHumanizeStatus(t *testing.T) {
	require.Equal(t, "In Progress", humanizeStatus("IN_PROGRESS"))
	require.Equal(t, "Approved", humanizeStatus("APPROVED"))
	require.Equal(t, "", humanizeStatus("  "))
}
