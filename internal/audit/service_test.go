package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows        []Entry
	lastLimit   int
	lastOffset  int
	lastFilters TimelineFilters
	allCalls    int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	s.lastFilters = filters
	s.lastLimit = limit
	s.lastOffset = offset
	if limit > len(s.rows) {
		limit = len(s.rows)
	}
	return s.rows[:limit], nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	s.allCalls++
	s.lastFilters = filters
	return s.rows, nil
}

func entryAt(ts string, typ string) Entry {
	at, _ := time.Parse(time.RFC3339, ts)
	return Entry{Type: typ, Module: "periods", Reference: "1", At: at}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []Entry{
		entryAt("2026-03-10T10:00:00Z", TypePeriodClosed),
		entryAt("2026-03-09T09:00:00Z", TypePeriodOpened),
		entryAt("2026-03-08T08:00:00Z", TypePeriodOpened),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Equal(t, 3, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)
}

func TestTimelineSecondPageOffsets(t *testing.T) {
	repo := &stubTimelineRepo{rows: []Entry{entryAt("2026-03-08T08:00:00Z", TypePeriodOpened)}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 10, repo.lastOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 51, repo.lastLimit)
}

func TestExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []Entry{
		entryAt("2026-03-10T10:00:00Z", TypePeriodReopened),
		entryAt("2026-03-09T09:00:00Z", TypePeriodClosed),
	}}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), TimelineFilters{FirmID: 7})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(7), repo.lastFilters.FirmID)
	require.Equal(t, 1, repo.allCalls)
}
