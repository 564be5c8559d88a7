package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows []TimelineRow
	err  error
	last Window
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, w Window) ([]TimelineRow, error) {
	s.last = w
	return s.rows, s.err
}

func rowsN(n int) []TimelineRow {
	out := make([]TimelineRow, n)
	for i := range out {
		out[i] = TimelineRow{ID: int64(n - i), Action: "sales:committed", Entity: "sale"}
	}
	return out
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: rowsN(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2, Entity: " sale "})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 3, repo.last.Limit)
	require.Equal(t, 0, repo.last.Offset)
	require.Equal(t, "sale", repo.last.Entity)
}

func TestTimelineDefaultsAndClamp(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 1000})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.Equal(t, 2*maxPageSize, repo.last.Offset)

	_, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Equal(t, defaultPageSize+1, repo.last.Limit)
}

func TestTimelineRejectsInvertedWindow(t *testing.T) {
	repo := &stubTimelineRepo{}
	_, err := NewService(repo).Timeline(context.Background(), TimelineFilters{
		From: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrInvalidFilter)
	require.Zero(t, repo.last.Limit)
}

func TestTimelinePropagatesRepositoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewService(&stubTimelineRepo{err: boom}).Timeline(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, boom)
}

func TestBuildWindowQuery(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildWindowQuery(Window{From: from, Entity: "sale", Action: "sales:committed", Limit: 21, Offset: 20})

	require.Contains(t, query, "WHERE occurred_at >= $1 AND entity = $2 AND action = $3")
	require.True(t, strings.HasSuffix(query, "ORDER BY occurred_at DESC, id DESC LIMIT $4 OFFSET $5"))
	require.Equal(t, []any{from, "sale", "sales:committed", 21, 20}, args)

	query, args = buildWindowQuery(Window{Limit: 5})
	require.NotContains(t, query, "WHERE")
	require.Equal(t, []any{5, 0}, args)
}
