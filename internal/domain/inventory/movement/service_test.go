package movement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

type fakeMovementRepo struct {
	lastFilter Filter
	records    []Record
	summaries  []KindSummary
}

func (r *fakeMovementRepo) List(_ context.Context, f Filter) ([]Record, error) {
	r.lastFilter = f
	return r.records, nil
}

func (r *fakeMovementRepo) Count(_ context.Context, f Filter) (int64, error) {
	return int64(len(r.records)), nil
}

func (r *fakeMovementRepo) Summarize(_ context.Context, f Filter) ([]KindSummary, error) {
	r.lastFilter = f
	return r.summaries, nil
}

func (r *fakeMovementRepo) SumSold(context.Context, []id.ID, id.ID, time.Time) (types.Quantity, error) {
	return 0, nil
}

func TestList_NormalizesPaging(t *testing.T) {
	repo := &fakeMovementRepo{}
	svc := NewService(repo)

	_, _, err := svc.List(context.Background(), Filter{Limit: 0, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, repo.lastFilter.Limit)
	assert.Equal(t, 0, repo.lastFilter.Offset)

	_, _, err = svc.List(context.Background(), Filter{Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, repo.lastFilter.Limit)
}

func TestList_RejectsInvertedRange(t *testing.T) {
	svc := NewService(&fakeMovementRepo{})

	from := time.Now()
	to := from.Add(-time.Hour)
	_, _, err := svc.List(context.Background(), Filter{From: &from, To: &to})
	require.Error(t, err)
}

func TestSummarize_NetAcrossKinds(t *testing.T) {
	repo := &fakeMovementRepo{
		summaries: []KindSummary{
			{Kind: KindAdjustment, Count: 3, UnitsIn: types.NewQuantityFromInt(5), UnitsOut: types.NewQuantityFromInt(2)},
			{Kind: KindTransfer, Count: 1, UnitsIn: types.NewQuantityFromInt(4), UnitsOut: types.NewQuantityFromInt(4)},
			{Kind: KindSale, Count: 6, UnitsOut: types.NewQuantityFromInt(6)},
		},
	}
	svc := NewService(repo)

	summary, err := svc.Summarize(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, summary.Kinds, 3)
	assert.Equal(t, types.NewQuantityFromInt(3).Neg(), summary.Net)
}
