package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInTransit, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusInTransit, StatusCompleted, true},
		{StatusInTransit, StatusCancelled, true},
		{StatusInTransit, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusInTransit, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransition_InvalidStateError(t *testing.T) {
	tr := NewTransfer(id.New()).ToStorefront(id.New())
	tr.Status = StatusCompleted

	err := tr.transition(StatusCancelled)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidStateTransition, appErr.Code)
	assert.Equal(t, StatusCompleted, tr.Status, "status unchanged on rejected transition")
}

func TestTransfer_Validate(t *testing.T) {
	ctx := context.Background()
	src := id.New()

	t.Run("storefront destination", func(t *testing.T) {
		tr := NewTransfer(src).ToStorefront(id.New())
		tr.AddLine(id.New(), id.New(), types.NewQuantityFromInt(5))
		require.NoError(t, tr.Validate(ctx))
	})

	t.Run("same source and destination warehouse", func(t *testing.T) {
		tr := NewTransfer(src).ToWarehouse(src)
		tr.AddLine(id.New(), id.New(), types.NewQuantityFromInt(5))
		require.Error(t, tr.Validate(ctx))
	})

	t.Run("no lines", func(t *testing.T) {
		tr := NewTransfer(src).ToWarehouse(id.New())
		require.Error(t, tr.Validate(ctx))
	})

	t.Run("zero quantity line", func(t *testing.T) {
		tr := NewTransfer(src).ToStorefront(id.New())
		tr.AddLine(id.New(), id.New(), 0)
		require.Error(t, tr.Validate(ctx))
	})

	t.Run("missing destination", func(t *testing.T) {
		tr := NewTransfer(src)
		tr.AddLine(id.New(), id.New(), types.NewQuantityFromInt(1))
		require.Error(t, tr.Validate(ctx))
	})
}
