package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

func TestNewStockBatch(t *testing.T) {
	productID := id.New()
	warehouseID := id.New()

	b := NewStockBatch(productID, warehouseID, types.NewQuantityFromInt(50))

	assert.False(t, id.IsNil(b.ID))
	assert.Equal(t, productID, b.ProductID)
	assert.Equal(t, b.RecordedQuantity, b.RemainingQuantity)
	assert.Equal(t, 1, b.Version)
}

func TestStockBatch_Validate(t *testing.T) {
	ctx := context.Background()

	valid := func() *StockBatch {
		b := NewStockBatch(id.New(), id.New(), types.NewQuantityFromInt(10))
		b.UnitCost = types.MustMoney("4.50")
		b.RetailPrice = types.MustMoney("9.99")
		return b
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, valid().Validate(ctx))
	})

	t.Run("missing product", func(t *testing.T) {
		b := valid()
		b.ProductID = id.Nil()
		err := b.Validate(ctx)
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})

	t.Run("zero recorded quantity", func(t *testing.T) {
		b := valid()
		b.RecordedQuantity = 0
		b.RemainingQuantity = 0
		require.Error(t, b.Validate(ctx))
	})

	t.Run("remaining above recorded", func(t *testing.T) {
		b := valid()
		b.RemainingQuantity = b.RecordedQuantity + 1
		require.Error(t, b.Validate(ctx))
	})

	t.Run("negative price", func(t *testing.T) {
		b := valid()
		b.RetailPrice = types.MustMoney("-1")
		require.Error(t, b.Validate(ctx))
	})
}

func TestStockBatch_EffectiveWholesalePrice(t *testing.T) {
	b := NewStockBatch(id.New(), id.New(), types.NewQuantityFromInt(1))
	b.RetailPrice = types.MustMoney("12.00")

	assert.True(t, b.EffectiveWholesalePrice().Equal(types.MustMoney("12.00")),
		"wholesale falls back to retail when unset")

	wholesale := types.MustMoney("8.00")
	b.WholesalePrice = &wholesale
	assert.True(t, b.EffectiveWholesalePrice().Equal(wholesale))
}
