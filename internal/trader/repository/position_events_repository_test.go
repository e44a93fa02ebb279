package repository

import (
	"context"
	"testing"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestPositionEventsRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionEventsRepository(db)
	ctx := context.Background()

	events := []entity.PositionEvent{
		{StockCode: "AAPL", StockType: entity.StrategyTypeB, Event: entity.PositionEventEntry, Price: 110, Qty: 8},
		{StockCode: "AAPL", StockType: entity.StrategyTypeB, Event: entity.PositionEventStageAdvance, Stage: 1},
		{StockCode: "MSFT", StockType: entity.StrategyTypeA, Event: entity.PositionEventEntry, Payload: datatypes.JSON(`{"feed":"iex"}`)},
		{StockCode: "AAPL", StockType: entity.StrategyTypeB, Event: entity.PositionEventExit, Reason: "STOP"},
	}
	for i := range events {
		require.NoError(t, repo.Create(ctx, &events[i]))
		assert.NotZero(t, events[i].ID)
	}

	t.Run("newest first per symbol", func(t *testing.T) {
		got, err := repo.Get(ctx, dto.GetPositionEventsParam{StockCode: "AAPL", StockType: "B"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, entity.PositionEventExit, got[0].Event)
		assert.Equal(t, entity.PositionEventEntry, got[2].Event)
	})

	t.Run("event filter", func(t *testing.T) {
		got, err := repo.Get(ctx, dto.GetPositionEventsParam{
			Events: []entity.PositionEventType{entity.PositionEventEntry},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "MSFT", got[0].StockCode)
		assert.JSONEq(t, `{"feed":"iex"}`, string(got[0].Payload))
	})

	t.Run("limit", func(t *testing.T) {
		got, err := repo.Get(ctx, dto.GetPositionEventsParam{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
