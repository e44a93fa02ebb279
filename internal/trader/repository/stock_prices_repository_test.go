package repository

import (
	"context"
	"testing"
	"time"

	"golang-stock-trader/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockPricesRepository_RecentCloses(t *testing.T) {
	db := newTestDB(t)
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	for i, c := range []float64{100, 101, 102, 103, 104} {
		require.NoError(t, db.Create(&entity.StockPrice{
			Symbol: "AAPL",
			Date:   day.AddDate(0, 0, i),
			Close:  c,
		}).Error)
	}
	require.NoError(t, db.Create(&entity.StockPrice{Symbol: "MSFT", Date: day, Close: 300}).Error)

	repo := NewStockPricesRepository(db)

	closes, err := repo.RecentCloses(context.Background(), "AAPL", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{104, 103, 102, 101}, closes)

	closes, err = repo.RecentCloses(context.Background(), "NONE", 4)
	require.NoError(t, err)
	assert.Empty(t, closes)
}
