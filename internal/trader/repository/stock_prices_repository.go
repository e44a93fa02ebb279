package repository

import (
	"context"

	"golang-stock-trader/internal/entity"

	"gorm.io/gorm"
)

// StockPricesRepository reads daily closes written by the ingestion job.
type StockPricesRepository interface {
	// RecentCloses returns up to limit closes, most recent first.
	RecentCloses(ctx context.Context, stockCode string, limit int) ([]float64, error)
}

type stockPricesRepository struct {
	db *gorm.DB
}

func NewStockPricesRepository(db *gorm.DB) StockPricesRepository {
	return &stockPricesRepository{
		db: db,
	}
}

func (r *stockPricesRepository) RecentCloses(ctx context.Context, stockCode string, limit int) ([]float64, error) {
	var closes []float64
	if err := r.db.WithContext(ctx).
		Model(&entity.StockPrice{}).
		Where("symbol = ? AND close IS NOT NULL", stockCode).
		Order("date DESC").
		Limit(limit).
		Pluck("close", &closes).Error; err != nil {
		return nil, err
	}
	return closes, nil
}
