package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"

	"gorm.io/gorm"
)

// StockOperationsRepository is the Position Store. Every write is a single-row
// UPDATE guarded by the (stock_code, stock_type) key.
type StockOperationsRepository interface {
	GetEligible(ctx context.Context, param dto.GetEligibleParam) ([]entity.StockOperation, error)
	Get(ctx context.Context, stockCode string, stockType entity.StrategyType) (*entity.StockOperation, error)
	List(ctx context.Context, stockType *entity.StrategyType) ([]entity.StockOperation, error)
	Update(ctx context.Context, stockCode string, stockType entity.StrategyType, mutation dto.PositionMutation) error
	UpdateBySymbol(ctx context.Context, stockCode string, mutation dto.PositionMutation) (int64, error)
	UnlockSell(ctx context.Context, boughtBefore time.Time) ([]entity.StockOperation, error)
	Ping(ctx context.Context) error
}

type stockOperationsRepository struct {
	db *gorm.DB
}

func NewStockOperationsRepository(db *gorm.DB) StockOperationsRepository {
	return &stockOperationsRepository{
		db: db,
	}
}

func (r *stockOperationsRepository) GetEligible(ctx context.Context, param dto.GetEligibleParam) ([]entity.StockOperation, error) {
	var operations []entity.StockOperation

	qFilter := []string{}
	qFilterParam := []interface{}{}

	if len(param.StrategyTypes) > 0 {
		qFilter = append(qFilter, "stock_type IN (?)")
		qFilterParam = append(qFilterParam, param.StrategyTypes)
	}

	if param.BuyAllowed {
		qFilter = append(qFilter, "((is_bought = 1 AND can_sell = 1) OR (can_buy = 1 AND (is_bought IS NULL OR is_bought <> 1)))")
	} else {
		qFilter = append(qFilter, "is_bought = 1 AND can_sell = 1")
	}

	if err := r.db.WithContext(ctx).
		Where(strings.Join(qFilter, " AND "), qFilterParam...).
		Order("stock_code ASC, stock_type ASC").
		Find(&operations).Error; err != nil {
		return nil, err
	}

	return operations, nil
}

func (r *stockOperationsRepository) Get(ctx context.Context, stockCode string, stockType entity.StrategyType) (*entity.StockOperation, error) {
	var operation entity.StockOperation
	err := r.db.WithContext(ctx).
		Where("stock_code = ? AND stock_type = ?", stockCode, stockType).
		Take(&operation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", stockCode, stockType, dto.ErrPositionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &operation, nil
}

func (r *stockOperationsRepository) List(ctx context.Context, stockType *entity.StrategyType) ([]entity.StockOperation, error) {
	var operations []entity.StockOperation
	q := r.db.WithContext(ctx)
	if stockType != nil {
		q = q.Where("stock_type = ?", *stockType)
	}
	if err := q.Order("stock_code ASC, stock_type ASC").Find(&operations).Error; err != nil {
		return nil, err
	}
	return operations, nil
}

func (r *stockOperationsRepository) Update(ctx context.Context, stockCode string, stockType entity.StrategyType, mutation dto.PositionMutation) error {
	if mutation.IsEmpty() {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&entity.StockOperation{}).
		Where("stock_code = ? AND stock_type = ?", stockCode, stockType).
		Updates(mutation.Columns())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", stockCode, stockType, dto.ErrPositionNotFound)
	}
	return nil
}

// UpdateBySymbol applies the mutation to the symbol's rows across all strategy types.
func (r *stockOperationsRepository) UpdateBySymbol(ctx context.Context, stockCode string, mutation dto.PositionMutation) (int64, error) {
	if mutation.IsEmpty() {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entity.StockOperation{}).
		Where("stock_code = ?", stockCode).
		Updates(mutation.Columns())
	return result.RowsAffected, result.Error
}

// UnlockSell flips can_sell on open positions that have not been touched since boughtBefore
// and returns the rows it changed.
func (r *stockOperationsRepository) UnlockSell(ctx context.Context, boughtBefore time.Time) ([]entity.StockOperation, error) {
	var unlocked []entity.StockOperation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("is_bought = 1 AND qty > 0 AND (can_sell IS NULL OR can_sell <> 1) AND updated_at < ?", boughtBefore).
			Find(&unlocked).Error; err != nil {
			return err
		}
		for _, op := range unlocked {
			if err := tx.Model(&entity.StockOperation{}).
				Where("stock_code = ? AND stock_type = ?", op.StockCode, op.StockType).
				Update("can_sell", 1).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unlocked, nil
}

func (r *stockOperationsRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
