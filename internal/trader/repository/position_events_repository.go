package repository

import (
	"context"
	"strings"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"

	"gorm.io/gorm"
)

type PositionEventsRepository interface {
	Create(ctx context.Context, event *entity.PositionEvent) error
	Get(ctx context.Context, param dto.GetPositionEventsParam) ([]entity.PositionEvent, error)
}

type positionEventsRepository struct {
	db *gorm.DB
}

func NewPositionEventsRepository(db *gorm.DB) PositionEventsRepository {
	return &positionEventsRepository{
		db: db,
	}
}

func (r *positionEventsRepository) Create(ctx context.Context, event *entity.PositionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *positionEventsRepository) Get(ctx context.Context, param dto.GetPositionEventsParam) ([]entity.PositionEvent, error) {
	var events []entity.PositionEvent

	qFilter := []string{}
	qFilterParam := []interface{}{}

	if param.StockCode != "" {
		qFilter = append(qFilter, "stock_code = ?")
		qFilterParam = append(qFilterParam, param.StockCode)
	}

	if param.StockType != "" {
		qFilter = append(qFilter, "stock_type = ?")
		qFilterParam = append(qFilterParam, param.StockType)
	}

	if len(param.Events) > 0 {
		qFilter = append(qFilter, "event IN (?)")
		qFilterParam = append(qFilterParam, param.Events)
	}

	limit := param.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := r.db.WithContext(ctx)
	if len(qFilter) > 0 {
		q = q.Where(strings.Join(qFilter, " AND "), qFilterParam...)
	}
	if err := q.Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
