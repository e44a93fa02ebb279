package service

import (
	"context"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/internal/trader/repository"
)

// PositionQueryService backs the read-only API.
type PositionQueryService interface {
	ListPositions(ctx context.Context, stockType string) ([]dto.PositionResponse, error)
	GetPosition(ctx context.Context, stockCode, stockType string) (*dto.PositionResponse, error)
	ListEvents(ctx context.Context, param dto.GetPositionEventsParam) ([]entity.PositionEvent, error)
}

type positionQueryService struct {
	stockOperationsRepository repository.StockOperationsRepository
	positionEventsRepository  repository.PositionEventsRepository
}

func NewPositionQueryService(stockOperationsRepository repository.StockOperationsRepository, positionEventsRepository repository.PositionEventsRepository) PositionQueryService {
	return &positionQueryService{
		stockOperationsRepository: stockOperationsRepository,
		positionEventsRepository:  positionEventsRepository,
	}
}

func (s *positionQueryService) ListPositions(ctx context.Context, stockType string) ([]dto.PositionResponse, error) {
	var filter *entity.StrategyType
	if stockType != "" {
		t := entity.ParseStrategyType(stockType)
		filter = &t
	}
	operations, err := s.stockOperationsRepository.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]dto.PositionResponse, 0, len(operations))
	for _, op := range operations {
		out = append(out, dto.NewPositionResponse(op))
	}
	return out, nil
}

func (s *positionQueryService) GetPosition(ctx context.Context, stockCode, stockType string) (*dto.PositionResponse, error) {
	op, err := s.stockOperationsRepository.Get(ctx, stockCode, entity.ParseStrategyType(stockType))
	if err != nil {
		return nil, err
	}
	resp := dto.NewPositionResponse(*op)
	return &resp, nil
}

func (s *positionQueryService) ListEvents(ctx context.Context, param dto.GetPositionEventsParam) ([]entity.PositionEvent, error) {
	return s.positionEventsRepository.Get(ctx, param)
}
