package service

import (
	"context"
	"encoding/json"
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/repository"
	"golang-stock-trader/pkg/logger"
	"golang-stock-trader/pkg/telegram"
	"golang-stock-trader/pkg/utils"

	"gorm.io/datatypes"
)

const notifyTimeout = 10 * time.Second

// EventRecorder appends audit events and forwards trade events to the notifier.
// Failures are logged and never affect the caller's flow.
type EventRecorder interface {
	Record(ctx context.Context, event entity.PositionEvent, payload map[string]interface{})
}

type eventRecorder struct {
	positionEventsRepository repository.PositionEventsRepository
	notifier                 telegram.Notifier
	tradeEnv                 string
	log                      *logger.Logger
}

func NewEventRecorder(positionEventsRepository repository.PositionEventsRepository, notifier telegram.Notifier, tradeEnv string, log *logger.Logger) EventRecorder {
	if notifier == nil {
		notifier = telegram.NewNoop()
	}
	return &eventRecorder{
		positionEventsRepository: positionEventsRepository,
		notifier:                 notifier,
		tradeEnv:                 tradeEnv,
		log:                      log,
	}
}

func (r *eventRecorder) Record(ctx context.Context, event entity.PositionEvent, payload map[string]interface{}) {
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err == nil {
			event.Payload = datatypes.JSON(raw)
		}
	}

	if err := r.positionEventsRepository.Create(ctx, &event); err != nil {
		r.log.WarnContext(ctx, "Failed to record position event",
			logger.StringField("symbol", event.StockCode),
			logger.StringField("event", string(event.Event)),
			logger.ErrorField(err),
		)
	}

	if !notifiable(event.Event) {
		return
	}
	message := telegram.FormatPositionEventForTelegram(event, r.tradeEnv)
	notifyCtx := context.WithoutCancel(ctx)
	utils.GoSafe(r.log, func() {
		sendCtx, cancel := context.WithTimeout(notifyCtx, notifyTimeout)
		defer cancel()
		if err := r.notifier.SendMessage(sendCtx, message); err != nil {
			r.log.Warn("Failed to send telegram notification", logger.StringField("symbol", event.StockCode), logger.ErrorField(err))
		}
	})
}

func notifiable(t entity.PositionEventType) bool {
	switch t {
	case entity.PositionEventEntry, entity.PositionEventExit, entity.PositionEventScaleIn,
		entity.PositionEventScaleOut, entity.PositionEventOrderRejected:
		return true
	}
	return false
}
