package telegram

import (
	"fmt"
	"strings"

	"golang-stock-trader/internal/entity"
)

const maxMessageLen = 4090

// FormatPositionEventForTelegram renders one lifecycle transition as a Markdown message.
func FormatPositionEventForTelegram(event entity.PositionEvent, tradeEnv string) string {
	var icon string
	switch event.Event {
	case entity.PositionEventEntry, entity.PositionEventScaleIn:
		icon = "🟢"
	case entity.PositionEventExit, entity.PositionEventScaleOut:
		icon = "🔴"
	case entity.PositionEventOrderRejected:
		icon = "⚠️"
	default:
		icon = "🟡"
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%s *%s* `%s` (%s)\n", icon, event.Event, event.StockCode, event.StockType))
	if event.Qty > 0 {
		builder.WriteString(fmt.Sprintf("📦 *Qty:* %d\n", event.Qty))
	}
	if event.Price > 0 {
		builder.WriteString(fmt.Sprintf("💵 *Price:* %.2f\n", event.Price))
	}
	if event.Stage > 0 {
		builder.WriteString(fmt.Sprintf("🪜 *Stage:* %d\n", event.Stage))
	}
	if event.Reason != "" {
		builder.WriteString(fmt.Sprintf("💬 *Reason:* %s\n", escapeMarkdown(event.Reason)))
	}
	if event.OrderID != "" {
		builder.WriteString(fmt.Sprintf("🧾 *Order:* `%s`\n", event.OrderID))
	}
	builder.WriteString(fmt.Sprintf("🏷 *Env:* %s", tradeEnv))
	return builder.String()
}

// FormatPositionsForTelegram renders open positions, splitting into parts that fit one message each.
func FormatPositionsForTelegram(positions []entity.StockOperation) []string {
	if len(positions) == 0 {
		return []string{"No open positions."}
	}

	var messages []string
	var currentMessage strings.Builder
	part := 1

	startNewPart := func() {
		currentMessage.Reset()
		if part == 1 {
			currentMessage.WriteString("📊 *Open Positions* 📊\n\n")
		} else {
			currentMessage.WriteString(fmt.Sprintf("---*Open Positions Part %d*---\n\n", part))
		}
	}
	startNewPart()

	for _, p := range positions {
		entry := fmt.Sprintf("📈 *%s* (%s) qty=%d cost=%.2f sl=%.2f stage=%d\n",
			p.StockCode, p.StockType, p.Qty, p.Cost(), p.StopLoss(), p.CurrentStage())

		if currentMessage.Len()+len(entry) > maxMessageLen {
			messages = append(messages, currentMessage.String())
			part++
			startNewPart()
		}
		currentMessage.WriteString(entry)
	}

	messages = append(messages, currentMessage.String())
	return messages
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[").Replace(s)
}
