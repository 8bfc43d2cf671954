package notifier

import (
	"context"
	"fmt"
	"time"

	"sigtrade/internal/execution"
	"sigtrade/internal/logger"
	"sigtrade/internal/types"
)

var notifyLog = logger.Component("notify")

// FillAlerts 将每个 tick 的成交汇总为一条消息。没有成交的 tick 不推送。
type FillAlerts struct {
	Sender TextNotifier
	now    func() time.Time
}

func NewFillAlerts(sender TextNotifier) *FillAlerts {
	return &FillAlerts{Sender: sender, now: time.Now}
}

func (a *FillAlerts) NotifyFills(ctx context.Context, tickID string, exits, entries []execution.Fill, snap types.LedgerSnapshot) error {
	if a == nil || a.Sender == nil || len(exits)+len(entries) == 0 {
		return nil
	}
	msg := FillMessage(tickID, exits, entries, snap)
	msg.Timestamp = a.now()
	if err := a.Sender.SendText(ctx, msg.RenderMarkdown()); err != nil {
		notifyLog.Warnf("tick=%s send fill alert: %v", tickID, err)
		return err
	}
	return nil
}

// FillMessage renders exits before entries, matching execution order.
func FillMessage(tickID string, exits, entries []execution.Fill, snap types.LedgerSnapshot) Message {
	var sections []Section
	if len(exits) > 0 {
		lines := make([]string, 0, len(exits))
		for _, f := range exits {
			lines = append(lines, fmt.Sprintf("%s SELL %.6f @ %.4f reason=%s pnl=%+.2f fee=%.4f",
				f.Symbol, f.Amount, f.ExecPrice, f.Reason, f.PnL, f.Fee))
		}
		sections = append(sections, Section{Title: "平仓 (EXITS)", Lines: lines})
	}
	if len(entries) > 0 {
		lines := make([]string, 0, len(entries))
		for _, f := range entries {
			lines = append(lines, fmt.Sprintf("%s BUY %.6f @ %.4f cost=%.2f fee=%.4f",
				f.Symbol, f.Amount, f.ExecPrice, f.Cost, f.Fee))
		}
		sections = append(sections, Section{Title: "开仓 (ENTRIES)", Lines: lines})
	}
	return Message{
		Icon:     "📈",
		Title:    fmt.Sprintf("模拟成交 tick=%s", tickID),
		Sections: sections,
		Footer:   fmt.Sprintf("cash=%.2f equity=%.2f", snap.Cash, snap.Equity),
	}
}
