package app

import (
	"fmt"
	"io"
	"strings"

	brcfg "sigtrade/internal/config"
)

// StartupSummary 汇总启动时的关键配置，便于核对实盘参数。
type StartupSummary struct {
	Symbols      []string
	Timeframe    string
	Market       string
	ModelVersion string
	Cash         float64
	Restored     []string
	MaxOpen      int
	PerSlot      float64
	Buy          float64
	Sell         float64
	Volatility   float64
	HTTPAddr     string
	ControlFile  string
}

func newStartupSummary(cfg *brcfg.Config, modelVersion string, cash float64, restored []string) *StartupSummary {
	return &StartupSummary{
		Symbols:      cfg.Trading.Symbols,
		Timeframe:    cfg.Trading.Timeframe,
		Market:       cfg.Exchange.Market,
		ModelVersion: modelVersion,
		Cash:         cash,
		Restored:     restored,
		MaxOpen:      cfg.Trading.MaxOpenPositions,
		PerSlot:      cfg.Trading.PerSlotBudget(),
		Buy:          cfg.Signal.BuyThreshold,
		Sell:         cfg.Signal.SellThreshold,
		Volatility:   cfg.Signal.VolatilityThreshold,
		HTTPAddr:     cfg.App.HTTPAddr,
		ControlFile:  cfg.Paths.ControlFile,
	}
}

func (s *StartupSummary) Print(w io.Writer) {
	if s == nil || w == nil {
		return
	}
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[行情 (MARKET)]")
	fmt.Fprintf(w, "  监控币种: %s\n", formatList(s.Symbols))
	fmt.Fprintf(w, "  K线周期: %s (%s)\n", s.Timeframe, s.Market)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[模型与信号 (MODEL & SIGNAL)]")
	fmt.Fprintf(w, "  模型版本: %s\n", orDash(s.ModelVersion))
	fmt.Fprintf(w, "  阈值: buy>=%.2f sell<=%.2f volatility>=%.4f\n", s.Buy, s.Sell, s.Volatility)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[账户 (LEDGER)]")
	fmt.Fprintf(w, "  可用现金: %.2f\n", s.Cash)
	fmt.Fprintf(w, "  最大持仓: %d (每仓预算 %.2f)\n", s.MaxOpen, s.PerSlot)
	fmt.Fprintf(w, "  恢复持仓: %s\n", formatList(s.Restored))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[控制 (CONTROL)]")
	fmt.Fprintf(w, "  看板地址: %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(w, "  暂停文件: %s\n", orDash(s.ControlFile))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
