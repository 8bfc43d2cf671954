package backtest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gopkg.in/yaml.v3"
)

const (
	summaryFile = "summary.yaml"
	tradesFile  = "trades.yaml"
	equityFile  = "equity.html"
)

type tradeRow struct {
	Time       string  `yaml:"time"`
	Side       string  `yaml:"side"`
	Price      float64 `yaml:"price"`
	Amount     float64 `yaml:"amount"`
	Cost       float64 `yaml:"cost"`
	Fee        float64 `yaml:"fee"`
	PnL        float64 `yaml:"pnl,omitempty"`
	Reason     string  `yaml:"reason"`
	StopLoss   float64 `yaml:"stop_loss,omitempty"`
	TakeProfit float64 `yaml:"take_profit,omitempty"`
}

// WriteReport 将回测结果写入 <root>/<run id>/ 目录并返回该目录。
func WriteReport(root string, res *Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("nil backtest result")
	}
	dir := filepath.Join(root, res.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := writeYAML(filepath.Join(dir, summaryFile), res); err != nil {
		return "", err
	}
	rows := make([]tradeRow, 0, len(res.Trades))
	for _, t := range res.Trades {
		rows = append(rows, tradeRow{
			Time:       t.Timestamp.UTC().Format(time.RFC3339),
			Side:       string(t.Side),
			Price:      t.Price,
			Amount:     t.Amount,
			Cost:       t.Cost,
			Fee:        t.Fee,
			PnL:        t.PnL,
			Reason:     t.Reason,
			StopLoss:   t.StopLoss,
			TakeProfit: t.TakeProfit,
		})
	}
	if err := writeYAML(filepath.Join(dir, tradesFile), rows); err != nil {
		return "", err
	}
	html, err := renderEquity(res)
	if err != nil {
		return "", fmt.Errorf("render equity chart: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, equityFile), html, 0o644); err != nil {
		return "", err
	}
	btLog.Infof("report written to %s", dir)
	return dir, nil
}

func writeYAML(path string, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func renderEquity(res *Result) ([]byte, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Backtest " + res.ID, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s %s equity", res.Config.Symbol, res.Config.Timeframe),
			Subtitle: fmt.Sprintf("final %.2f | return %.2f%% | sharpe %.2f | max dd %.2f%% | trades %d",
				res.Stats.FinalEquity, res.Stats.ReturnPct, res.Stats.Sharpe, res.Stats.MaxDrawdownPct, res.Stats.Trades),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	xAxis := make([]string, len(res.Equity))
	equity := make([]opts.LineData, len(res.Equity))
	cash := make([]opts.LineData, len(res.Equity))
	for i, p := range res.Equity {
		xAxis[i] = p.Time.Format("2006-01-02 15:04")
		equity[i] = opts.LineData{Value: p.Equity}
		cash[i] = opts.LineData{Value: p.Cash}
	}
	line.SetXAxis(xAxis).
		AddSeries("Equity", equity).
		AddSeries("Cash", cash)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
