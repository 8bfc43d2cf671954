package livehttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sigtrade/internal/control"
	"sigtrade/internal/market"
	"sigtrade/internal/pkg/symbol"
	"sigtrade/internal/store"
	"sigtrade/internal/types"
)

const queryTimeout = 2 * time.Second

// Controller is the pause/resume surface the dashboard drives.
type Controller interface {
	Paused() bool
	Apply(action string) (bool, error)
}

// Router 暴露账本、成交、信号查询以及控制接口。
type Router struct {
	Ledger        store.Reader
	Control       Controller
	Candles       store.CandleCache
	Timeframe     string
	DefaultSymbol string
}

// Register 将看板路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/balance", r.handleBalance)
	group.GET("/equity", r.handleEquity)
	group.GET("/trades", r.handleTrades)
	group.GET("/live-signal", r.handleLiveSignal)
	group.GET("/signals", r.handleSignals)
	group.GET("/statistics", r.handleStatistics)
	group.GET("/positions", r.handlePositions)
	group.GET("/chart-data", r.handleChartData)
	group.GET("/status", r.handleStatus)
	group.POST("/control", r.handleControl)
}

func queryCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), queryTimeout)
}

func parseLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("limit", strconv.Itoa(def))))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

// querySymbol maps ?symbol= in any accepted form (BTCUSDT, btc/usdt,
// BTC/USDT:USDT) to the BASE/QUOTE key the engine stores under. Input that
// does not parse is only upper-cased, so it matches nothing.
func querySymbol(c *gin.Context, def string) string {
	raw := strings.TrimSpace(c.Query("symbol"))
	if raw == "" {
		raw = def
	}
	if !symbol.IsValid(raw) {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	return symbol.Normalize(raw)
}

func fail(c *gin.Context, op string, err error) {
	httpLog.Errorf("%s failed ip=%s err=%v", op, c.ClientIP(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (r *Router) handleBalance(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	snap, ok, err := r.Ledger.LatestSnapshot(ctx)
	if err != nil {
		fail(c, "balance", err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"balance": 0, "equity": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        snap.ID,
		"balance":   snap.Cash,
		"equity":    snap.Equity,
		"timestamp": snap.Timestamp,
	})
}

func (r *Router) handleEquity(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	snaps, err := r.Ledger.ListSnapshots(ctx, parseLimit(c, 500))
	if err != nil {
		fail(c, "equity", err)
		return
	}
	if snaps == nil {
		snaps = []types.LedgerSnapshot{}
	}
	c.JSON(http.StatusOK, snaps)
}

func (r *Router) handleTrades(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	trades, err := r.Ledger.ListTrades(ctx, parseLimit(c, 50))
	if err != nil {
		fail(c, "trades", err)
		return
	}
	if trades == nil {
		trades = []types.TradeRecord{}
	}
	c.JSON(http.StatusOK, trades)
}

func (r *Router) handleLiveSignal(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	sig, ok, err := r.Ledger.LatestSignal(ctx)
	if err != nil {
		fail(c, "live signal", err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (r *Router) handleSignals(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	signals, err := r.Ledger.ListSignals(ctx, querySymbol(c, ""), parseLimit(c, 50))
	if err != nil {
		fail(c, "signals", err)
		return
	}
	if signals == nil {
		signals = []types.SignalRecord{}
	}
	c.JSON(http.StatusOK, signals)
}

func (r *Router) handleStatistics(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	stats, err := r.Ledger.Statistics(ctx)
	if err != nil {
		fail(c, "statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handlePositions rebuilds open positions from the trade log and marks them
// with the latest cached close when one is available.
func (r *Router) handlePositions(c *gin.Context) {
	ctx, cancel := queryCtx(c)
	defer cancel()
	portfolio, err := r.Ledger.OpenPositions(ctx)
	if err != nil {
		fail(c, "positions", err)
		return
	}
	out := make([]types.PositionSnapshot, 0, portfolio.OpenCount())
	for _, sym := range portfolio.OpenSymbols() {
		pos := portfolio[sym]
		snap := types.PositionSnapshot{
			Symbol:     sym,
			Amount:     pos.Amount,
			EntryPrice: pos.EntryPrice,
			StopLoss:   pos.StopLoss,
			TakeProfit: pos.TakeProfit,
		}
		if price, ok := r.latestClose(ctx, sym); ok {
			snap.CurrentPrice = price
			snap.UnrealizedPn = (price - pos.EntryPrice) * pos.Amount
		}
		out = append(out, snap)
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) latestClose(ctx context.Context, sym string) (float64, bool) {
	if r.Candles == nil {
		return 0, false
	}
	ks, err := r.Candles.Latest(ctx, sym, r.Timeframe, 1)
	if err != nil {
		return 0, false
	}
	last, ok := market.Candles(ks).Last()
	return last.Close, ok
}

type chartPoint struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// handleChartData serves candles the engine already fetched. Time is unix seconds.
func (r *Router) handleChartData(c *gin.Context) {
	sym := querySymbol(c, r.DefaultSymbol)
	out := []chartPoint{}
	if r.Candles == nil || sym == "" {
		c.JSON(http.StatusOK, out)
		return
	}
	ctx, cancel := queryCtx(c)
	defer cancel()
	ks, err := r.Candles.Latest(ctx, sym, r.Timeframe, parseLimit(c, 100))
	if err != nil {
		fail(c, "chart data", err)
		return
	}
	for _, k := range ks {
		out = append(out, chartPoint{
			Time:   k.OpenTime / 1000,
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		})
	}
	c.JSON(http.StatusOK, out)
}

func statusLabel(paused bool) string {
	if paused {
		return "paused"
	}
	return "running"
}

func (r *Router) handleStatus(c *gin.Context) {
	paused := r.Control != nil && r.Control.Paused()
	c.JSON(http.StatusOK, gin.H{"paused": paused, "status": statusLabel(paused)})
}

type controlRequest struct {
	Action string `json:"action"`
}

func (r *Router) handleControl(c *gin.Context) {
	if r.Control == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "control not configured"})
		return
	}
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	paused, err := r.Control.Apply(strings.ToLower(strings.TrimSpace(req.Action)))
	if errors.Is(err, control.ErrInvalidAction) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	if err != nil {
		fail(c, "control", err)
		return
	}
	httpLog.Infof("control action=%s ip=%s", req.Action, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": statusLabel(paused)})
}
