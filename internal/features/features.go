package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"sigtrade/internal/market"
	"sigtrade/internal/types"
)

// ErrInsufficientHistory is returned when the series is too short for every
// indicator window to be populated at the last close.
var ErrInsufficientHistory = errors.New("insufficient candle history")

const (
	smaFastPeriod = 20
	smaSlowPeriod = 50
	emaPeriod     = 12
	rsiPeriod     = 14
	atrPeriod     = 14
	volWindow     = 20
	bbPeriod      = 20
	bbDev         = 2.0
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
	maxLag        = 3
)

// Feature names, in the order the classifier expects them.
const (
	Return     = "return"
	SMA20      = "sma_20"
	SMA50      = "sma_50"
	EMA12      = "ema_12"
	RSI        = "rsi"
	Volatility = types.FeatureVolatility
	ATR        = types.FeatureATR
	MACD       = "macd"
	BBWidth    = "bb_width"
)

var lagged = []string{Return, RSI, Volatility, MACD, BBWidth}

// lookback is the first index at which each base indicator is defined.
var lookback = map[string]int{
	Return:     1,
	SMA20:      smaFastPeriod - 1,
	SMA50:      smaSlowPeriod - 1,
	EMA12:      emaPeriod - 1,
	RSI:        rsiPeriod,
	Volatility: volWindow,
	ATR:        atrPeriod,
	MACD:       macdSlow + macdSignal - 2,
	BBWidth:    bbPeriod - 1,
}

// MinCandles is the shortest series that yields a complete row at its last close.
var MinCandles = minCandles()

func minCandles() int {
	first := 0
	for name, lb := range lookback {
		if isLagged(name) {
			lb += maxLag
		}
		if lb > first {
			first = lb
		}
	}
	return first + 1
}

func isLagged(name string) bool {
	for _, l := range lagged {
		if l == name {
			return true
		}
	}
	return false
}

// LagName returns the column name for a lagged feature, e.g. rsi_lag_2.
func LagName(name string, lag int) string {
	return fmt.Sprintf("%s_lag_%d", name, lag)
}

// Names lists every column a complete row carries, excluding close.
func Names() []string {
	out := []string{Return, SMA20, SMA50, EMA12, RSI, Volatility, ATR, MACD, BBWidth}
	for _, name := range lagged {
		for lag := 1; lag <= maxLag; lag++ {
			out = append(out, LagName(name, lag))
		}
	}
	return out
}

// Compute returns the feature row for the last close of candles.
func Compute(candles []market.Candle) (types.FeatureRow, error) {
	rows := ComputeSeries(candles)
	if len(rows) == 0 || rows[len(rows)-1] == nil {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientHistory, len(candles), MinCandles)
	}
	return rows[len(rows)-1], nil
}

// ComputeSeries returns one row per candle. Rows before every window is
// populated, or with any non-finite value, are nil.
func ComputeSeries(candles []market.Candle) []types.FeatureRow {
	rows := make([]types.FeatureRow, len(candles))
	if len(candles) < MinCandles {
		return rows
	}
	cs := market.Candles(candles)
	closes := cs.Closes()
	highs := cs.Highs()
	lows := cs.Lows()

	base := map[string][]float64{
		Return:     returns(closes),
		SMA20:      talib.Sma(closes, smaFastPeriod),
		SMA50:      talib.Sma(closes, smaSlowPeriod),
		EMA12:      talib.Ema(closes, emaPeriod),
		RSI:        talib.Rsi(closes, rsiPeriod),
		ATR:        talib.Atr(highs, lows, closes, atrPeriod),
		MACD:       macdHist(closes),
		BBWidth:    bbWidth(closes),
		Volatility: nil,
	}
	base[Volatility] = rollingStd(base[Return], volWindow)

	for i := MinCandles - 1; i < len(candles); i++ {
		row := make(types.FeatureRow, len(base)*(maxLag+1)+1)
		row[types.FeatureClose] = closes[i]
		for name, series := range base {
			row[name] = series[i]
		}
		for _, name := range lagged {
			series := base[name]
			for lag := 1; lag <= maxLag; lag++ {
				row[LagName(name, lag)] = series[i-lag]
			}
		}
		if !finite(row) {
			continue
		}
		rows[i] = row
	}
	return rows
}

func returns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i]/closes[i-1] - 1
	}
	return out
}

// rollingStd is the sample standard deviation over a trailing window.
func rollingStd(src []float64, window int) []float64 {
	out := make([]float64, len(src))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := window; i < len(src); i++ {
		var sum float64
		for _, v := range src[i-window+1 : i+1] {
			sum += v
		}
		mean := sum / float64(window)
		var ss float64
		for _, v := range src[i-window+1 : i+1] {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

func macdHist(closes []float64) []float64 {
	_, _, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	return hist
}

// bbWidth is (upper-lower)/middle in percent.
func bbWidth(closes []float64) []float64 {
	upper, middle, lower := talib.BBands(closes, bbPeriod, bbDev, bbDev, talib.SMA)
	out := make([]float64, len(closes))
	for i := range out {
		if middle[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (upper[i] - lower[i]) / middle[i] * 100
	}
	return out
}

func finite(row types.FeatureRow) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
