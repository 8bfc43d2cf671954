package types

import "math"

// Well-known keys every FeatureRow carries.
const (
	FeatureClose      = "close"
	FeatureVolatility = "volatility"
	FeatureATR        = "atr"
)

// FeatureRow maps indicator names to values for a single candle close.
type FeatureRow map[string]float64

func (r FeatureRow) Value(key string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (r FeatureRow) Volatility() float64 {
	v, _ := r.Value(FeatureVolatility)
	return v
}

func (r FeatureRow) ATR() float64 {
	v, _ := r.Value(FeatureATR)
	return v
}

func (r FeatureRow) Close() float64 {
	v, _ := r.Value(FeatureClose)
	return v
}

// Clone returns a copy so callers cannot mutate a shared row.
func (r FeatureRow) Clone() FeatureRow {
	if r == nil {
		return nil
	}
	out := make(FeatureRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
