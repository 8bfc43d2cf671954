package strategy

import (
	"fmt"

	"sigtrade/internal/types"
)

const ReasonModelSignal = "model signal"

// Predictor is the classifier collaborator.
type Predictor interface {
	Predict(row types.FeatureRow) (float64, error)
}

// Thresholds configures the volatility gate and signal interpretation.
type Thresholds struct {
	Buy        float64
	Sell       float64
	Volatility float64
}

// Gate short-circuits to HOLD when volatility is below threshold. The second
// return is false when the row should be forwarded to the model.
func Gate(row types.FeatureRow, volatilityThreshold float64) (types.Prediction, bool) {
	vol := row.Volatility()
	if vol < volatilityThreshold {
		return types.Prediction{
			Signal:      types.SignalHold,
			Probability: 0,
			Volatility:  vol,
			ATR:         row.ATR(),
			ClosePrice:  row.Close(),
			Reason:      types.ReasonLowVolatility,
		}, true
	}
	return types.Prediction{}, false
}

// Interpret maps a probability to BUY above buy, SELL below sell, else HOLD.
func Interpret(probability, buy, sell float64) types.Signal {
	switch {
	case probability > buy:
		return types.SignalBuy
	case probability < sell:
		return types.SignalSell
	default:
		return types.SignalHold
	}
}

// Evaluate runs the gate and, if the market is live enough, the predictor.
// Predictor failures are returned as-is and never retried.
func Evaluate(row types.FeatureRow, predictor Predictor, th Thresholds) (types.Prediction, error) {
	if pred, gated := Gate(row, th.Volatility); gated {
		return pred, nil
	}
	if predictor == nil {
		return types.Prediction{}, fmt.Errorf("predictor not configured")
	}
	prob, err := predictor.Predict(row)
	if err != nil {
		return types.Prediction{}, fmt.Errorf("predict failed: %w", err)
	}
	return types.Prediction{
		Signal:      Interpret(prob, th.Buy, th.Sell),
		Probability: prob,
		Volatility:  row.Volatility(),
		ATR:         row.ATR(),
		ClosePrice:  row.Close(),
		Reason:      ReasonModelSignal,
	}, nil
}
