package model

import (
	"fmt"
	"math"

	"sigtrade/internal/types"
)

// LogisticParams holds a standardised logistic regression. Mean and Scale
// are optional; when present each input is (x-mean)/scale before weighting.
type LogisticParams struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Mean    []float64 `json:"mean,omitempty"`
	Scale   []float64 `json:"scale,omitempty"`
}

type Logistic struct {
	features []string
	params   LogisticParams
	version  string
}

func newLogistic(art Artifact) (*Logistic, error) {
	if art.Logistic == nil {
		return nil, fmt.Errorf("logistic model requires a logistic section")
	}
	p := *art.Logistic
	n := len(art.Features)
	if len(p.Weights) != n {
		return nil, fmt.Errorf("logistic weights: have %d, want %d", len(p.Weights), n)
	}
	if len(p.Mean) != 0 && len(p.Mean) != n {
		return nil, fmt.Errorf("logistic mean: have %d, want %d", len(p.Mean), n)
	}
	if len(p.Scale) != 0 && len(p.Scale) != n {
		return nil, fmt.Errorf("logistic scale: have %d, want %d", len(p.Scale), n)
	}
	return &Logistic{features: art.Features, params: p, version: art.Version}, nil
}

func (l *Logistic) Version() string { return l.version }

func (l *Logistic) Predict(row types.FeatureRow) (float64, error) {
	x, err := vector(l.features, row)
	if err != nil {
		return 0, err
	}
	z := l.params.Bias
	for i, v := range x {
		if len(l.params.Mean) > 0 {
			v -= l.params.Mean[i]
		}
		if len(l.params.Scale) > 0 && l.params.Scale[i] != 0 {
			v /= l.params.Scale[i]
		}
		z += l.params.Weights[i] * v
	}
	return clamp01(sigmoid(z)), nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
