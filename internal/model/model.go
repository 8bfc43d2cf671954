package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"sigtrade/internal/types"
)

var ErrModelNotFound = errors.New("model artifact not found")

const (
	KindLogistic = "logistic"
	KindForest   = "forest"
)

// Classifier maps a feature row to the probability that the next close is higher.
type Classifier interface {
	Predict(row types.FeatureRow) (float64, error)
	Version() string
}

// Artifact is the on-disk model file.
type Artifact struct {
	Kind     string          `json:"kind"`
	Version  string          `json:"version"`
	Features []string        `json:"features"`
	Logistic *LogisticParams `json:"logistic,omitempty"`
	Forest   *ForestParams   `json:"forest,omitempty"`
}

const artifactSchema = `{
  "type": "object",
  "required": ["kind", "features"],
  "properties": {
    "kind": {"enum": ["logistic", "forest"]},
    "version": {"type": "string"},
    "features": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "logistic": {
      "type": "object",
      "required": ["weights"],
      "properties": {
        "weights": {"type": "array", "items": {"type": "number"}},
        "bias": {"type": "number"},
        "mean": {"type": "array", "items": {"type": "number"}},
        "scale": {"type": "array", "items": {"type": "number"}}
      }
    },
    "forest": {
      "type": "object",
      "required": ["trees"],
      "properties": {
        "trees": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["nodes"],
            "properties": {
              "nodes": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "properties": {
                    "feature": {"type": "integer", "minimum": 0},
                    "threshold": {"type": "number"},
                    "left": {"type": "integer"},
                    "right": {"type": "integer"},
                    "value": {"type": "number", "minimum": 0, "maximum": 1}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("model.json", strings.NewReader(artifactSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("model.json")
}

// Load reads and validates a model artifact. A missing file wraps ErrModelNotFound.
func Load(path string) (Classifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("read model failed: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Classifier, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("model artifact is not valid JSON")
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode model failed: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model schema: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode model failed: %w", err)
	}
	switch gjson.GetBytes(raw, "kind").String() {
	case KindLogistic:
		return newLogistic(art)
	case KindForest:
		return newForest(art)
	default:
		return nil, fmt.Errorf("unsupported model kind %q", art.Kind)
	}
}

func vector(features []string, row types.FeatureRow) ([]float64, error) {
	out := make([]float64, len(features))
	for i, name := range features {
		v, ok := row.Value(name)
		if !ok {
			return nil, fmt.Errorf("feature %q missing or not finite", name)
		}
		out[i] = v
	}
	return out, nil
}

func clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
