package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// LinearProvider is a single-layer Q head stored as JSON:
//
//	{"input_size": 6, "weights": [[...], ...], "bias": [...]}
//
// weights has one row per fine action.
type LinearProvider struct {
	id        string
	inputSize int
	weights   [][]float64
	bias      []float64
}

type linearFile struct {
	InputSize int         `json:"input_size"`
	Weights   [][]float64 `json:"weights"`
	Bias      []float64   `json:"bias"`
}

func LoadLinear(path string) (*LinearProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read linear checkpoint: %w", err)
	}
	var f linearFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse linear checkpoint %s: %w", path, err)
	}
	return NewLinear(path, f.InputSize, f.Weights, f.Bias)
}

func NewLinear(id string, inputSize int, weights [][]float64, bias []float64) (*LinearProvider, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("linear %s: no action rows", id)
	}
	if inputSize <= 0 {
		inputSize = len(weights[0])
	}
	for a, w := range weights {
		if len(w) != inputSize {
			return nil, fmt.Errorf("linear %s: row %d has %d weights, want %d", id, a, len(w), inputSize)
		}
	}
	if bias == nil {
		bias = make([]float64, len(weights))
	}
	if len(bias) != len(weights) {
		return nil, fmt.Errorf("linear %s: %d biases for %d actions", id, len(bias), len(weights))
	}
	return &LinearProvider{id: id, inputSize: inputSize, weights: weights, bias: bias}, nil
}

func (p *LinearProvider) ID() string { return p.id }

func (p *LinearProvider) InputSize() int { return p.inputSize }

func (p *LinearProvider) Predict(ctx context.Context, state []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(state) != p.inputSize {
		return 0, fmt.Errorf("state length %d, want %d", len(state), p.inputSize)
	}
	q := make([]float64, len(p.weights))
	for a, w := range p.weights {
		s := p.bias[a]
		for i, x := range state {
			s += w[i] * x
		}
		q[a] = s
	}
	return Argmax(q), nil
}

// Argmax returns the index of the largest score, the lowest index on ties.
func Argmax(scores []float64) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}
