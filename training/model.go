package training

import (
	"encoding/json"
	"fmt"
	"math"
)

// LinearModel is a least-squares linear regression model
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// NewLinearModel creates a zero-initialised model with n features
func NewLinearModel(n int) *LinearModel {
	return &LinearModel{Weights: make([]float64, n)}
}

// Predict returns the model output for a single sample
func (m *LinearModel) Predict(x []float64) float64 {
	y := m.Bias
	for i, w := range m.Weights {
		y += w * x[i]
	}
	return y
}

// Loss returns the mean squared error over a batch
func (m *LinearModel) Loss(xs [][]float64, ys []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for i, x := range xs {
		d := m.Predict(x) - ys[i]
		sum += d * d
	}
	return sum / float64(len(xs))
}

// Step applies one gradient descent update on a batch and returns the
// predictions and the loss before the update
func (m *LinearModel) Step(xs [][]float64, ys []float64, lr float64) ([]float64, float64) {
	n := float64(len(xs))
	preds := make([]float64, len(xs))
	gradW := make([]float64, len(m.Weights))
	var gradB, loss float64

	for i, x := range xs {
		preds[i] = m.Predict(x)
		d := preds[i] - ys[i]
		loss += d * d
		for j := range gradW {
			gradW[j] += 2 * d * x[j] / n
		}
		gradB += 2 * d / n
	}

	for j := range m.Weights {
		m.Weights[j] -= lr * gradW[j]
	}
	m.Bias -= lr * gradB
	return preds, loss / n
}

// WeightNorm returns the L2 norm of the weights
func (m *LinearModel) WeightNorm() float64 {
	var sum float64
	for _, w := range m.Weights {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// MarshalBinary encodes the model as JSON
func (m *LinearModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBinary decodes a model snapshot. The snapshot must have the
// model's feature count.
func (m *LinearModel) UnmarshalBinary(data []byte) error {
	var snapshot LinearModel
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	if m.Weights != nil && len(snapshot.Weights) != len(m.Weights) {
		return fmt.Errorf("snapshot has %d features, model has %d", len(snapshot.Weights), len(m.Weights))
	}
	m.Weights = snapshot.Weights
	m.Bias = snapshot.Bias
	return nil
}
