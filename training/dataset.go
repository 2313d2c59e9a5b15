package training

import (
	"math/rand"
)

// DefaultFeatures is the feature count of synthetic datasets
const DefaultFeatures = 4

// Dataset is an in-memory regression dataset
type Dataset struct {
	X [][]float64
	Y []float64
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	return len(d.X)
}

// Synthetic generates a noisy linear dataset. The same seed always yields
// the same samples.
func Synthetic(samples, features int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))

	weights := make([]float64, features)
	for i := range weights {
		weights[i] = rng.Float64()*4 - 2
	}
	bias := rng.Float64()*2 - 1

	d := &Dataset{
		X: make([][]float64, samples),
		Y: make([]float64, samples),
	}
	for i := 0; i < samples; i++ {
		x := make([]float64, features)
		y := bias
		for j := range x {
			x[j] = rng.NormFloat64()
			y += weights[j] * x[j]
		}
		d.X[i] = x
		d.Y[i] = y + rng.NormFloat64()*0.01
	}
	return d
}

// Batches splits the samples, in the given order, into batches of at most
// size samples
func (d *Dataset) Batches(order []int, size int) []Batch {
	if size <= 0 {
		size = len(order)
	}
	batches := make([]Batch, 0, (len(order)+size-1)/max(size, 1))
	for start := 0; start < len(order); start += size {
		end := min(start+size, len(order))
		b := Batch{
			X: make([][]float64, 0, end-start),
			Y: make([]float64, 0, end-start),
		}
		for _, idx := range order[start:end] {
			b.X = append(b.X, d.X[idx])
			b.Y = append(b.Y, d.Y[idx])
		}
		batches = append(batches, b)
	}
	return batches
}

// Batch is one minibatch
type Batch struct {
	X [][]float64
	Y []float64
}
