package opt

import "math/rand"

// Objective is a scalar function of a real parameter vector.
// Implementations must be pure: identical arguments give identical results.
type Objective interface {
	Evaluate(x []float64) (float64, error)
}

// BatchObjective is implemented by objectives that decompose into a sum of
// NumFunctions separable terms, typically one per training sample.
// EvaluateBatch sums the terms in [begin, begin+batchSize).
type BatchObjective interface {
	Objective
	NumFunctions() int
	EvaluateBatch(x []float64, begin, batchSize int) (float64, error)
}

// Shuffler is implemented by decomposable objectives that can permute the
// order in which their terms are visited.
type Shuffler interface {
	Shuffle(rng *rand.Rand)
}

// Func adapts a plain evaluation function to Objective.
type Func func(x []float64) float64

// Evaluate calls f(x).
func (f Func) Evaluate(x []float64) (float64, error) {
	return f(x), nil
}
