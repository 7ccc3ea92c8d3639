package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter runs the population-based Mayfly algorithm behind the
// Optimizer interface. It is the gradient-free baseline SPSA runs are
// compared against.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. The library only supports scalar
// bounds, so the first dimension's bounds apply to every dimension.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if dim < 1 {
		return nil, 0, &ConfigurationError{Field: "dim", Reason: "must be positive"}
	}
	if len(lower) == 0 || len(upper) == 0 {
		return nil, 0, &ConfigurationError{Field: "bounds", Reason: "cannot be empty"}
	}
	if m.popSize < 1 {
		return nil, 0, &ConfigurationError{Field: "popSize", Reason: "must be positive"}
	}
	if m.maxIters < 1 {
		return nil, 0, &ConfigurationError{Field: "maxIters", Reason: "must be positive"}
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.NPopF = m.popSize
	// Mating pairs the k-th best male and female, so there can be at most
	// popSize pairs.
	config.NC = min(config.NC, 2*m.popSize)
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
