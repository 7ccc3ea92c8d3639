package opt

// Optimizer defines a bounded black-box optimization algorithm.
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters, best cost and the first failure, if any
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error)
}
