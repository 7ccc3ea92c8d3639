package opt

import (
	"log/slog"
	"math"
)

// ConvergenceTracker watches successive objective values and reports when
// the run has stopped making progress.
type ConvergenceTracker struct {
	tolerance  float64
	patience   int
	logger     *slog.Logger
	last       float64 // Objective value of the previous iteration
	best       float64 // Best objective value ever seen
	staleCount int     // Consecutive iterations that moved less than tolerance
	updates    int
}

// NewConvergenceTracker creates a tracker. A tolerance <= 0 disables
// convergence detection; patience is the number of consecutive stale
// iterations required and is raised to 1 when smaller.
func NewConvergenceTracker(tolerance float64, patience int, logger *slog.Logger) *ConvergenceTracker {
	if patience < 1 {
		patience = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConvergenceTracker{
		tolerance: tolerance,
		patience:  patience,
		logger:    logger,
		last:      math.Inf(1),
		best:      math.Inf(1),
	}
}

// Update records the objective value of a finished iteration and returns
// true if convergence is detected.
func (c *ConvergenceTracker) Update(value float64) bool {
	c.updates++
	if value < c.best {
		c.best = value
	}

	prev := c.last
	c.last = value

	if c.tolerance <= 0 || c.updates == 1 {
		return false
	}

	delta := math.Abs(prev - value)
	if delta >= c.tolerance {
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount < c.patience {
		return false
	}

	c.logger.Info("Convergence detected - stopping early",
		"delta", delta,
		"tolerance", c.tolerance,
		"stale_count", c.staleCount,
		"best_value", c.best,
	)
	return true
}

// Best returns the best objective value seen so far.
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}
