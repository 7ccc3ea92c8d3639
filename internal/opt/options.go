package opt

import (
	"log/slog"
	"math/rand"
)

// DefaultSeed seeds the perturbation source when no seed or source is given.
const DefaultSeed int64 = 42

// Progress describes one finished iteration. Params aliases the caller's
// parameter vector and must not be retained or modified.
type Progress struct {
	Iteration        int
	Value            float64
	StepGain         float64
	PerturbationGain float64
	Params           []float64
}

// ProgressFunc is called after every iteration. Returning an error aborts
// the run.
type ProgressFunc func(Progress) error

type settings struct {
	seed        int64
	rng         *rand.Rand
	stability   float64
	subBatch    int
	workers     int
	patience    int
	logger      *slog.Logger
	logInterval int
	progress    ProgressFunc
}

func defaultSettings() settings {
	return settings{
		seed:        DefaultSeed,
		workers:     1,
		patience:    1,
		logInterval: 1000,
	}
}

// Option customizes an SPSA optimizer.
type Option func(*settings)

// WithSeed sets the seed of the perturbation source. Every Minimize call
// starts a fresh source from this seed, so repeated runs are identical.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.seed = seed
	}
}

// WithRand injects the perturbation source. The source is shared by all
// Minimize calls of the optimizer, which must then not run concurrently.
func WithRand(rng *rand.Rand) Option {
	return func(s *settings) {
		s.rng = rng
	}
}

// WithStabilityConstant shifts the step gain to stepSize / (k + 1 + a)^alpha.
func WithStabilityConstant(a float64) Option {
	return func(s *settings) {
		s.stability = a
	}
}

// WithSubBatchSize sets how many terms of a BatchObjective are evaluated per
// perturbation sample. Zero selects the whole dataset.
func WithSubBatchSize(n int) Option {
	return func(s *settings) {
		s.subBatch = n
	}
}

// WithConcurrency evaluates the perturbation samples of an iteration on up
// to workers goroutines. The objective must be safe for concurrent use when
// workers > 1.
func WithConcurrency(workers int) Option {
	return func(s *settings) {
		s.workers = workers
	}
}

// WithPatience requires n consecutive iterations below the tolerance before
// stopping early.
func WithPatience(n int) Option {
	return func(s *settings) {
		s.patience = n
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithLogInterval logs progress at debug level every n iterations; 0 disables it.
func WithLogInterval(n int) Option {
	return func(s *settings) {
		s.logInterval = n
	}
}

// WithProgress registers a per-iteration callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *settings) {
		s.progress = fn
	}
}
