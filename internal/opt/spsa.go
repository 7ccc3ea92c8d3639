package opt

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config holds the SPSA hyperparameters. It is validated once when the
// optimizer is built and never changes afterwards.
type Config struct {
	StepSizeDecayExponent     float64 `json:"alpha"`
	BatchSize                 int     `json:"batchSize"`
	PerturbationDecayExponent float64 `json:"gamma"`
	StepSize                  float64 `json:"stepSize"`
	EvaluationStepSize        float64 `json:"evaluationStepSize"`
	MaxIterations             int     `json:"maxIterations"` // 0 = no limit
	Tolerance                 float64 `json:"tolerance"`     // <= 0 disables early stopping
}

// DefaultConfig returns the hyperparameters used by the reference test suite.
func DefaultConfig() Config {
	return Config{
		StepSizeDecayExponent:     0.1,
		BatchSize:                 2,
		PerturbationDecayExponent: 0.102,
		StepSize:                  0.16,
		EvaluationStepSize:        0.3,
		MaxIterations:             100000,
		Tolerance:                 0,
	}
}

// Validate reports the first invalid hyperparameter.
func (c Config) Validate() error {
	if !inUnitInterval(c.StepSizeDecayExponent) {
		return &ConfigurationError{Field: "StepSizeDecayExponent", Reason: "must be in (0, 1]"}
	}
	if c.BatchSize < 1 {
		return &ConfigurationError{Field: "BatchSize", Reason: "must be positive"}
	}
	if !inUnitInterval(c.PerturbationDecayExponent) {
		return &ConfigurationError{Field: "PerturbationDecayExponent", Reason: "must be in (0, 1]"}
	}
	if !positiveFinite(c.StepSize) {
		return &ConfigurationError{Field: "StepSize", Reason: "must be positive and finite"}
	}
	if !positiveFinite(c.EvaluationStepSize) {
		return &ConfigurationError{Field: "EvaluationStepSize", Reason: "must be positive and finite"}
	}
	if c.MaxIterations < 0 {
		return &ConfigurationError{Field: "MaxIterations", Reason: "cannot be negative"}
	}
	if math.IsNaN(c.Tolerance) || math.IsInf(c.Tolerance, 0) {
		return &ConfigurationError{Field: "Tolerance", Reason: "must be finite"}
	}
	return nil
}

func (s settings) validate() error {
	if s.stability < 0 || math.IsNaN(s.stability) || math.IsInf(s.stability, 0) {
		return &ConfigurationError{Field: "StabilityConstant", Reason: "must be finite and non-negative"}
	}
	if s.subBatch < 0 {
		return &ConfigurationError{Field: "SubBatchSize", Reason: "cannot be negative"}
	}
	if s.workers < 1 {
		return &ConfigurationError{Field: "Concurrency", Reason: "must be positive"}
	}
	if s.patience < 1 {
		return &ConfigurationError{Field: "Patience", Reason: "must be positive"}
	}
	if s.logInterval < 0 {
		return &ConfigurationError{Field: "LogInterval", Reason: "cannot be negative"}
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return v > 0 && v <= 1
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// Result summarizes a finished run.
type Result struct {
	Value       float64
	Iterations  int
	Evaluations int
	Status      Status
	Elapsed     time.Duration
}

// SPSA minimizes an objective with simultaneous perturbation stochastic
// approximation: every iteration estimates the gradient from two objective
// evaluations along random ±1 directions and takes a decaying step against it.
type SPSA struct {
	cfg Config
	settings
}

// NewSPSA builds an optimizer from positional hyperparameters.
func NewSPSA(stepSizeDecayExponent float64, batchSize int, perturbationDecayExponent,
	stepSize, evaluationStepSize float64, maxIterations int, tolerance float64, opts ...Option) (*SPSA, error) {
	return NewSPSAFromConfig(Config{
		StepSizeDecayExponent:     stepSizeDecayExponent,
		BatchSize:                 batchSize,
		PerturbationDecayExponent: perturbationDecayExponent,
		StepSize:                  stepSize,
		EvaluationStepSize:        evaluationStepSize,
		MaxIterations:             maxIterations,
		Tolerance:                 tolerance,
	}, opts...)
}

// NewSPSAFromConfig builds an optimizer from a Config.
func NewSPSAFromConfig(cfg Config, opts ...Option) (*SPSA, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return &SPSA{cfg: cfg, settings: s}, nil
}

// MustNewSPSA is like NewSPSA but panics on an invalid configuration.
func MustNewSPSA(stepSizeDecayExponent float64, batchSize int, perturbationDecayExponent,
	stepSize, evaluationStepSize float64, maxIterations int, tolerance float64, opts ...Option) *SPSA {
	s, err := NewSPSA(stepSizeDecayExponent, batchSize, perturbationDecayExponent,
		stepSize, evaluationStepSize, maxIterations, tolerance, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Config returns the optimizer's hyperparameters.
func (s *SPSA) Config() Config {
	return s.cfg
}

// StepGain returns a_k, the update gain of iteration k.
func (s *SPSA) StepGain(k int) float64 {
	return s.cfg.StepSize / math.Pow(float64(k)+1+s.stability, s.cfg.StepSizeDecayExponent)
}

// PerturbationGain returns c_k, the perturbation magnitude of iteration k.
func (s *SPSA) PerturbationGain(k int) float64 {
	return s.cfg.EvaluationStepSize / math.Pow(float64(k)+1, s.cfg.PerturbationDecayExponent)
}

// Perturb fills dst with independent, uniformly drawn ±1 components.
func Perturb(rng *rand.Rand, dst []float64) {
	for i := range dst {
		if rng.Int63()&1 == 0 {
			dst[i] = -1
		} else {
			dst[i] = 1
		}
	}
}

// Optimize minimizes obj starting at params, which is overwritten with the
// final iterate. It returns the objective value at that iterate.
func (s *SPSA) Optimize(obj Objective, params []float64) (float64, error) {
	res, err := s.Minimize(obj, params)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// Minimize is Optimize with run statistics. On error params holds the last
// iterate whose objective value was finite.
func (s *SPSA) Minimize(obj Objective, params []float64) (*Result, error) {
	r, err := s.newRun(obj, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tracker := NewConvergenceTracker(s.cfg.Tolerance, s.patience, s.logger)
	res := &Result{Status: Running}

	s.logger.Debug("Starting SPSA optimization",
		"dimension", len(params),
		"batch_size", s.cfg.BatchSize,
		"max_iterations", s.cfg.MaxIterations,
		"tolerance", s.cfg.Tolerance,
		"decomposable", r.batch != nil,
	)

	for k := 0; res.Status == Running; k++ {
		ak := s.StepGain(k)
		ck := s.PerturbationGain(k)

		value, err := r.iterate(k, ak, ck)
		res.Evaluations = r.evaluations
		if err != nil {
			s.logger.Error("SPSA optimization failed", "iteration", k, "error", err)
			return nil, err
		}
		res.Value = value
		res.Iterations = k + 1

		converged := tracker.Update(value)
		switch {
		case s.cfg.MaxIterations > 0 && res.Iterations >= s.cfg.MaxIterations:
			res.Status = IterationLimit
		case converged:
			res.Status = FunctionConvergence
		}

		if s.logInterval > 0 && res.Iterations%s.logInterval == 0 {
			s.logger.Debug("SPSA progress",
				"iteration", k,
				"value", value,
				"step_gain", ak,
				"perturbation_gain", ck,
			)
		}

		if s.progress != nil {
			p := Progress{Iteration: k, Value: value, StepGain: ak, PerturbationGain: ck, Params: params}
			if err := s.progress(p); err != nil {
				return nil, fmt.Errorf("spsa: progress callback: %w", err)
			}
		}
	}

	res.Elapsed = time.Since(start)
	s.logger.Info("SPSA optimization complete",
		"status", res.Status.String(),
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
		"value", res.Value,
		"best_value", tracker.Best(),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// Run implements Optimizer. The search starts at the midpoint of the bounds;
// the bounds are not enforced afterwards.
func (s *SPSA) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if len(lower) < dim || len(upper) < dim {
		return nil, 0, &ConfigurationError{Field: "bounds", Reason: fmt.Sprintf("need %d lower and upper values", dim)}
	}
	x := make([]float64, dim)
	for i := range x {
		x[i] = (lower[i] + upper[i]) / 2
	}
	res, err := s.Minimize(Func(eval), x)
	if err != nil {
		return nil, 0, err
	}
	return x, res.Value, nil
}
