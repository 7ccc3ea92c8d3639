package opt

import (
	"fmt"
	"math"
)

// ErrConfiguration matches every *ConfigurationError.
// Use errors.Is(err, ErrConfiguration) to check for it.
var ErrConfiguration = &ConfigurationError{}

// ErrEvaluation matches every *EvaluationError.
var ErrEvaluation = &EvaluationError{}

// ConfigurationError reports an invalid hyperparameter or input. It is
// returned before any objective evaluation takes place.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "spsa: invalid configuration"
	}
	return "spsa: invalid configuration: " + e.Field + " " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// Evaluation stages reported in EvaluationError.Stage.
const (
	StagePlus    = "plus"    // f(θ + cΔ)
	StageMinus   = "minus"   // f(θ - cΔ)
	StageUpdated = "updated" // full objective at the updated θ
)

// EvaluationError reports an objective evaluation that failed or returned a
// non-finite value. Err is the objective's own error, if it returned one.
type EvaluationError struct {
	Iteration int
	Stage     string
	Value     float64
	Err       error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spsa: evaluation failed at iteration %d (%s): %v", e.Iteration, e.Stage, e.Err)
	}
	if e.Stage == "" {
		return "spsa: evaluation failed"
	}
	return fmt.Sprintf("spsa: non-finite objective %v at iteration %d (%s)", e.Value, e.Iteration, e.Stage)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	_, ok := target.(*EvaluationError)
	return ok
}

// checkValue wraps an evaluation outcome into an *EvaluationError when it
// cannot be used.
func checkValue(v float64, err error, iteration int, stage string) error {
	if err != nil {
		return &EvaluationError{Iteration: iteration, Stage: stage, Value: v, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &EvaluationError{Iteration: iteration, Stage: stage, Value: v}
	}
	return nil
}
