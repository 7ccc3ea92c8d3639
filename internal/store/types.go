package store

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/spsa/internal/opt"
)

// Optimization methods.
const (
	MethodSPSA   = "spsa"
	MethodMayfly = "mayfly"
)

// RunConfig holds everything needed to reproduce a run.
type RunConfig struct {
	Function string `json:"function"`
	Dim      int    `json:"dim"`
	Method   string `json:"method"`
	Seed     int64  `json:"seed"`

	// SPSA settings
	SPSA              opt.Config `json:"spsa"`
	StabilityConstant float64    `json:"stabilityConstant,omitempty"`
	SubBatchSize      int        `json:"subBatchSize,omitempty"`
	Workers           int        `json:"workers,omitempty"`
	Patience          int        `json:"patience,omitempty"`

	// Mayfly settings
	PopSize int `json:"popSize,omitempty"`
}

// Run is the persisted record of one optimization run.
type Run struct {
	ID     string    `json:"id"`
	Parent string    `json:"parent,omitempty"` // Run whose final parameters seeded this one
	Config RunConfig `json:"config"`

	InitialParams []float64 `json:"initialParams"`
	Params        []float64 `json:"params"`
	InitialValue  float64   `json:"initialValue"`
	Value         float64   `json:"value"`
	Iterations    int       `json:"iterations"`
	Evaluations   int       `json:"evaluations"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunInfo contains metadata about a run without the parameter vectors.
type RunInfo struct {
	ID         string    `json:"id"`
	Function   string    `json:"function"`
	Method     string    `json:"method"`
	Dim        int       `json:"dim"`
	Value      float64   `json:"value"`
	Iterations int       `json:"iterations"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
}

// NewRun creates a run record with a fresh ID, starting now from initial.
func NewRun(config RunConfig, initial []float64) *Run {
	return &Run{
		ID:            uuid.New().String(),
		Config:        config,
		InitialParams: append([]float64(nil), initial...),
		Status:        opt.Running.String(),
		StartedAt:     time.Now(),
	}
}

// Finish records the outcome of the optimizer.
func (r *Run) Finish(params []float64, value float64, iterations, evaluations int, status string, err error) {
	r.Params = append([]float64(nil), params...)
	r.Value = value
	r.Iterations = iterations
	r.Evaluations = evaluations
	r.Status = status
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = time.Now()
}

// ToInfo converts a full Run to RunInfo (metadata only).
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		ID:         r.ID,
		Function:   r.Config.Function,
		Method:     r.Config.Method,
		Dim:        r.Config.Dim,
		Value:      r.Value,
		Iterations: r.Iterations,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
	}
}

// Validate checks if the run has valid data.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Config.Function == "" {
		return &ValidationError{Field: "Config.Function", Reason: "cannot be empty"}
	}
	if r.Config.Dim <= 0 {
		return &ValidationError{Field: "Config.Dim", Reason: "must be positive"}
	}
	switch r.Config.Method {
	case MethodSPSA:
		if err := r.Config.SPSA.Validate(); err != nil {
			return &ValidationError{Field: "Config.SPSA", Reason: err.Error()}
		}
	case MethodMayfly:
		if r.Config.PopSize <= 0 {
			return &ValidationError{Field: "Config.PopSize", Reason: "must be positive"}
		}
	default:
		return &ValidationError{Field: "Config.Method", Reason: fmt.Sprintf("unknown method %q", r.Config.Method)}
	}
	if len(r.InitialParams) == 0 {
		return &ValidationError{Field: "InitialParams", Reason: "cannot be empty"}
	}
	if r.Params != nil && len(r.Params) != len(r.InitialParams) {
		return &ValidationError{
			Field:  "Params",
			Reason: fmt.Sprintf("length mismatch: expected %d, got %d", len(r.InitialParams), len(r.Params)),
		}
	}
	if math.IsNaN(r.Value) || math.IsNaN(r.InitialValue) {
		return &ValidationError{Field: "Value", Reason: "cannot be NaN"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.Status == "" {
		return &ValidationError{Field: "Status", Reason: "cannot be empty"}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{Field: "StartedAt", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this run's final parameters can seed a run
// with the given config.
func (r *Run) IsCompatible(config RunConfig) error {
	if r.Config.Function != config.Function {
		return &CompatibilityError{
			Field:    "Function",
			Expected: r.Config.Function,
			Actual:   config.Function,
		}
	}
	if r.Config.Dim != config.Dim {
		return &CompatibilityError{
			Field:    "Dim",
			Expected: fmt.Sprintf("%d", r.Config.Dim),
			Actual:   fmt.Sprintf("%d", config.Dim),
		}
	}
	if len(r.Params) == 0 {
		return &CompatibilityError{Field: "Params", Expected: "final parameters", Actual: "none"}
	}
	return nil
}

// CompatibilityError represents a run compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
