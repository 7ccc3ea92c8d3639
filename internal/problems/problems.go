// Package problems provides objective functions with known minimizers for
// exercising the optimizers.
package problems

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimension is returned when a parameter vector has the wrong length.
var ErrDimension = errors.New("problems: parameter dimension mismatch")

func checkDim(x []float64, n int) error {
	if len(x) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), n)
	}
	return nil
}

// Sphere is f(x) = sum(x_i^2), minimum 0 at the origin.
type Sphere struct {
	N int
}

// NewSphere creates an n-dimensional sphere function.
func NewSphere(n int) *Sphere {
	return &Sphere{N: n}
}

func (s *Sphere) Evaluate(x []float64) (float64, error) {
	if err := checkDim(x, s.N); err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// InitialPoint returns the all-ones vector.
func (s *Sphere) InitialPoint() []float64 {
	x := make([]float64, s.N)
	for i := range x {
		x[i] = 1
	}
	return x
}

// Matyas is f(x, y) = 0.26(x^2 + y^2) - 0.48xy, minimum 0 at the origin.
type Matyas struct{}

func (Matyas) Evaluate(x []float64) (float64, error) {
	if err := checkDim(x, 2); err != nil {
		return 0, err
	}
	return 0.26*(x[0]*x[0]+x[1]*x[1]) - 0.48*x[0]*x[1], nil
}

func (Matyas) InitialPoint() []float64 {
	return []float64{-10, 10}
}

// Rosenbrock is the n-dimensional Rosenbrock valley, minimum 0 at (1, ..., 1).
type Rosenbrock struct {
	N int
}

func (r *Rosenbrock) Evaluate(x []float64) (float64, error) {
	if err := checkDim(x, r.N); err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum, nil
}

func (r *Rosenbrock) InitialPoint() []float64 {
	x := make([]float64, r.N)
	for i := range x {
		if i%2 == 0 {
			x[i] = -1.2
		} else {
			x[i] = 1
		}
	}
	return x
}

// Function is an objective with a conventional starting point.
type Function interface {
	Evaluate(x []float64) (float64, error)
	InitialPoint() []float64
}

// Problem is a named benchmark objective.
type Problem struct {
	Name     string
	Function Function
	Minimum  float64   // Known optimal value
	Argmin   []float64 // Known minimizer, nil when data-dependent
	Lower    []float64 // Search box for population-based optimizers
	Upper    []float64
}

// Dim returns the problem's dimensionality.
func (p *Problem) Dim() int {
	return len(p.Function.InitialPoint())
}

func box(n int, lo, hi float64) ([]float64, []float64) {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range lower {
		lower[i] = lo
		upper[i] = hi
	}
	return lower, upper
}

// Names lists the problems known to Lookup.
func Names() []string {
	names := []string{"sphere", "matyas", "rosenbrock", "sgd", "logistic"}
	sort.Strings(names)
	return names
}

// Lookup builds the named problem. dim is ignored by fixed-size problems.
func Lookup(name string, dim int) (*Problem, error) {
	if dim < 1 {
		return nil, fmt.Errorf("problems: dimension must be positive, got %d", dim)
	}
	switch name {
	case "sphere":
		lower, upper := box(dim, -10, 10)
		return &Problem{Name: name, Function: NewSphere(dim), Minimum: 0, Argmin: make([]float64, dim), Lower: lower, Upper: upper}, nil
	case "matyas":
		lower, upper := box(2, -10, 10)
		return &Problem{Name: name, Function: Matyas{}, Minimum: 0, Argmin: make([]float64, 2), Lower: lower, Upper: upper}, nil
	case "rosenbrock":
		if dim < 2 {
			return nil, fmt.Errorf("problems: rosenbrock needs at least 2 dimensions, got %d", dim)
		}
		argmin := make([]float64, dim)
		for i := range argmin {
			argmin[i] = 1
		}
		lower, upper := box(dim, -5, 5)
		return &Problem{Name: name, Function: &Rosenbrock{N: dim}, Minimum: 0, Argmin: argmin, Lower: lower, Upper: upper}, nil
	case "sgd":
		lower, upper := box(3, -10, 10)
		return &Problem{Name: name, Function: NewSGDTest(), Minimum: -1, Argmin: make([]float64, 3), Lower: lower, Upper: upper}, nil
	case "logistic":
		data, labels := GaussianClasses(200, dim, 1)
		lr, err := NewLogisticRegression(data, labels, 0.01)
		if err != nil {
			return nil, err
		}
		lower, upper := box(dim+1, -10, 10)
		return &Problem{Name: name, Function: lr, Minimum: math.NaN(), Lower: lower, Upper: upper}, nil
	default:
		return nil, fmt.Errorf("problems: unknown function %q (known: %v)", name, Names())
	}
}
