package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
)

// sample is the scratch space of one perturbation sample. All buffers are
// reused across iterations.
type sample struct {
	delta []float64 // ±1 perturbation
	plus  []float64 // θ + cΔ
	minus []float64 // θ - cΔ
	grad  []float64 // gradient estimate

	begin int     // first term of the data window
	size  int     // window length, 0 for full evaluation
	scale float64 // numFunctions / size
	err   error
}

// run is the state of a single Minimize call.
type run struct {
	obj     Objective
	batch   BatchObjective
	shuffle Shuffler
	rng     *rand.Rand
	workers int

	theta   []float64 // caller's parameters, only written after a finite update
	next    []float64
	grad    []float64
	samples []sample

	numFunctions int
	window       int
	cursor       int
	wrapped      bool

	evaluations int
}

func (s *SPSA) newRun(obj Objective, params []float64) (*run, error) {
	if obj == nil {
		return nil, &ConfigurationError{Field: "objective", Reason: "cannot be nil"}
	}
	n := len(params)
	if n == 0 {
		return nil, &ConfigurationError{Field: "parameters", Reason: "must have at least one dimension"}
	}
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ConfigurationError{Field: "parameters", Reason: fmt.Sprintf("component %d is not finite", i)}
		}
	}

	r := &run{
		obj:     obj,
		rng:     s.rng,
		workers: s.workers,
		theta:   params,
		next:    make([]float64, n),
		grad:    make([]float64, n),
		samples: make([]sample, s.cfg.BatchSize),
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(s.seed))
	}

	if batch, ok := obj.(BatchObjective); ok {
		r.numFunctions = batch.NumFunctions()
		if r.numFunctions < 1 {
			return nil, &ConfigurationError{Field: "objective", Reason: "NumFunctions must be positive"}
		}
		r.batch = batch
		r.window = s.subBatch
		if r.window == 0 || r.window > r.numFunctions {
			r.window = r.numFunctions
		}
		r.shuffle, _ = obj.(Shuffler)
	}

	for i := range r.samples {
		r.samples[i] = sample{
			delta: make([]float64, n),
			plus:  make([]float64, n),
			minus: make([]float64, n),
			grad:  make([]float64, n),
		}
	}
	return r, nil
}

// iterate performs iteration k and returns the full objective value at the
// updated parameters.
func (r *run) iterate(k int, ak, ck float64) (float64, error) {
	if r.wrapped {
		r.wrapped = false
		if r.shuffle != nil {
			r.shuffle.Shuffle(r.rng)
		}
	}

	// Every random draw of the iteration happens here, in sample order, so
	// the outcome does not depend on how the samples are scheduled.
	for i := range r.samples {
		smp := &r.samples[i]
		Perturb(r.rng, smp.delta)
		smp.begin, smp.size, smp.scale = r.nextWindow()
		smp.err = nil
	}

	if r.workers > 1 && len(r.samples) > 1 {
		p := pool.New().WithMaxGoroutines(r.workers)
		for i := range r.samples {
			smp := &r.samples[i]
			p.Go(func() {
				smp.err = r.estimate(k, ck, smp)
			})
		}
		p.Wait()
	} else {
		for i := range r.samples {
			r.samples[i].err = r.estimate(k, ck, &r.samples[i])
			if r.samples[i].err != nil {
				break
			}
		}
	}

	for i := range r.grad {
		r.grad[i] = 0
	}
	for i := range r.samples {
		if err := r.samples[i].err; err != nil {
			return 0, err
		}
		r.evaluations += 2
		floats.Add(r.grad, r.samples[i].grad)
	}
	floats.Scale(1/float64(len(r.samples)), r.grad)

	floats.AddScaledTo(r.next, r.theta, -ak, r.grad)
	value, err := r.obj.Evaluate(r.next)
	r.evaluations++
	if err := checkValue(value, err, k, StageUpdated); err != nil {
		return 0, err
	}

	copy(r.theta, r.next)
	return value, nil
}

// estimate forms the two-sided gradient estimate of one sample.
func (r *run) estimate(k int, ck float64, smp *sample) error {
	floats.AddScaledTo(smp.plus, r.theta, ck, smp.delta)
	floats.AddScaledTo(smp.minus, r.theta, -ck, smp.delta)

	fPlus, err := r.evaluate(smp.plus, smp)
	if err := checkValue(fPlus, err, k, StagePlus); err != nil {
		return err
	}
	fMinus, err := r.evaluate(smp.minus, smp)
	if err := checkValue(fMinus, err, k, StageMinus); err != nil {
		return err
	}

	diff := smp.scale * (fPlus - fMinus) / (2 * ck)
	for i, d := range smp.delta {
		smp.grad[i] = diff / d
	}
	return nil
}

func (r *run) evaluate(x []float64, smp *sample) (float64, error) {
	if r.batch == nil || smp.size == 0 {
		return r.obj.Evaluate(x)
	}
	return r.batch.EvaluateBatch(x, smp.begin, smp.size)
}

// nextWindow hands out data windows by cycling through the terms of a
// decomposable objective. A sub-batch estimate is scaled to the full sum.
// Reaching the end of the data schedules a reshuffle for the next iteration
// unless every window already covers the whole dataset.
func (r *run) nextWindow() (begin, size int, scale float64) {
	if r.batch == nil {
		return 0, 0, 1
	}
	begin = r.cursor
	size = min(r.window, r.numFunctions-begin)
	r.cursor += size
	if r.cursor >= r.numFunctions {
		r.cursor = 0
		r.wrapped = r.window < r.numFunctions
	}
	return begin, size, float64(r.numFunctions) / float64(size)
}
