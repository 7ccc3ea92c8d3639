package problems

import (
	"fmt"
	"math"
	"math/rand"
)

// SGDTest is a decomposable three-term objective
//
//	f(x) = -exp(-|x0|) + x1^2 + (x2^4 + 3 x2^2)
//
// with minimum -1 at the origin. Each term is one "function" of the batch
// interface and the visiting order can be shuffled.
type SGDTest struct {
	order []int
}

// NewSGDTest creates the objective with the identity visiting order.
func NewSGDTest() *SGDTest {
	return &SGDTest{order: []int{0, 1, 2}}
}

func (s *SGDTest) NumFunctions() int {
	return 3
}

func (s *SGDTest) Evaluate(x []float64) (float64, error) {
	return s.EvaluateBatch(x, 0, 3)
}

func (s *SGDTest) EvaluateBatch(x []float64, begin, batchSize int) (float64, error) {
	if err := checkDim(x, 3); err != nil {
		return 0, err
	}
	if begin < 0 || batchSize < 0 || begin+batchSize > 3 {
		return 0, fmt.Errorf("problems: batch [%d, %d) out of range", begin, begin+batchSize)
	}
	var sum float64
	for i := begin; i < begin+batchSize; i++ {
		switch s.order[i] {
		case 0:
			sum -= math.Exp(-math.Abs(x[0]))
		case 1:
			sum += x[1] * x[1]
		case 2:
			sum += math.Pow(x[2], 4) + 3*x[2]*x[2]
		}
	}
	return sum, nil
}

// Shuffle permutes the visiting order of the terms.
func (s *SGDTest) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}

func (s *SGDTest) InitialPoint() []float64 {
	return []float64{6, -45.6, 6.2}
}
