package problems

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is the mean negative log-likelihood of a binary
// logistic model plus an L2 penalty on the weights. The parameter vector is
// [intercept, w_1, ..., w_d]. Each sample is one term of the batch interface.
type LogisticRegression struct {
	data   [][]float64
	labels []int
	lambda float64
	order  []int
}

// NewLogisticRegression creates the objective over samples with labels in {0, 1}.
func NewLogisticRegression(data [][]float64, labels []int, lambda float64) (*LogisticRegression, error) {
	if len(data) == 0 {
		return nil, errors.New("problems: logistic regression needs at least one sample")
	}
	if len(data) != len(labels) {
		return nil, fmt.Errorf("problems: %d samples but %d labels", len(data), len(labels))
	}
	dim := len(data[0])
	for i, row := range data {
		if len(row) != dim {
			return nil, fmt.Errorf("problems: sample %d has %d features, want %d", i, len(row), dim)
		}
		if labels[i] != 0 && labels[i] != 1 {
			return nil, fmt.Errorf("problems: label %d of sample %d is not 0 or 1", labels[i], i)
		}
	}
	if lambda < 0 {
		return nil, fmt.Errorf("problems: negative regularization %v", lambda)
	}

	order := make([]int, len(data))
	for i := range order {
		order[i] = i
	}
	return &LogisticRegression{data: data, labels: labels, lambda: lambda, order: order}, nil
}

func (lr *LogisticRegression) NumFunctions() int {
	return len(lr.data)
}

func (lr *LogisticRegression) Evaluate(x []float64) (float64, error) {
	return lr.EvaluateBatch(x, 0, len(lr.data))
}

// EvaluateBatch sums the terms in [begin, begin+batchSize). The penalty is
// split across terms so the batches of one pass add up to Evaluate.
func (lr *LogisticRegression) EvaluateBatch(x []float64, begin, batchSize int) (float64, error) {
	if err := checkDim(x, len(lr.data[0])+1); err != nil {
		return 0, err
	}
	if begin < 0 || batchSize < 0 || begin+batchSize > len(lr.data) {
		return 0, fmt.Errorf("problems: batch [%d, %d) out of range", begin, begin+batchSize)
	}

	n := float64(len(lr.data))
	w := x[1:]
	var sum float64
	for i := begin; i < begin+batchSize; i++ {
		idx := lr.order[i]
		z := x[0] + floats.Dot(w, lr.data[idx])
		if lr.labels[idx] == 1 {
			sum += softplus(-z)
		} else {
			sum += softplus(z)
		}
	}
	penalty := 0.5 * lr.lambda * floats.Dot(w, w)
	return sum/n + penalty*float64(batchSize)/n, nil
}

// Shuffle permutes the visiting order of the samples.
func (lr *LogisticRegression) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(lr.order), func(i, j int) {
		lr.order[i], lr.order[j] = lr.order[j], lr.order[i]
	})
}

// InitialPoint returns the zero model.
func (lr *LogisticRegression) InitialPoint() []float64 {
	return make([]float64, len(lr.data[0])+1)
}

// Predict returns the predicted label of one sample.
func (lr *LogisticRegression) Predict(x []float64, sample []float64) int {
	if x[0]+floats.Dot(x[1:], sample) >= 0 {
		return 1
	}
	return 0
}

// Accuracy returns the percentage of samples whose label is predicted correctly.
func (lr *LogisticRegression) Accuracy(data [][]float64, labels []int, x []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	correct := 0
	for i, sample := range data {
		if lr.Predict(x, sample) == labels[i] {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(data))
}

// softplus computes log(1 + exp(z)) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

// GaussianClasses draws n samples from two spherical Gaussian clusters
// centred at -1.5 and +1.5 in every coordinate, alternating labels 0 and 1.
func GaussianClasses(n, dim int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, n)
	labels := make([]int, n)
	for i := range data {
		labels[i] = i % 2
		center := -1.5
		if labels[i] == 1 {
			center = 1.5
		}
		row := make([]float64, dim)
		for j := range row {
			row[j] = center + 0.5*rng.NormFloat64()
		}
		data[i] = row
	}
	return data, labels
}
