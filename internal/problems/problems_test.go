package problems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSphere(t *testing.T) {
	s := NewSphere(2)

	v, err := s.Evaluate([]float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	v, err = s.Evaluate([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = s.Evaluate([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimension)

	assert.Equal(t, []float64{1, 1}, s.InitialPoint())
}

func TestMatyas(t *testing.T) {
	v, err := Matyas{}.Evaluate([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = Matyas{}.Evaluate([]float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.04, v, 1e-12)
}

func TestRosenbrock(t *testing.T) {
	r := &Rosenbrock{N: 3}

	v, err := r.Evaluate([]float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = r.Evaluate([]float64{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	assert.Equal(t, []float64{-1.2, 1, -1.2}, r.InitialPoint())
}

func TestSGDTest_BatchesSumToFull(t *testing.T) {
	f := NewSGDTest()
	x := []float64{0.5, -2, 1.5}

	full, err := f.Evaluate(x)
	require.NoError(t, err)

	var sum float64
	for i := 0; i < f.NumFunctions(); i++ {
		v, err := f.EvaluateBatch(x, i, 1)
		require.NoError(t, err)
		sum += v
	}
	assert.InDelta(t, full, sum, 1e-12)

	f.Shuffle(rand.New(rand.NewSource(7)))
	shuffled, err := f.Evaluate(x)
	require.NoError(t, err)
	assert.InDelta(t, full, shuffled, 1e-12)

	_, err = f.EvaluateBatch(x, 2, 2)
	assert.Error(t, err)
}

func TestSGDTest_Minimum(t *testing.T) {
	v, err := NewSGDTest().Evaluate([]float64{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)
}

func TestLogisticRegression_BatchesSumToFull(t *testing.T) {
	data, labels := GaussianClasses(20, 2, 3)
	lr, err := NewLogisticRegression(data, labels, 0.5)
	require.NoError(t, err)

	x := []float64{0.1, 0.7, -0.3}
	full, err := lr.Evaluate(x)
	require.NoError(t, err)

	var sum float64
	for begin := 0; begin < lr.NumFunctions(); begin += 6 {
		size := min(6, lr.NumFunctions()-begin)
		v, err := lr.EvaluateBatch(x, begin, size)
		require.NoError(t, err)
		sum += v
	}
	assert.InDelta(t, full, sum, 1e-12)
}

func TestLogisticRegression_ZeroModel(t *testing.T) {
	data, labels := GaussianClasses(10, 3, 1)
	lr, err := NewLogisticRegression(data, labels, 0.5)
	require.NoError(t, err)

	v, err := lr.Evaluate(lr.InitialPoint())
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, v, 1e-12)
}

func TestLogisticRegression_Accuracy(t *testing.T) {
	data, labels := GaussianClasses(100, 2, 5)
	lr, err := NewLogisticRegression(data, labels, 0)
	require.NoError(t, err)

	// The clusters are centred on the diagonal, so w = (1, 1) separates them.
	assert.GreaterOrEqual(t, lr.Accuracy(data, labels, []float64{0, 1, 1}), 97.0)
	assert.LessOrEqual(t, lr.Accuracy(data, labels, []float64{0, -1, -1}), 3.0)
}

func TestLogisticRegression_SaturatedLossIsFinite(t *testing.T) {
	data, labels := GaussianClasses(10, 2, 1)
	lr, err := NewLogisticRegression(data, labels, 0)
	require.NoError(t, err)

	v, err := lr.Evaluate([]float64{0, -1e6, -1e6})
	require.NoError(t, err)
	assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
}

func TestNewLogisticRegression_Invalid(t *testing.T) {
	_, err := NewLogisticRegression(nil, nil, 0)
	assert.Error(t, err)

	_, err = NewLogisticRegression([][]float64{{1}, {2}}, []int{0}, 0)
	assert.Error(t, err)

	_, err = NewLogisticRegression([][]float64{{1}}, []int{2}, 0)
	assert.Error(t, err)

	_, err = NewLogisticRegression([][]float64{{1}, {1, 2}}, []int{0, 1}, 0)
	assert.Error(t, err)
}

func TestGaussianClasses_Deterministic(t *testing.T) {
	d1, l1 := GaussianClasses(8, 2, 11)
	d2, l2 := GaussianClasses(8, 2, 11)
	assert.Equal(t, d1, d2)
	assert.Equal(t, l1, l2)
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		p, err := Lookup(name, 2)
		require.NoError(t, err, name)

		x := p.Function.InitialPoint()
		assert.Equal(t, p.Dim(), len(x), name)
		assert.Len(t, p.Lower, p.Dim(), name)
		assert.Len(t, p.Upper, p.Dim(), name)

		_, err = p.Function.Evaluate(x)
		assert.NoError(t, err, name)
	}

	_, err := Lookup("himmelblau", 2)
	assert.Error(t, err)

	_, err = Lookup("sphere", 0)
	assert.Error(t, err)

	_, err = Lookup("rosenbrock", 1)
	assert.Error(t, err)
}
