package stat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDescribe(t *testing.T) {
	s, err := Describe([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NoError(t, err)
	assert.Equal(t, 8, s.N)
	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.138, s.StdDev, 1e-3)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 4.5, s.Median, 1e-9)

	_, err = Describe(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestWelchT_IdenticalSamples(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	res, err := WelchT(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Statistic, 1e-12)
	assert.InDelta(t, 1.0, res.PValue, 1e-9)
}

func TestWelchT_KnownValue(t *testing.T) {
	// Reference values computed with scipy.stats.ttest_ind(equal_var=False).
	a := []float64{19.8, 20.4, 19.6, 17.8, 18.5, 18.9, 18.3, 18.9, 19.5, 22.0}
	b := []float64{28.2, 26.6, 20.1, 23.3, 25.2, 22.1, 17.7, 27.6, 20.6, 13.7, 23.2, 17.5, 20.6, 18.0, 23.9, 21.6, 24.3, 20.4, 24.0, 13.2}
	res, err := WelchT(a, b)
	require.NoError(t, err)
	assert.InDelta(t, -2.2192, res.Statistic, 1e-3)
	assert.InDelta(t, 0.0360, res.PValue, 1e-3)
}

func TestWelchT_TooSmall(t *testing.T) {
	_, err := WelchT([]float64{1}, []float64{2, 3})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMannWhitney_ClearSeparation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	b := []float64{101, 102, 103, 104, 105, 106, 107, 108}
	res, err := MannWhitney(a, b)
	require.NoError(t, err)
	// All of a ranks below all of b: U for a is 0.
	assert.InDelta(t, 0.0, res.Statistic, 1e-9)
	assert.Less(t, res.PValue, 0.01)
}

func TestMannWhitney_SameDistribution(t *testing.T) {
	a := []float64{5, 7, 9, 11, 13}
	res, err := MannWhitney(a, a)
	require.NoError(t, err)
	assert.Greater(t, res.PValue, 0.9)
}

func TestPearson_PerfectCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	res, err := Pearson(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Statistic, 1e-12)
	assert.InDelta(t, 0.0, res.PValue, 1e-9)

	for i := range y {
		y[i] = -y[i]
	}
	res, err = Pearson(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, res.Statistic, 1e-12)
}

func TestPearson_Constant(t *testing.T) {
	_, err := Pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.Error(t, err)
}

func TestSpearman_MonotoneNonlinear(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{1, 8, 27, 64, 125, 216} // x^3: nonlinear but monotone
	res, err := Spearman(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Statistic, 1e-12)
}

func TestJarqueBera(t *testing.T) {
	// Roughly symmetric, mesokurtic sample: should not reject.
	normalish := []float64{-1.2, -0.8, -0.5, -0.3, -0.1, 0, 0.1, 0.3, 0.5, 0.8, 1.2, -0.6, 0.6, -0.2, 0.2, 0.4}
	res, err := JarqueBera(normalish)
	require.NoError(t, err)
	assert.Greater(t, res.PValue, 0.05)

	// Heavily skewed sample: should reject.
	skewed := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 100}
	res, err = JarqueBera(skewed)
	require.NoError(t, err)
	assert.Less(t, res.PValue, 0.01)
}

func TestStudentTSurvival_Center(t *testing.T) {
	// At t=0 the survival function is exactly 0.5 for any df.
	assert.InDelta(t, 0.5, studentTSurvival(0, 5), 1e-12)
	assert.InDelta(t, 0.5, studentTSurvival(0, 30), 1e-12)
	// Large df approaches the normal distribution.
	assert.InDelta(t, normalSurvival(1.96), studentTSurvival(1.96, 1e6), 1e-4)
}

func TestProperty_PearsonBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(3, 50).Draw(t, "n")
		x := make([]float64, n)
		y := make([]float64, n)
		for i := range x {
			x[i] = rapid.Float64Range(-1e3, 1e3).Draw(t, "x")
			y[i] = rapid.Float64Range(-1e3, 1e3).Draw(t, "y")
		}
		res, err := Pearson(x, y)
		if err != nil {
			// Constant draws are legitimately rejected.
			return
		}
		if math.Abs(res.Statistic) > 1+1e-9 {
			t.Fatalf("correlation out of bounds: %v", res.Statistic)
		}
		if res.PValue < 0 || res.PValue > 1 {
			t.Fatalf("p-value out of bounds: %v", res.PValue)
		}
	})
}
