// Package stat implements the numerical routines behind the statistical
// skills: descriptive moments, Welch's t-test, Mann-Whitney U,
// Pearson/Spearman correlation, and the Jarque-Bera normality test.
//
// The implementations favor clarity over generality; inputs are plain
// float64 slices extracted from dataset columns.
package stat

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientData is returned when a sample is too small for the
// requested statistic.
var ErrInsufficientData = errors.New("insufficient data")

// Mean returns the arithmetic mean.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the unbiased sample variance.
func Variance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// StdDev returns the sample standard deviation.
func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// Describe summarizes a sample.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// Describe computes summary statistics for a sample.
func Describe(xs []float64) (Summary, error) {
	if len(xs) == 0 {
		return Summary{}, ErrInsufficientData
	}
	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)
	return Summary{
		N:      len(xs),
		Mean:   Mean(xs),
		StdDev: StdDev(xs),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: quantile(sorted, 0.5),
		Q1:     quantile(sorted, 0.25),
		Q3:     quantile(sorted, 0.75),
	}, nil
}

// quantile uses linear interpolation on a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// TestResult is the outcome of a hypothesis test.
type TestResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	DF        float64 `json:"df,omitempty"`
	Method    string  `json:"method"`
}

// WelchT performs Welch's two-sample t-test (unequal variances).
func WelchT(a, b []float64) (TestResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return TestResult{}, fmt.Errorf("%w: need at least 2 observations per group", ErrInsufficientData)
	}
	ma, mb := Mean(a), Mean(b)
	va, vb := Variance(a), Variance(b)
	na, nb := float64(len(a)), float64(len(b))

	se2 := va/na + vb/nb
	if se2 == 0 {
		// Identical constant samples; no evidence of difference.
		return TestResult{Statistic: 0, PValue: 1, DF: na + nb - 2, Method: "welch_t"}, nil
	}
	t := (ma - mb) / math.Sqrt(se2)
	df := se2 * se2 / (va*va/(na*na*(na-1)) + vb*vb/(nb*nb*(nb-1)))
	p := 2 * studentTSurvival(math.Abs(t), df)
	return TestResult{Statistic: t, PValue: p, DF: df, Method: "welch_t"}, nil
}

// MannWhitney performs the Mann-Whitney U test using the normal
// approximation with tie correction.
func MannWhitney(a, b []float64) (TestResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return TestResult{}, fmt.Errorf("%w: need at least 2 observations per group", ErrInsufficientData)
	}
	na, nb := float64(len(a)), float64(len(b))
	ranks, tieCorrection := rankAll(a, b)

	ra := 0.0
	for i := range a {
		ra += ranks[i]
	}
	u := ra - na*(na+1)/2

	mu := na * nb / 2
	n := na + nb
	sigma2 := na * nb / 12 * ((n + 1) - tieCorrection/(n*(n-1)))
	if sigma2 <= 0 {
		return TestResult{Statistic: u, PValue: 1, Method: "mann_whitney_u"}, nil
	}
	// Continuity correction.
	z := (u - mu) / math.Sqrt(sigma2)
	if u > mu {
		z = (u - mu - 0.5) / math.Sqrt(sigma2)
	} else if u < mu {
		z = (u - mu + 0.5) / math.Sqrt(sigma2)
	}
	p := 2 * normalSurvival(math.Abs(z))
	if p > 1 {
		p = 1
	}
	return TestResult{Statistic: u, PValue: p, Method: "mann_whitney_u"}, nil
}

// rankAll assigns mid-ranks to the pooled sample and returns the ranks
// (in input order, a then b) and the tie correction term sum(t^3 - t).
func rankAll(a, b []float64) ([]float64, float64) {
	n := len(a) + len(b)
	type indexed struct {
		value float64
		pos   int
	}
	pooled := make([]indexed, 0, n)
	for i, v := range a {
		pooled = append(pooled, indexed{v, i})
	}
	for i, v := range b {
		pooled = append(pooled, indexed{v, len(a) + i})
	}
	sort.Slice(pooled, func(i, j int) bool { return pooled[i].value < pooled[j].value })

	ranks := make([]float64, n)
	tieCorrection := 0.0
	i := 0
	for i < n {
		j := i
		for j < n && pooled[j].value == pooled[i].value {
			j++
		}
		// Mid-rank for the tie group [i, j).
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[pooled[k].pos] = mid
		}
		t := float64(j - i)
		if t > 1 {
			tieCorrection += t*t*t - t
		}
		i = j
	}
	return ranks, tieCorrection
}

// Pearson returns the Pearson correlation coefficient and its p-value
// (t-distribution, n-2 df).
func Pearson(x, y []float64) (TestResult, error) {
	if len(x) != len(y) {
		return TestResult{}, fmt.Errorf("sample length mismatch: %d vs %d", len(x), len(y))
	}
	if len(x) < 3 {
		return TestResult{}, fmt.Errorf("%w: need at least 3 paired observations", ErrInsufficientData)
	}
	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return TestResult{}, errors.New("constant sample has no defined correlation")
	}
	r := sxy / math.Sqrt(sxx*syy)
	df := float64(len(x) - 2)
	p := 1.0
	if math.Abs(r) < 1 {
		t := r * math.Sqrt(df/(1-r*r))
		p = 2 * studentTSurvival(math.Abs(t), df)
	} else {
		p = 0
	}
	return TestResult{Statistic: r, PValue: p, DF: df, Method: "pearson"}, nil
}

// Spearman returns the Spearman rank correlation and its p-value.
func Spearman(x, y []float64) (TestResult, error) {
	if len(x) != len(y) {
		return TestResult{}, fmt.Errorf("sample length mismatch: %d vs %d", len(x), len(y))
	}
	rx := ranksOf(x)
	ry := ranksOf(y)
	res, err := Pearson(rx, ry)
	if err != nil {
		return TestResult{}, err
	}
	res.Method = "spearman"
	return res, nil
}

func ranksOf(xs []float64) []float64 {
	ranks, _ := rankAll(xs, nil)
	return ranks
}

// JarqueBera tests a sample for normality via skewness and kurtosis.
// The statistic is chi-squared with 2 df, whose survival function is
// exactly exp(-x/2).
func JarqueBera(xs []float64) (TestResult, error) {
	n := float64(len(xs))
	if n < 8 {
		return TestResult{}, fmt.Errorf("%w: normality test needs at least 8 observations", ErrInsufficientData)
	}
	m := Mean(xs)
	var m2, m3, m4 float64
	for _, x := range xs {
		d := x - m
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	if m2 == 0 {
		return TestResult{}, errors.New("constant sample has no defined normality statistic")
	}
	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4 / (m2 * m2)
	jb := n / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	return TestResult{Statistic: jb, PValue: math.Exp(-jb / 2), DF: 2, Method: "jarque_bera"}, nil
}

// normalSurvival is P(Z > z) for the standard normal distribution.
func normalSurvival(z float64) float64 {
	return 0.5 * math.Erfc(z/math.Sqrt2)
}

// studentTSurvival is P(T > t) for Student's t with df degrees of
// freedom, via the regularized incomplete beta function.
func studentTSurvival(t, df float64) float64 {
	if math.IsNaN(t) || df <= 0 {
		return math.NaN()
	}
	x := df / (df + t*t)
	return 0.5 * regIncBeta(df/2, 0.5, x)
}

// regIncBeta computes the regularized incomplete beta function I_x(a,b)
// using the continued fraction expansion (Lentz's method).
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lnFront := lgamma(a+b) - lgamma(a) - lgamma(b) + a*math.Log(x) + b*math.Log(1-x)
	front := math.Exp(lnFront)
	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1 - front*betaCF(b, a, 1-x)/b
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// betaCF evaluates the continued fraction for the incomplete beta
// function (Numerical Recipes form).
func betaCF(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 3e-14
		fpMin         = 1e-300
	)
	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < fpMin {
		d = fpMin
	}
	d = 1 / d
	h := d
	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = 1 / d
		h *= d * c
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}
