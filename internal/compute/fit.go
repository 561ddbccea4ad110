package compute

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// PowerFit is a least-squares fit of y = A·x^B on the log-log scale.
type PowerFit struct {
	A        float64 `json:"a"`
	B        float64 `json:"b"`
	RSquared float64 `json:"r_squared"`
	N        int     `json:"n"`
}

// Predict evaluates the fitted curve at x.
func (f PowerFit) Predict(x float64) float64 {
	return f.A * math.Pow(x, f.B)
}

// FitPower fits y = A·x^B to the positive pairs of xs and ys. It reports
// false when fewer than two usable pairs remain.
func FitPower(xs, ys []float64) (PowerFit, bool) {
	n := min(len(xs), len(ys))
	lx := make([]float64, 0, n)
	ly := make([]float64, 0, n)
	for i := range n {
		if xs[i] > 0 && ys[i] > 0 {
			lx = append(lx, math.Log(xs[i]))
			ly = append(ly, math.Log(ys[i]))
		}
	}
	if len(lx) < 2 {
		return PowerFit{}, false
	}

	alpha, beta := stat.LinearRegression(lx, ly, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return PowerFit{}, false
	}

	return PowerFit{
		A:        math.Exp(alpha),
		B:        beta,
		RSquared: stat.RSquared(lx, ly, nil, alpha, beta),
		N:        len(lx),
	}, true
}
