package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	domsvc "AdaptiveEnsemble/internal/domain/service"
)

// ridgeScale keeps the normal equations positive definite when columns are collinear
// or constant. It is relative to the mean diagonal of the centered Gram matrix.
const ridgeScale = 1e-6

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func (m *LinearRegression) Name() string { return Linear }

func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	d, err := checkFit(X, y)
	if err != nil {
		return err
	}
	n := float64(len(X))
	xMean := make([]float64, d)
	for _, row := range X {
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= n
	}
	yMean := stat.Mean(y, nil)

	gram := make([]float64, d*d)
	rhs := make([]float64, d)
	xc := make([]float64, d)
	for i, row := range X {
		for j, v := range row {
			xc[j] = v - xMean[j]
		}
		yc := y[i] - yMean
		for j := 0; j < d; j++ {
			rhs[j] += xc[j] * yc
			for k := j; k < d; k++ {
				gram[j*d+k] += xc[j] * xc[k]
			}
		}
	}
	trace := 0.0
	for j := 0; j < d; j++ {
		trace += gram[j*d+j]
		for k := 0; k < j; k++ {
			gram[j*d+k] = gram[k*d+j]
		}
	}
	ridge := ridgeScale * (trace/float64(d) + 1)
	for j := 0; j < d; j++ {
		gram[j*d+j] += ridge
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(d, gram)); !ok {
		return fmt.Errorf("linear fit: normal equations not positive definite")
	}
	coef := mat.NewVecDense(d, nil)
	if err := chol.SolveVecTo(coef, mat.NewVecDense(d, rhs)); err != nil {
		return fmt.Errorf("linear fit: %w", err)
	}

	m.Coef = make([]float64, d)
	m.Intercept = yMean
	for j := 0; j < d; j++ {
		m.Coef[j] = coef.AtVec(j)
		m.Intercept -= m.Coef[j] * xMean[j]
	}
	return nil
}

func (m *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		v := m.Intercept
		for j, x := range row {
			v += m.Coef[j] * x
		}
		out[i] = v
	}
	return out, nil
}

var _ domsvc.Regressor = (*LinearRegression)(nil)
