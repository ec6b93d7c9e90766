// Package linear implements Ordinary Least Squares over dataset frames.
package linear

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/metrics"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

const (
	// Name is the model kind recorded in packages.
	Name = "OLS"
	// Description is the default human readable description.
	Description = "Ordinary Least Squares"

	defaultParallelThreshold = 1000

	// eps is the float64 machine epsilon.
	eps = 0x1p-52
)

// OLS は最小二乗法による線形回帰モデル
//
// 係数は設計行列のSVDによる擬似逆行列で求めるため、ランク落ちした設計行列でも
// 最小ノルム解が得られる（RankWarningが発生する）。
//
// 使用例:
//
//	ols := linear.NewOLS(linear.WithIntercept(true))
//	if err := ols.Fit(X, y); err != nil {
//	    return err
//	}
//	summary, _ := ols.Summary()
type OLS struct {
	model.BaseEstimator

	intercept         bool
	rcond             float64
	parallelThreshold int
	logger            log.Logger

	mu    sync.RWMutex
	state *fitState
}

// fitState is everything produced by one successful Fit.
type fitState struct {
	intercept bool
	dv        string
	terms     []Term
	coef      *mat.VecDense
	normCov   *mat.Dense
	singular  []float64
	rank      int

	// training rows that entered the fit, with their observed, fitted and
	// residual values
	rows     []int
	observed []float64
	fitted   []float64
	resid    []float64

	results *Results
}

// NewOLS creates an unfitted OLS model. The intercept is on by default.
func NewOLS(opts ...Option) *OLS {
	m := &OLS{
		intercept:         true,
		parallelThreshold: defaultParallelThreshold,
	}
	m.Init(Name, Description)
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetLoggerWithName("linear.ols")
	}
	return m
}

// Intercept reports whether the model fits a constant term.
func (m *OLS) Intercept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intercept
}

// Fit estimates the coefficients of y on X. y must have exactly one column.
// Rows with a missing value in y or in any column of X are dropped.
//
// A failed Fit leaves the previous fitted state in place.
func (m *OLS) Fit(X, y *dataset.Frame) (err error) {
	defer errors.Recover(&err, "OLS.Fit")
	start := time.Now()

	if X == nil || y == nil {
		return errors.NewValueError("OLS.Fit", "X and y must not be nil")
	}
	if y.Width() != 1 {
		return errors.NewValidationError("dvs", "OLS takes exactly one dependent variable", y.Names())
	}
	if X.Len() != y.Len() {
		return errors.NewDimensionError("OLS.Fit", X.Len(), y.Len(), 0)
	}
	if X.Len() == 0 {
		return errors.NewModelError("OLS.Fit", "empty data", errors.ErrEmptyData)
	}
	yc := y.Columns()[0]
	if !yc.DType().Numeric() {
		return errors.NewValidationError(yc.Name(), "dependent variable is not numeric", yc.DType().String())
	}

	intercept := m.Intercept()
	terms, err := buildTerms(X, intercept)
	if err != nil {
		return err
	}
	design, err := designMatrix("OLS.Fit", X, terms, m.parallelThreshold)
	if err != nil {
		return err
	}

	rows := completeRows(design, yc)
	if len(rows) == 0 {
		return errors.NewModelError("OLS.Fit", "no complete rows", errors.ErrEmptyData)
	}
	if dropped := X.Len() - len(rows); dropped > 0 {
		m.logger.Info("dropped rows with missing values",
			log.ModelNameKey, Name,
			log.OperationKey, log.OperationFit,
			"rows.dropped", dropped,
		)
	}

	Xd := mat.NewDense(len(rows), len(terms), nil)
	obs := make([]float64, len(rows))
	for i, r := range rows {
		Xd.SetRow(i, design.RawRowView(r))
		obs[i] = yc.Float(r)
	}

	st, err := m.solve(Xd, obs)
	if err != nil {
		return err
	}
	st.intercept = intercept
	st.dv = yc.Name()
	st.terms = terms
	st.rows = rows
	st.results = computeResults(yc.Name(), intercept, st)
	st.results.DroppedRows = X.Len() - len(rows)

	names := make([]string, len(terms))
	for i, t := range terms {
		names[i] = t.Name
	}

	m.publish(st, func() { m.SetFitted(names, y.Names()) })

	m.logger.Info("fit completed",
		log.ModelNameKey, Name,
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(rows),
		log.FeaturesKey, len(terms),
		log.RankKey, st.rank,
		log.R2ScoreKey, float64(st.results.RSquared),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// completeRows returns the rows with no NaN in the design or in y.
func completeRows(design *mat.Dense, y *dataset.Column) []int {
	n, _ := design.Dims()
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if y.IsMissing(i) || math.IsNaN(y.Float(i)) {
			continue
		}
		ok := true
		for _, v := range design.RawRowView(i) {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

// solve computes the minimum-norm least squares solution through the thin SVD
// X = U Σ Vᵀ. pinv(X) = V Σ⁺ Uᵀ and pinv(X)·pinv(X)ᵀ = V Σ⁺² Vᵀ.
func (m *OLS) solve(X *mat.Dense, y []float64) (*fitState, error) {
	n, p := X.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, errors.NewModelError("OLS.Fit", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rcond := m.rcond
	if rcond <= 0 {
		rcond = float64(max(n, p)) * eps
	}
	cutoff := rcond * s[0]

	rank := 0
	inv := make([]float64, len(s))
	for i, sv := range s {
		if sv > cutoff {
			inv[i] = 1 / sv
			rank++
		}
	}
	if rank == 0 {
		return nil, errors.NewModelError("OLS.Fit", "design matrix is zero", errors.ErrSingularMatrix)
	}
	if rank < p {
		errors.Warn(errors.NewRankWarning(Name, rank, p))
	}

	// V Σ⁺
	var vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var uty mat.VecDense
	uty.MulVec(u.T(), yv)
	coef := mat.NewVecDense(p, nil)
	coef.MulVec(&vs, &uty)

	if err := errors.CheckNumericalStability("OLS.Fit", coef.RawVector().Data); err != nil {
		return nil, err
	}

	normCov := mat.NewDense(p, p, nil)
	normCov.Mul(&vs, vs.T())

	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(X, coef)
	resid := make([]float64, n)
	for i := range resid {
		resid[i] = y[i] - fitted.AtVec(i)
	}

	return &fitState{
		coef:     coef,
		normCov:  normCov,
		singular: s,
		rank:     rank,
		observed: yv.RawVector().Data,
		fitted:   fitted.RawVector().Data,
		resid:    resid,
	}, nil
}

// publish swaps in a new fitted state. mark updates the estimator names in
// the same critical section, so readers of the state never see the names of
// another fit.
func (m *OLS) publish(st *fitState, mark func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st
	m.intercept = st.intercept
	mark()
}

func (m *OLS) fitted(method string) (*fitState, error) {
	if err := m.RequireFitted(method); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

// Predict returns a one-column frame labelled with the dependent variable.
// Rows with a missing input are NaN.
func (m *OLS) Predict(X *dataset.Frame) (*dataset.Frame, error) {
	st, err := m.fitted("Predict")
	if err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("OLS.Predict", "X must not be nil")
	}
	if X.Len() == 0 {
		return nil, errors.NewModelError("OLS.Predict", "empty data", errors.ErrEmptyData)
	}

	design, err := designMatrix("OLS.Predict", X, st.terms, m.parallelThreshold)
	if err != nil {
		return nil, err
	}
	yhat := mat.NewVecDense(X.Len(), nil)
	yhat.MulVec(design, st.coef)

	return dataset.New(dataset.NewFloatColumn(st.dv, yhat.RawVector().Data))
}

// Evaluate returns the mean squared error of the predictions for X against y.
// Rows where either side is missing are skipped.
func (m *OLS) Evaluate(X, y *dataset.Frame) (float64, error) {
	if err := m.RequireFitted("Evaluate"); err != nil {
		return 0, err
	}
	if y == nil || y.Width() != 1 {
		return 0, errors.NewValidationError("dvs", "OLS takes exactly one dependent variable", y)
	}
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	if pred.Len() != y.Len() {
		return 0, errors.NewDimensionError("OLS.Evaluate", pred.Len(), y.Len(), 0)
	}

	yTrue := y.Columns()[0].Floats()
	yPred := pred.Columns()[0].Floats()
	var t, p []float64
	for i := range yTrue {
		if math.IsNaN(yTrue[i]) || math.IsNaN(yPred[i]) {
			continue
		}
		t = append(t, yTrue[i])
		p = append(p, yPred[i])
	}
	if len(t) == 0 {
		return 0, errors.NewModelError("OLS.Evaluate", "no complete rows", errors.ErrEmptyData)
	}

	mse, err := metrics.MSE(mat.NewVecDense(len(t), t), mat.NewVecDense(len(p), p))
	if err != nil {
		return 0, err
	}
	m.logger.Debug("evaluated",
		log.ModelNameKey, Name,
		log.OperationKey, log.OperationEvaluate,
		log.SamplesKey, len(t),
		log.MSEKey, mse,
	)
	return mse, nil
}

// Coefficients maps each independent variable to its coefficient.
func (m *OLS) Coefficients() (map[string]float64, error) {
	st, err := m.fitted("Coefficients")
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(st.terms))
	for i, t := range st.terms {
		out[t.Name] = st.coef.AtVec(i)
	}
	return out, nil
}

// Params returns the coefficients in IVs order.
func (m *OLS) Params() ([]float64, error) {
	st, err := m.fitted("Params")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.coef.RawVector().Data...), nil
}

// NormalizedCovariance returns pinv(X)·pinv(X)ᵀ; multiplied by the residual
// variance it is the covariance of the coefficients.
func (m *OLS) NormalizedCovariance() (*mat.Dense, error) {
	st, err := m.fitted("NormalizedCovariance")
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(st.normCov), nil
}

// Terms returns how each design column is built from the input frame.
func (m *OLS) Terms() ([]Term, error) {
	st, err := m.fitted("Terms")
	if err != nil {
		return nil, err
	}
	return append([]Term(nil), st.terms...), nil
}

// Diagnostics holds the per-row values of the training fit.
type Diagnostics struct {
	// Rows are positions in the training frame; rows dropped for missing
	// values are absent.
	Rows      []int
	Observed  []float64
	Fitted    []float64
	Residuals []float64
}

// Diagnostics returns the observed, fitted and residual values of the rows
// used in the fit.
func (m *OLS) Diagnostics() (*Diagnostics, error) {
	st, err := m.fitted("Diagnostics")
	if err != nil {
		return nil, err
	}
	return &Diagnostics{
		Rows:      append([]int(nil), st.rows...),
		Observed:  append([]float64(nil), st.observed...),
		Fitted:    append([]float64(nil), st.fitted...),
		Residuals: append([]float64(nil), st.resid...),
	}, nil
}

// Results returns the fit statistics.
func (m *OLS) Results() (*Results, error) {
	st, err := m.fitted("Results")
	if err != nil {
		return nil, err
	}
	r := *st.results
	r.Coefficients = append([]CoefStat(nil), st.results.Coefficients...)
	return &r, nil
}

// Summary returns a plain text report of the fit.
func (m *OLS) Summary() (string, error) {
	st, err := m.fitted("Summary")
	if err != nil {
		return "", err
	}
	return st.results.String(), nil
}

var _ model.Model = (*OLS)(nil)
