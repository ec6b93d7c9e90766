package linear

import "github.com/YuminosukeSato/scigo-workbench/pkg/log"

// Option is a function that configures OLS
type Option func(*OLS)

// WithIntercept sets whether a "const" column is prepended to the design matrix
func WithIntercept(fit bool) Option {
	return func(m *OLS) {
		m.intercept = fit
	}
}

// WithDescription overrides the model description stored in packages
func WithDescription(d string) Option {
	return func(m *OLS) {
		m.SetDescription(d)
	}
}

// WithRCond sets the relative cutoff for small singular values. Singular
// values below rcond * max(singular values) are treated as zero.
// A non-positive value selects the default max(n, p) * eps.
func WithRCond(rcond float64) Option {
	return func(m *OLS) {
		m.rcond = rcond
	}
}

// WithParallelThreshold sets the row count above which the design matrix is
// filled in parallel
func WithParallelThreshold(rows int) Option {
	return func(m *OLS) {
		m.parallelThreshold = rows
	}
}

// WithLogger sets the logger used for fit events
func WithLogger(l log.Logger) Option {
	return func(m *OLS) {
		m.logger = l
	}
}
