package visualizer

import (
	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/linear"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// OLSVisualizer はOLSモデル用のウィザード
//
// SupervisedVisualizerの出力に係数と統計量（linear.Results）を加える。
type OLSVisualizer struct {
	*SupervisedVisualizer
	ols *linear.OLS
}

// NewOLSVisualizer wraps m, which must be a *linear.OLS.
func NewOLSVisualizer(m model.Model, opts ...Option) (Visualizer, error) {
	ols, ok := m.(*linear.OLS)
	if !ok {
		return nil, errors.NewValidationError("model", "OLSVisualizer needs an OLS model", m)
	}
	base, err := NewSupervisedVisualizer(ols, opts...)
	if err != nil {
		return nil, err
	}
	return &OLSVisualizer{SupervisedVisualizer: base, ols: ols}, nil
}

// Output adds the coefficients and the fit statistics to the report.
func (v *OLSVisualizer) Output() (*Report, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, err := v.report()
	if err != nil {
		return nil, err
	}
	if r.Coefficients, err = v.ols.Coefficients(); err != nil {
		return nil, err
	}
	if r.Results, err = v.ols.Results(); err != nil {
		return nil, err
	}
	r.NObs = r.Results.NObs
	return r, nil
}

var _ Visualizer = (*OLSVisualizer)(nil)
