package visualizer

import (
	"gonum.org/v1/plot"

	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// numericColumn returns the values of a numeric column; temporal columns
// are plotted as Unix seconds.
func numericColumn(f *dataset.Frame, name string) ([]float64, error) {
	if name == "" {
		return nil, errors.NewValidationError("column", "column is required", name)
	}
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if !c.DType().Numeric() {
		return nil, errors.NewValidationError(name, "cannot plot a non-numeric column", c.DType().String())
	}
	return c.Floats(), nil
}

func explorationPlot(kind PlotKind, f *dataset.Frame, cfg *plotConfig) (*plot.Plot, error) {
	switch kind {
	case PlotHistogram:
		vs, err := numericColumn(f, cfg.column)
		if err != nil {
			return nil, err
		}
		p := newPlot("Histogram of "+cfg.column, cfg.column, "count")
		if err := histogram(p, values(vs)); err != nil {
			return nil, err
		}
		return p, nil

	case PlotScatter:
		xs, err := numericColumn(f, cfg.x)
		if err != nil {
			return nil, err
		}
		ys, err := numericColumn(f, cfg.y)
		if err != nil {
			return nil, err
		}
		p := newPlot(cfg.y+" vs "+cfg.x, cfg.x, cfg.y)
		if err := scatterWithLine(p, pairs(xs, ys), nil); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, errors.NewValidationError("plot", "not an exploration plot", string(kind))
}
