package registry

import (
	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/linear"
)

func newOLS(cfg Config) model.Model {
	return linear.NewOLS(linear.WithIntercept(cfg.Intercept))
}
