package visualizer

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/scigo-workbench/linear"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// PlotKind names a plot the wizard can render.
type PlotKind string

const (
	// PlotResiduals is residuals against fitted values.
	PlotResiduals PlotKind = "residuals"
	// PlotQQ is the normal Q-Q plot of standardized residuals.
	PlotQQ PlotKind = "qq"
	// PlotObserved is observed against predicted values.
	PlotObserved PlotKind = "observed"
	// PlotResidualHistogram is the histogram of residuals.
	PlotResidualHistogram PlotKind = "residual_histogram"

	// PlotHistogram is the histogram of one data column (WithColumn).
	PlotHistogram PlotKind = "histogram"
	// PlotScatter is the two-way relationship of two data columns (WithXY).
	PlotScatter PlotKind = "scatter"
)

// DiagnosticPlots are the plots available once a model is fitted.
var DiagnosticPlots = []PlotKind{PlotResiduals, PlotQQ, PlotObserved, PlotResidualHistogram}

// ExplorationPlots are the plots available once data is loaded.
var ExplorationPlots = []PlotKind{PlotHistogram, PlotScatter}

// Diagnostic reports whether the plot needs a fitted model.
func (k PlotKind) Diagnostic() bool {
	for _, d := range DiagnosticPlots {
		if d == k {
			return true
		}
	}
	return false
}

// ParsePlotKind parses a plot name, case-insensitively.
func ParsePlotKind(s string) (PlotKind, error) {
	k := PlotKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range append(append([]PlotKind(nil), DiagnosticPlots...), ExplorationPlots...) {
		if k == known {
			return k, nil
		}
	}
	return "", errors.NewValidationError("plot", "unknown plot kind", s)
}

// Plot formats.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// ContentType returns the MIME type of a plot format.
func ContentType(format string) string {
	if format == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// PlotOption configures one Plot call.
type PlotOption func(*plotConfig)

type plotConfig struct {
	format        string
	width, height vg.Length
	column        string
	x, y          string
}

// WithFormat selects "png" (default) or "svg".
func WithFormat(format string) PlotOption {
	return func(c *plotConfig) {
		if format != "" {
			c.format = strings.ToLower(format)
		}
	}
}

// WithSize sets the image size in inches.
func WithSize(widthIn, heightIn float64) PlotOption {
	return func(c *plotConfig) {
		c.width = vg.Length(widthIn) * vg.Inch
		c.height = vg.Length(heightIn) * vg.Inch
	}
}

// WithColumn selects the column of a histogram.
func WithColumn(name string) PlotOption {
	return func(c *plotConfig) { c.column = name }
}

// WithXY selects the columns of a scatter plot.
func WithXY(x, y string) PlotOption {
	return func(c *plotConfig) { c.x, c.y = x, y }
}

func (c *plotConfig) validate() error {
	if c.format != FormatPNG && c.format != FormatSVG {
		return errors.NewValidationError("format", "plot format must be png or svg", c.format)
	}
	if c.width <= 0 || c.height <= 0 {
		return errors.NewValidationError("size", "plot size must be positive", fmt.Sprintf("%vx%v", c.width, c.height))
	}
	return nil
}

// render draws p to w in the configured format.
func render(p *plot.Plot, w io.Writer, cfg *plotConfig) error {
	wt, err := p.WriterTo(cfg.width, cfg.height, cfg.format)
	if err != nil {
		return errors.Wrap(err, "render plot")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write plot")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// pairs keeps the points where both coordinates are finite.
func pairs(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if finite(xs[i]) && finite(ys[i]) {
			pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
		}
	}
	return pts
}

func values(vs []float64) plotter.Values {
	out := make(plotter.Values, 0, len(vs))
	for _, v := range vs {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

// sturges returns the number of histogram bins for n values.
func sturges(n int) int {
	if n < 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	return p
}

// scatterWithLine draws the points and the reference line f.
func scatterWithLine(p *plot.Plot, pts plotter.XYs, f func(float64) float64) error {
	if len(pts) == 0 {
		return errors.NewValueError("plot", "no finite points to draw")
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "scatter")
	}
	s.GlyphStyle.Radius = vg.Points(2)
	s.GlyphStyle.Color = plotutil.Color(0)
	p.Add(s)
	if f != nil {
		line := plotter.NewFunction(f)
		line.Color = plotutil.Color(1)
		line.Dashes = plotutil.Dashes(1)
		p.Add(line)
	}
	return nil
}

func histogram(p *plot.Plot, vs plotter.Values) error {
	if len(vs) == 0 {
		return errors.NewValueError("plot", "no finite values to draw")
	}
	h, err := plotter.NewHist(vs, sturges(len(vs)))
	if err != nil {
		return errors.Wrap(err, "histogram")
	}
	h.FillColor = plotutil.Color(0)
	p.Add(h)
	return nil
}

func residualsPlot(d *linear.Diagnostics, dv string) (*plot.Plot, error) {
	p := newPlot("Residuals vs Fitted", "fitted "+dv, "residual")
	if err := scatterWithLine(p, pairs(d.Fitted, d.Residuals), func(float64) float64 { return 0 }); err != nil {
		return nil, err
	}
	return p, nil
}

func observedPlot(d *linear.Diagnostics, dv string) (*plot.Plot, error) {
	p := newPlot("Observed vs Predicted", "predicted "+dv, "observed "+dv)
	if err := scatterWithLine(p, pairs(d.Fitted, d.Observed), func(x float64) float64 { return x }); err != nil {
		return nil, err
	}
	return p, nil
}

func residualHistogram(d *linear.Diagnostics) (*plot.Plot, error) {
	p := newPlot("Residual Histogram", "residual", "count")
	if err := histogram(p, values(d.Residuals)); err != nil {
		return nil, err
	}
	return p, nil
}

// qqPoints returns standardized residuals, sorted, against the normal
// quantiles at Blom's plotting positions.
func qqPoints(resid []float64) plotter.XYs {
	vs := []float64(values(resid))
	n := len(vs)
	if n < 2 {
		return nil
	}
	mean, sd := stat.MeanStdDev(vs, nil)
	z := make([]float64, n)
	for i, v := range vs {
		// constant residuals standardize to zero
		z[i] = errors.SafeDivide(v-mean, sd)
	}
	sort.Float64s(z)

	pts := make(plotter.XYs, n)
	nf := float64(n)
	for i := range z {
		pts[i] = plotter.XY{
			X: distuv.UnitNormal.Quantile((float64(i+1) - 0.375) / (nf + 0.25)),
			Y: z[i],
		}
	}
	return pts
}

func qqPlot(d *linear.Diagnostics) (*plot.Plot, error) {
	p := newPlot("Normal Q-Q", "theoretical quantiles", "standardized residuals")
	if err := scatterWithLine(p, qqPoints(d.Residuals), func(x float64) float64 { return x }); err != nil {
		return nil, err
	}
	return p, nil
}

func diagnosticPlot(kind PlotKind, d *linear.Diagnostics, dv string) (*plot.Plot, error) {
	switch kind {
	case PlotResiduals:
		return residualsPlot(d, dv)
	case PlotQQ:
		return qqPlot(d)
	case PlotObserved:
		return observedPlot(d, dv)
	case PlotResidualHistogram:
		return residualHistogram(d)
	}
	return nil, errors.NewValidationError("plot", "not a diagnostic plot", string(kind))
}
