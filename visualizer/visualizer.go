// Package visualizer drives the model wizard: data loading, inference and
// output. A Visualizer holds the per-session dataset and delegates the
// statistics to a model.Model.
package visualizer

import (
	"io"
	"sync"

	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/linear"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
	"github.com/YuminosukeSato/scigo-workbench/preprocessing"
)

// Visualizer はウィザードの各ステップを駆動するインターフェース
//
// データを変更する操作はコピーに対して行い、成功した場合のみ差し替える。
// 失敗した操作はセッションの状態を変更しない。
type Visualizer interface {
	// Step returns the current wizard step.
	Step() Step
	// Model returns the model being fitted.
	Model() model.Model

	// Load parses a delimited file and replaces the session data.
	Load(r io.Reader, name string, opts ...dataset.ReadOption) error
	// Data returns the current frame.
	Data() (*dataset.Frame, error)
	// Coerce converts columns to the given dtypes.
	Coerce(types map[string]dataset.DType, opts ...dataset.CoerceOption) error
	// SetIndex orders the data by a column.
	SetIndex(column string) error
	// Transform appends a transformed copy of a column.
	Transform(column string, kind preprocessing.Kind) error
	// SetVariables chooses the independent and dependent variables.
	SetVariables(ivs, dvs []string) error
	// Fit fits the model on the chosen variables.
	Fit() error

	// Output reports the fitted model.
	Output() (*Report, error)
	// Plot renders an exploration or diagnostic plot to w.
	Plot(kind PlotKind, w io.Writer, opts ...PlotOption) error
	// Package writes the fitted model as a zip package.
	Package(w io.Writer) error
}

// Factory builds the visualizer of a registry leaf around a model.
type Factory func(m model.Model, opts ...Option) (Visualizer, error)

// Report is the output step of a fitted model.
type Report struct {
	Model       string      `json:"model"`
	Description string      `json:"description"`
	Step        Step        `json:"step"`
	IVs         []string    `json:"ivs"`
	DVs         []string    `json:"dvs"`
	NObs        int         `json:"nobs"`
	MSE         linear.Stat `json:"mse"`
	Summary     string      `json:"summary"`
	Plots       []PlotKind  `json:"plots"`

	Coefficients map[string]float64 `json:"coefficients,omitempty"`
	Results      *linear.Results    `json:"results,omitempty"`
}

// Option configures a visualizer.
type Option func(*SupervisedVisualizer)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(v *SupervisedVisualizer) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithPlotSize sets the default plot size in inches.
func WithPlotSize(widthIn, heightIn float64) Option {
	return func(v *SupervisedVisualizer) {
		if widthIn > 0 && heightIn > 0 {
			v.width = vg.Length(widthIn) * vg.Inch
			v.height = vg.Length(heightIn) * vg.Inch
		}
	}
}

// diagnoser is implemented by models that expose their training residuals.
type diagnoser interface {
	Diagnostics() (*linear.Diagnostics, error)
}

// SupervisedVisualizer is the wizard for any supervised model.
type SupervisedVisualizer struct {
	mu     sync.Mutex
	model  model.Model
	step   Step
	source string
	data   *dataset.Frame
	ivs    []string
	dvs    []string

	width, height vg.Length
	logger        log.Logger
}

// NewSupervisedVisualizer returns a wizard in the DataLoading step.
func NewSupervisedVisualizer(m model.Model, opts ...Option) (*SupervisedVisualizer, error) {
	if m == nil {
		return nil, errors.NewValidationError("model", "model is nil", nil)
	}
	v := &SupervisedVisualizer{
		model:  m,
		step:   DataLoading,
		width:  6 * vg.Inch,
		height: 4 * vg.Inch,
		logger: log.GetLoggerWithName("visualizer"),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With(log.ModelNameKey, m.Name())
	return v, nil
}

// Step returns the current wizard step.
func (v *SupervisedVisualizer) Step() Step {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.step
}

// Model returns the wrapped model.
func (v *SupervisedVisualizer) Model() model.Model {
	return v.model
}

// Load parses r as CSV. On success the session moves to Inference and any
// earlier variable choice is cleared; on failure nothing changes.
func (v *SupervisedVisualizer) Load(r io.Reader, name string, opts ...dataset.ReadOption) error {
	opts = append([]dataset.ReadOption{dataset.WithSource(name)}, opts...)
	f, err := dataset.ReadCSV(r, opts...)
	if err != nil {
		v.logger.Warn("data load failed", log.PhaseKey, log.PhaseDataLoading, "error", err)
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.data = f
	v.source = name
	v.ivs, v.dvs = nil, nil
	v.step = Inference
	v.logger.Info("data loaded",
		log.PhaseKey, log.PhaseDataLoading,
		log.SamplesKey, f.Len(),
		log.FeaturesKey, f.Width(),
	)
	return nil
}

// Data returns the current frame. Frames are immutable, so the caller may
// keep it.
func (v *SupervisedVisualizer) Data() (*dataset.Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requireData("Data")
}

func (v *SupervisedVisualizer) requireData(op string) (*dataset.Frame, error) {
	if v.data == nil {
		return nil, errors.NewValueError(op, "no data loaded")
	}
	return v.data, nil
}

// update applies fn to the current frame and swaps the result in. A fitted
// session goes back to Inference because the fit no longer matches the data.
func (v *SupervisedVisualizer) update(op string, fn func(*dataset.Frame) (*dataset.Frame, error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.requireData(op)
	if err != nil {
		return err
	}
	next, err := fn(f)
	if err != nil {
		v.logger.Warn(op+" failed", log.PhaseKey, v.step.String(), "error", err)
		return err
	}
	v.data = next
	if v.step == Output {
		v.step = Inference
	}
	v.ivs = keep(v.ivs, next)
	v.dvs = keep(v.dvs, next)
	return nil
}

// keep drops names that are no longer columns of f.
func keep(names []string, f *dataset.Frame) []string {
	for _, n := range names {
		if !f.Has(n) {
			return nil
		}
	}
	return names
}

// Coerce converts the named columns; either every column converts or none does.
func (v *SupervisedVisualizer) Coerce(types map[string]dataset.DType, opts ...dataset.CoerceOption) error {
	return v.update("Coerce", func(f *dataset.Frame) (*dataset.Frame, error) {
		return f.CoerceAll(types, opts...)
	})
}

// SetIndex orders the data by column. An empty name removes the index.
// A column already chosen as a model variable cannot become the index.
func (v *SupervisedVisualizer) SetIndex(column string) error {
	return v.update("SetIndex", func(f *dataset.Frame) (*dataset.Frame, error) {
		if column == "" {
			return f.ResetIndex(), nil
		}
		if contains(v.ivs, column) || contains(v.dvs, column) {
			return nil, errors.NewValidationError(column, "model variable cannot be the index", column)
		}
		return f.SetIndex(column)
	})
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Transform appends kind(column) to the data.
func (v *SupervisedVisualizer) Transform(column string, kind preprocessing.Kind) error {
	err := v.update("Transform", func(f *dataset.Frame) (*dataset.Frame, error) {
		return preprocessing.Apply(f, column, kind)
	})
	if err == nil {
		v.logger.Info("column transformed",
			log.OperationKey, log.OperationTransform,
			log.ColumnKey, preprocessing.ColumnName(column, kind),
		)
	}
	return err
}

// SetVariables chooses the model columns. Both lists must be non-empty,
// name existing columns other than the index, and not overlap.
func (v *SupervisedVisualizer) SetVariables(ivs, dvs []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.requireData("SetVariables")
	if err != nil {
		return err
	}
	if len(ivs) == 0 {
		return errors.NewValidationError("ivs", "at least one independent variable is required", ivs)
	}
	if len(dvs) == 0 {
		return errors.NewValidationError("dvs", "at least one dependent variable is required", dvs)
	}
	seen := make(map[string]bool, len(ivs)+len(dvs))
	for _, n := range append(append([]string(nil), ivs...), dvs...) {
		if !f.Has(n) {
			return errors.Wrapf(errors.ErrNotFound, "column %q", n)
		}
		if n == f.Index() {
			return errors.NewValidationError(n, "index column cannot be a model variable", n)
		}
		if seen[n] {
			return errors.NewValidationError("variables", "column used twice", n)
		}
		seen[n] = true
	}
	v.ivs = append([]string(nil), ivs...)
	v.dvs = append([]string(nil), dvs...)
	if v.step == Output {
		v.step = Inference
	}
	return nil
}

// Fit fits the model on the chosen variables and moves to Output.
func (v *SupervisedVisualizer) Fit() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := v.requireData("Fit")
	if err != nil {
		return err
	}
	if len(v.ivs) == 0 || len(v.dvs) == 0 {
		return errors.NewValueError("Fit", "variables are not selected")
	}
	X, err := f.Select(v.ivs...)
	if err != nil {
		return err
	}
	y, err := f.Select(v.dvs...)
	if err != nil {
		return err
	}
	if err := v.model.Fit(X, y); err != nil {
		v.logger.Warn("fit failed", log.PhaseKey, log.PhaseInference, "error", err)
		return err
	}
	v.step = Output
	v.logger.Info("model fitted", log.PhaseKey, log.PhaseInference, log.SamplesKey, f.Len())
	return nil
}

// requireOutput guards operations of the output step.
func (v *SupervisedVisualizer) requireOutput(method string) error {
	if v.step != Output || !v.model.IsFitted() {
		return errors.NewNotFittedError(v.model.Name(), method)
	}
	return nil
}

// Output reports the fit with the training MSE and the text summary.
func (v *SupervisedVisualizer) Output() (*Report, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.report()
}

func (v *SupervisedVisualizer) report() (*Report, error) {
	if err := v.requireOutput("Output"); err != nil {
		return nil, err
	}
	X, err := v.data.Select(v.ivs...)
	if err != nil {
		return nil, err
	}
	y, err := v.data.Select(v.dvs...)
	if err != nil {
		return nil, err
	}
	mse, err := v.model.Evaluate(X, y)
	if err != nil {
		return nil, err
	}
	summary, err := v.model.Summary()
	if err != nil {
		return nil, err
	}

	r := &Report{
		Model:       v.model.Name(),
		Description: v.model.Description(),
		Step:        v.step,
		IVs:         v.model.IVs(),
		DVs:         v.model.DVs(),
		NObs:        v.data.Len(),
		MSE:         linear.Stat(mse),
		Summary:     summary,
	}
	if _, ok := v.model.(diagnoser); ok {
		r.Plots = append(r.Plots, DiagnosticPlots...)
	}
	return r, nil
}

// Plot renders kind to w. Exploration plots need data; diagnostic plots
// need a fitted model that exposes its residuals.
func (v *SupervisedVisualizer) Plot(kind PlotKind, w io.Writer, opts ...PlotOption) (err error) {
	defer errors.Recover(&err, "visualizer.Plot")

	cfg := &plotConfig{format: FormatPNG, width: v.width, height: v.height}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch kind {
	case PlotHistogram, PlotScatter:
		f, err := v.requireData("Plot")
		if err != nil {
			return err
		}
		pl, err := explorationPlot(kind, f, cfg)
		if err != nil {
			return err
		}
		return v.emit(kind, render(pl, w, cfg))
	}

	if !kind.Diagnostic() {
		return errors.NewValidationError("plot", "unknown plot kind", string(kind))
	}
	if err := v.requireOutput("Plot"); err != nil {
		return err
	}
	dm, ok := v.model.(diagnoser)
	if !ok {
		return errors.NewValidationError("plot", v.model.Name()+" has no diagnostic plots", string(kind))
	}
	d, err := dm.Diagnostics()
	if err != nil {
		return err
	}
	pl, err := diagnosticPlot(kind, d, v.dvs[0])
	if err != nil {
		return err
	}
	return v.emit(kind, render(pl, w, cfg))
}

func (v *SupervisedVisualizer) emit(kind PlotKind, err error) error {
	if err != nil {
		return err
	}
	v.logger.Debug("plot rendered", log.PlotKindKey, string(kind))
	return nil
}

// Package writes the fitted model as a zip package.
func (v *SupervisedVisualizer) Package(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOutput("Package"); err != nil {
		return err
	}
	s, err := v.model.Serialize()
	if err != nil {
		return err
	}
	return model.WritePackage(w, s)
}

var _ Visualizer = (*SupervisedVisualizer)(nil)
