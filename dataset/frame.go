// Package dataset holds the tabular data the workbench fits models on: typed
// columns, dtype coercion, an optional ordered index and CSV input/output.
//
// Frames are immutable from the caller's point of view. Every transforming
// method returns a new Frame, so a failed coercion never leaves a half-updated
// frame behind.
package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// Frame is an ordered set of equally long columns.
type Frame struct {
	columns []*Column
	byName  map[string]int
	nrows   int
	index   *rowIndex
}

// New builds a frame from columns. Labels must be unique and all columns must
// have the same length.
func New(columns ...*Column) (*Frame, error) {
	f := &Frame{byName: make(map[string]int, len(columns))}
	for i, c := range columns {
		if c.name == "" {
			return nil, errors.NewValidationError("column", "empty column name", i)
		}
		if _, dup := f.byName[c.name]; dup {
			return nil, errors.NewValidationError("column", "duplicate column name", c.name)
		}
		if i == 0 {
			f.nrows = c.Len()
		} else if c.Len() != f.nrows {
			return nil, errors.NewDimensionError("dataset.New", f.nrows, c.Len(), 0)
		}
		f.byName[c.name] = i
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// FromMatrix wraps a matrix as Float columns named by names.
func FromMatrix(m mat.Matrix, names []string) (*Frame, error) {
	r, c := m.Dims()
	if len(names) != c {
		return nil, errors.NewDimensionError("dataset.FromMatrix", c, len(names), 1)
	}
	cols := make([]*Column, c)
	for j := 0; j < c; j++ {
		vals := make([]float64, r)
		for i := 0; i < r; i++ {
			vals[i] = m.At(i, j)
		}
		cols[j] = NewFloatColumn(names[j], vals)
	}
	return New(cols...)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.nrows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Names returns the column labels in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.name
	}
	return names
}

// Has reports whether the frame has a column with this label.
func (f *Frame) Has(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// Column returns the column with this label.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.byName[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "column %q", name)
	}
	return f.columns[i], nil
}

// Columns returns the columns in order.
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.columns...)
}

// Select returns a frame with only the named columns, in the given order.
// The index is kept when its column is selected.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if f.index != nil && out.Has(f.index.column) {
		out.index = f.index
	}
	return out, nil
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		if !f.Has(n) {
			return nil, errors.Wrapf(errors.ErrNotFound, "column %q", n)
		}
		drop[n] = true
	}
	keep := make([]string, 0, len(f.columns))
	for _, c := range f.columns {
		if !drop[c.name] {
			keep = append(keep, c.name)
		}
	}
	return f.Select(keep...)
}

// WithColumn returns a frame where c replaces the column of the same label,
// or is appended when no such column exists.
func (f *Frame) WithColumn(c *Column) (*Frame, error) {
	if f.Width() > 0 && c.Len() != f.nrows {
		return nil, errors.NewDimensionError("Frame.WithColumn", f.nrows, c.Len(), 0)
	}
	cols := f.Columns()
	if i, ok := f.byName[c.name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if f.index != nil {
		if f.index.column == c.name {
			// the index column changed, rebuild the lookup tree
			return out.withIndex(c.name)
		}
		out.index = f.index
	}
	return out, nil
}

// Take returns the rows at the given positions, in that order.
func (f *Frame) Take(rows []int) (*Frame, error) {
	for _, r := range rows {
		if r < 0 || r >= f.nrows {
			return nil, errors.NewValueError("Frame.Take", "row position out of range")
		}
	}
	cols := make([]*Column, len(f.columns))
	for i, c := range f.columns {
		cols[i] = c.take(rows)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if f.index != nil {
		return out.withIndex(f.index.column)
	}
	return out, nil
}

// Head returns the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n > f.nrows {
		n = f.nrows
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	out, _ := f.Take(rows)
	return out
}

// CoerceOption configures Coerce.
type CoerceOption func(*coerceConfig)

type coerceConfig struct {
	layouts []string
}

// WithTimeLayouts sets the layouts tried when coercing to Temporal.
func WithTimeLayouts(layouts ...string) CoerceOption {
	return func(c *coerceConfig) {
		c.layouts = layouts
	}
}

// Coerce returns a frame where the named column is converted to dt.
func (f *Frame) Coerce(name string, dt DType, opts ...CoerceOption) (*Frame, error) {
	return f.CoerceAll(map[string]DType{name: dt}, opts...)
}

// CoerceAll converts several columns at once. It is all-or-nothing: on the
// first failure the error is returned and no frame is produced.
func (f *Frame) CoerceAll(types map[string]DType, opts ...CoerceOption) (*Frame, error) {
	cfg := &coerceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	cols := f.Columns()
	for name, dt := range types {
		i, ok := f.byName[name]
		if !ok {
			return nil, errors.Wrapf(errors.ErrNotFound, "column %q", name)
		}
		coerced, err := cols[i].coerce(dt, cfg.layouts)
		if err != nil {
			return nil, err
		}
		cols[i] = coerced
	}

	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if f.index != nil {
		return out.withIndex(f.index.column)
	}
	return out, nil
}

// Matrix returns the named numeric columns as an n×k matrix. Missing values are NaN.
func (f *Frame) Matrix(names ...string) (*mat.Dense, error) {
	if len(names) == 0 {
		names = f.Names()
	}
	if f.nrows == 0 || len(names) == 0 {
		return nil, errors.NewModelError("Frame.Matrix", "empty data", errors.ErrEmptyData)
	}
	m := mat.NewDense(f.nrows, len(names), nil)
	for j, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if !c.dtype.Numeric() {
			return nil, errors.NewValidationError(n, "column is not numeric", c.dtype.String())
		}
		for i := 0; i < f.nrows; i++ {
			m.Set(i, j, c.Float(i))
		}
	}
	return m, nil
}

// ColumnInfo summarises a column for display.
type ColumnInfo struct {
	Name    string `json:"name"`
	DType   DType  `json:"dtype"`
	Missing int    `json:"missing"`
	Levels  int    `json:"levels,omitempty"`
	Index   bool   `json:"index,omitempty"`
}

// Describe returns one ColumnInfo per column.
func (f *Frame) Describe() []ColumnInfo {
	infos := make([]ColumnInfo, len(f.columns))
	for i, c := range f.columns {
		infos[i] = ColumnInfo{
			Name:    c.name,
			DType:   c.dtype,
			Missing: c.MissingCount(),
			Levels:  len(c.levels),
			Index:   f.index != nil && f.index.column == c.name,
		}
	}
	return infos
}

// Records returns up to n rows as text, header first.
func (f *Frame) Records(n int) [][]string {
	if n < 0 || n > f.nrows {
		n = f.nrows
	}
	out := make([][]string, 0, n+1)
	out = append(out, f.Names())
	for i := 0; i < n; i++ {
		row := make([]string, len(f.columns))
		for j, c := range f.columns {
			row[j] = c.String(i)
		}
		out = append(out, row)
	}
	return out
}
