package dataset

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// DefaultNATokens are the cell values read as missing.
var DefaultNATokens = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"}

// DefaultTimeLayouts are tried in order when coercing to Temporal.
var DefaultTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Column is a named, typed column. The original text is always retained so a
// column can be coerced again to a different dtype.
type Column struct {
	name    string
	dtype   DType
	raw     []string
	missing []bool
	values  []float64 // numeric dtypes; NaN where missing
	levels  []string  // Categorical only, sorted
}

// NewFloatColumn builds a Float column. NaN marks a missing value.
func NewFloatColumn(name string, values []float64) *Column {
	c := &Column{
		name:    name,
		dtype:   Float,
		raw:     make([]string, len(values)),
		missing: make([]bool, len(values)),
		values:  make([]float64, len(values)),
	}
	copy(c.values, values)
	for i, v := range values {
		if math.IsNaN(v) {
			c.missing[i] = true
			continue
		}
		c.raw[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return c
}

// NewStringColumn builds an Object column from text, treating NA tokens as missing.
func NewStringColumn(name string, values []string) *Column {
	return newRawColumn(name, values, naSet(DefaultNATokens))
}

func newRawColumn(name string, values []string, na map[string]bool) *Column {
	c := &Column{
		name:    name,
		dtype:   Object,
		raw:     make([]string, len(values)),
		missing: make([]bool, len(values)),
	}
	for i, v := range values {
		v = strings.TrimSpace(v)
		c.raw[i] = v
		c.missing[i] = na[v]
	}
	return c
}

func naSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// Name returns the column label.
func (c *Column) Name() string { return c.name }

// DType returns the column dtype.
func (c *Column) DType() DType { return c.dtype }

// Len returns the number of rows.
func (c *Column) Len() int { return len(c.raw) }

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// MissingCount returns the number of missing rows.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// String returns the text of row i, or "" when missing.
func (c *Column) String(i int) string {
	if c.missing[i] {
		return ""
	}
	if c.dtype == Temporal {
		return time.Unix(int64(c.values[i]), 0).UTC().Format(time.RFC3339)
	}
	return c.raw[i]
}

// Float returns the numeric value of row i. Non-numeric columns and missing
// rows yield NaN.
func (c *Column) Float(i int) float64 {
	if c.values == nil || c.missing[i] {
		return math.NaN()
	}
	return c.values[i]
}

// Floats returns a copy of the numeric values.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.Float(i)
	}
	return out
}

// Levels returns the sorted category levels of a Categorical column.
func (c *Column) Levels() []string {
	return append([]string(nil), c.levels...)
}

// Rename returns a copy of the column under a new label.
func (c *Column) Rename(name string) *Column {
	cp := c.take(nil)
	cp.name = name
	return cp
}

// take copies the rows in idx, or every row when idx is nil.
func (c *Column) take(idx []int) *Column {
	if idx == nil {
		idx = make([]int, c.Len())
		for i := range idx {
			idx[i] = i
		}
	}
	out := &Column{
		name:    c.name,
		dtype:   c.dtype,
		raw:     make([]string, len(idx)),
		missing: make([]bool, len(idx)),
		levels:  c.levels,
	}
	if c.values != nil {
		out.values = make([]float64, len(idx))
	}
	for j, i := range idx {
		out.raw[j] = c.raw[i]
		out.missing[j] = c.missing[i]
		if c.values != nil {
			out.values[j] = c.values[i]
		}
	}
	return out
}

// coerce converts the column from its raw text. The receiver is not modified.
func (c *Column) coerce(dt DType, layouts []string) (*Column, error) {
	out := &Column{
		name:    c.name,
		dtype:   dt,
		raw:     append([]string(nil), c.raw...),
		missing: append([]bool(nil), c.missing...),
	}

	switch dt {
	case Object:
		return out, nil

	case Categorical:
		seen := make(map[string]bool)
		for i, v := range out.raw {
			if !out.missing[i] && !seen[v] {
				seen[v] = true
				out.levels = append(out.levels, v)
			}
		}
		sort.Strings(out.levels)
		return out, nil

	case Integer, Float:
		out.values = make([]float64, len(out.raw))
		for i, v := range out.raw {
			if out.missing[i] {
				out.values[i] = math.NaN()
				continue
			}
			f, err := parseNumber(v, dt)
			if err != nil {
				return nil, errors.NewCoercionError(c.name, dt.String(), i, v)
			}
			out.values[i] = f
		}
		return out, nil

	case Temporal:
		if len(layouts) == 0 {
			layouts = DefaultTimeLayouts
		}
		out.values = make([]float64, len(out.raw))
		for i, v := range out.raw {
			if out.missing[i] {
				out.values[i] = math.NaN()
				continue
			}
			ts, ok := parseTime(v, layouts)
			if !ok {
				return nil, errors.NewCoercionError(c.name, dt.String(), i, v)
			}
			out.values[i] = float64(ts.Unix())
			out.raw[i] = ts.UTC().Format(time.RFC3339)
		}
		return out, nil
	}
	return nil, errors.NewValidationError("dtype", "unsupported dtype", dt)
}

func parseNumber(v string, dt DType) (float64, error) {
	if dt == Integer {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return float64(n), nil
		}
		// "3.0" is accepted as an integer, "3.5" is not.
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, err
		}
		return f, nil
	}
	return strconv.ParseFloat(v, 64)
}

func parseTime(v string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// infer picks Integer, Float or Object from the non-missing values.
func (c *Column) infer() *Column {
	for _, dt := range []DType{Integer, Float} {
		if coerced, err := c.coerce(dt, nil); err == nil && coerced.MissingCount() < coerced.Len() {
			return coerced
		}
	}
	return c
}
