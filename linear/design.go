package linear

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/core/parallel"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// ConstName is the label of the intercept column.
const ConstName = "const"

// TermKind says how a design column is computed from its source column.
type TermKind int

const (
	// TermConst is the intercept column of ones.
	TermConst TermKind = iota
	// TermNumeric copies an integer, float or temporal column.
	TermNumeric
	// TermDummy is 1 where the source equals Level, else 0.
	TermDummy
)

// Term is one column of the design matrix. Reference is the dropped level of
// the source column of a dummy term.
type Term struct {
	Name      string
	Kind      TermKind
	Source    string
	Level     string
	Reference string
}

// DummyName returns the treatment-coded label of a level, "col[T.level]".
func DummyName(column, level string) string {
	return column + "[T." + level + "]"
}

// buildTerms derives the design terms from a training frame. Categorical and
// object columns are expanded to treatment dummies with the first sorted level
// as the reference.
func buildTerms(X *dataset.Frame, intercept bool) ([]Term, error) {
	var terms []Term
	if intercept {
		terms = append(terms, Term{Name: ConstName, Kind: TermConst})
	}
	for _, c := range X.Columns() {
		if intercept && c.Name() == ConstName {
			return nil, errors.NewValidationError(c.Name(), "column name is reserved for the intercept", c.Name())
		}
		if c.DType().Numeric() {
			terms = append(terms, Term{Name: c.Name(), Kind: TermNumeric, Source: c.Name()})
			continue
		}

		levels := columnLevels(c)
		if len(levels) < 2 {
			return nil, errors.NewValidationError(c.Name(), "categorical column needs at least two levels", len(levels))
		}
		for _, lv := range levels[1:] {
			terms = append(terms, Term{Name: DummyName(c.Name(), lv), Kind: TermDummy, Source: c.Name(), Level: lv, Reference: levels[0]})
		}
		errors.Warn(errors.NewDataConversionWarning(c.Name(), c.DType().String(), "dummies",
			"expanded to treatment dummies with reference level "+levels[0]))
	}
	if len(terms) == 0 {
		return nil, errors.NewModelError("OLS.Fit", "empty data", errors.ErrEmptyData)
	}
	return terms, nil
}

func columnLevels(c *dataset.Column) []string {
	if c.DType() == dataset.Categorical {
		return c.Levels()
	}
	seen := make(map[string]bool)
	var levels []string
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		if v := c.String(i); !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)
	return levels
}

// designMatrix evaluates terms against X. A row with a missing value in any
// source column is NaN across the whole row.
func designMatrix(op string, X *dataset.Frame, terms []Term, threshold int) (*mat.Dense, error) {
	sources := make(map[string]*dataset.Column)
	for _, t := range terms {
		if t.Kind == TermConst {
			continue
		}
		if _, ok := sources[t.Source]; ok {
			continue
		}
		c, err := X.Column(t.Source)
		if err != nil {
			return nil, errors.Wrapf(errors.NewDimensionError(op, len(terms), X.Width(), 1), "missing column %q", t.Source)
		}
		sources[t.Source] = c
	}

	if err := checkSources(op, terms, sources); err != nil {
		return nil, err
	}

	n := X.Len()
	design := mat.NewDense(n, len(terms), nil)
	parallel.ParallelizeWithThreshold(n, threshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j, t := range terms {
				var v float64
				switch t.Kind {
				case TermConst:
					v = 1
				case TermNumeric:
					v = sources[t.Source].Float(i)
				case TermDummy:
					c := sources[t.Source]
					switch {
					case c.IsMissing(i):
						v = math.NaN()
					case c.String(i) == t.Level:
						v = 1
					}
				}
				design.Set(i, j, v)
			}
		}
	})
	return design, nil
}

// checkSources rejects text in numeric sources and category levels that were
// not seen during fit.
func checkSources(op string, terms []Term, sources map[string]*dataset.Column) error {
	levels := make(map[string]map[string]bool)
	for _, t := range terms {
		switch t.Kind {
		case TermNumeric:
			if c := sources[t.Source]; !c.DType().Numeric() {
				return errors.NewValidationError(t.Source, "column is not numeric", c.DType().String())
			}
		case TermDummy:
			if levels[t.Source] == nil {
				levels[t.Source] = map[string]bool{t.Reference: true}
			}
			levels[t.Source][t.Level] = true
		}
	}
	for src, known := range levels {
		c := sources[src]
		for i := 0; i < c.Len(); i++ {
			if v := c.String(i); !c.IsMissing(i) && !known[v] {
				return errors.NewValueError(op, "column "+src+" has level "+v+" not seen during fit")
			}
		}
	}
	return nil
}
