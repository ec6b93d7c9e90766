package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/btree"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

const indexDegree = 16

// indexKey orders rows by the index column. Numeric dtypes compare by value,
// everything else by text; row breaks ties so duplicate keys are kept.
type indexKey struct {
	num float64
	str string
	row int
}

type rowIndex struct {
	column  string
	numeric bool
	tree    *btree.BTreeG[indexKey]
}

func lessKey(numeric bool) btree.LessFunc[indexKey] {
	return func(a, b indexKey) bool {
		if numeric {
			if a.num != b.num {
				return a.num < b.num
			}
		} else if a.str != b.str {
			return a.str < b.str
		}
		return a.row < b.row
	}
}

func buildIndex(c *Column) (*rowIndex, error) {
	idx := &rowIndex{
		column:  c.name,
		numeric: c.dtype.Numeric(),
		tree:    btree.NewG[indexKey](indexDegree, lessKey(c.dtype.Numeric())),
	}
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			return nil, errors.NewValidationError("index", "index column has a missing value at row "+strconv.Itoa(i), c.name)
		}
		idx.tree.ReplaceOrInsert(indexKey{num: c.Float(i), str: c.String(i), row: i})
	}
	return idx, nil
}

// SetIndex makes the named column the index and orders the rows by it.
func (f *Frame) SetIndex(name string) (*Frame, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	idx, err := buildIndex(c)
	if err != nil {
		return nil, err
	}

	order := make([]int, 0, f.nrows)
	idx.tree.Ascend(func(k indexKey) bool {
		order = append(order, k.row)
		return true
	})

	cols := make([]*Column, len(f.columns))
	for i, col := range f.columns {
		cols[i] = col.take(order)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	return out.withIndex(name)
}

// ResetIndex drops the index; the column itself stays in the frame.
func (f *Frame) ResetIndex() *Frame {
	out, _ := New(f.columns...)
	return out
}

// withIndex attaches an index without reordering rows.
func (f *Frame) withIndex(name string) (*Frame, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	idx, err := buildIndex(c)
	if err != nil {
		return nil, err
	}
	f.index = idx
	return f, nil
}

// Index returns the index column label, or "" when the frame has none.
func (f *Frame) Index() string {
	if f.index == nil {
		return ""
	}
	return f.index.column
}

// Loc returns the row positions whose index value equals key, in index order.
func (f *Frame) Loc(key string) ([]int, error) {
	if f.index == nil {
		return nil, errors.NewValueError("Frame.Loc", "frame has no index")
	}

	lo := indexKey{str: strings.TrimSpace(key), row: math.MinInt}
	if f.index.numeric {
		c, _ := f.Column(f.index.column)
		probe, err := NewStringColumn(c.name, []string{key}).coerce(c.dtype, nil)
		if err != nil {
			return nil, err
		}
		lo.num = probe.Float(0)
	}
	hi := lo
	hi.row = math.MaxInt

	var rows []int
	f.index.tree.AscendRange(lo, hi, func(k indexKey) bool {
		rows = append(rows, k.row)
		return true
	})
	if len(rows) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "index %q", key)
	}
	return rows, nil
}
