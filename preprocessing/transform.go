package preprocessing

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// Kind names a column transform applied by the wizard.
type Kind string

const (
	Standardize Kind = "standardize"
	MinMax      Kind = "minmax"
	Log         Kind = "log"
	Log1p       Kind = "log1p"
)

// Kinds lists the supported transforms.
var Kinds = []Kind{Standardize, MinMax, Log, Log1p}

// ParseKind accepts a Kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.NewValidationError("kind", "unknown transform", s)
}

// ColumnName is the label of a transformed column, e.g. "log(x)".
func ColumnName(column string, k Kind) string {
	return string(k) + "(" + column + ")"
}

// LogTransformer は要素ごとに自然対数を取る変換器
// Plus1 が true の場合は log(1+x) を計算する
type LogTransformer struct {
	Plus1 bool
}

// NewLogTransformer は log(x) または log(1+x) の変換器を作成する
func NewLogTransformer(plus1 bool) *LogTransformer {
	return &LogTransformer{Plus1: plus1}
}

// Fit は何もしない。Transformer インターフェースを満たすために存在する。
func (l *LogTransformer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("LogTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	return nil
}

// Transform は各要素の対数を返す。定義域外の値はValueErrorになる。
// NaN（欠損値）はそのまま残る。
func (l *LogTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			switch {
			case math.IsNaN(v):
				result.Set(i, j, v)
			case l.Plus1 && v > -1:
				result.Set(i, j, math.Log1p(v))
			case !l.Plus1 && v > 0:
				result.Set(i, j, math.Log(v))
			default:
				return nil, errors.NewValueError("LogTransformer.Transform",
					"value "+strconv.FormatFloat(v, 'g', -1, 64)+" at row "+strconv.Itoa(i)+" is outside the domain of the logarithm")
			}
		}
	}
	return result, nil
}

// FitTransform はFitとTransformを同時に実行する
func (l *LogTransformer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := l.Fit(X); err != nil {
		return nil, err
	}
	return l.Transform(X)
}

// NewTransformer returns a fresh transformer for k.
func NewTransformer(k Kind) (model.Transformer, error) {
	switch k {
	case Standardize:
		return NewStandardScalerDefault(), nil
	case MinMax:
		return NewMinMaxScalerDefault(), nil
	case Log:
		return NewLogTransformer(false), nil
	case Log1p:
		return NewLogTransformer(true), nil
	}
	return nil, errors.NewValidationError("kind", "unknown transform", string(k))
}

// Apply transforms a numeric column and returns a frame with the result added
// as ColumnName(column, k). The input frame is not modified; on error no frame
// is returned.
func Apply(f *dataset.Frame, column string, k Kind) (*dataset.Frame, error) {
	c, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return nil, errors.NewModelError("preprocessing.Apply", "empty data", errors.ErrEmptyData)
	}
	if !c.DType().Numeric() {
		return nil, errors.NewValidationError(column, "column is not numeric", c.DType().String())
	}
	name := ColumnName(column, k)
	if f.Has(name) {
		return nil, errors.NewValidationError(name, "column already exists", name)
	}

	tr, err := NewTransformer(k)
	if err != nil {
		return nil, err
	}
	out, err := tr.FitTransform(mat.NewDense(c.Len(), 1, c.Floats()))
	if err != nil {
		return nil, errors.Wrapf(err, "transform %s", column)
	}
	return f.WithColumn(dataset.NewFloatColumn(name, mat.Col(nil, 0, out)))
}
