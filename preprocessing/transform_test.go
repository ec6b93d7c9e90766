package preprocessing

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

func sampleFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	f, err := dataset.New(
		dataset.NewFloatColumn("x", []float64{1, math.E, math.NaN(), math.E * math.E}),
		dataset.NewStringColumn("name", []string{"a", "b", "c", "d"}),
	)
	assert.NilError(t, err)
	return f
}

func TestApply(t *testing.T) {
	f := sampleFrame(t)

	tests := []struct {
		kind Kind
		want []float64
	}{
		{Log, []float64{0, 1, math.NaN(), 2}},
		{Log1p, []float64{math.Log1p(1), math.Log1p(math.E), math.NaN(), math.Log1p(math.E * math.E)}},
		{MinMax, []float64{0, (math.E - 1) / (math.E*math.E - 1), math.NaN(), 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			out, err := Apply(f, "x", tt.kind)
			assert.NilError(t, err)
			assert.Equal(t, out.Width(), f.Width()+1)

			c, err := out.Column(ColumnName("x", tt.kind))
			assert.NilError(t, err)
			for i, want := range tt.want {
				if math.IsNaN(want) {
					assert.Assert(t, c.IsMissing(i), "row %d", i)
					continue
				}
				assert.Assert(t, math.Abs(c.Float(i)-want) < 1e-12, "row %d: got %v want %v", i, c.Float(i), want)
			}
		})
	}
	// the source frame is untouched
	assert.Equal(t, f.Width(), 2)
}

func TestApplyStandardize(t *testing.T) {
	f, err := dataset.New(dataset.NewFloatColumn("x", []float64{2, 4, 6}))
	assert.NilError(t, err)
	out, err := Apply(f, "x", Standardize)
	assert.NilError(t, err)
	c, _ := out.Column("standardize(x)")
	assert.Assert(t, math.Abs(c.Float(1)) < 1e-12)
	assert.Assert(t, c.Float(2) > 0)
}

func TestApplyErrors(t *testing.T) {
	f := sampleFrame(t)

	_, err := Apply(f, "name", Log)
	var ve *errors.ValidationError
	assert.Assert(t, errors.As(err, &ve), "got %v", err)

	_, err = Apply(f, "missing", Log)
	assert.Assert(t, errors.Is(err, errors.ErrNotFound))

	neg, _ := dataset.New(dataset.NewFloatColumn("x", []float64{1, 0}))
	_, err = Apply(neg, "x", Log)
	assert.ErrorContains(t, err, "outside the domain")

	_, err = Apply(neg, "x", Log1p)
	assert.NilError(t, err)

	once, err := Apply(f, "x", Log)
	assert.NilError(t, err)
	_, err = Apply(once, "x", Log)
	assert.ErrorContains(t, err, "already exists")
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" LOG1P ")
	assert.NilError(t, err)
	assert.Equal(t, k, Log1p)

	_, err = ParseKind("sqrt")
	assert.Assert(t, err != nil)
}
