package linear

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

func frame(t testing.TB, cols ...*dataset.Column) *dataset.Frame {
	t.Helper()
	f, err := dataset.New(cols...)
	if err != nil {
		t.Fatalf("dataset.New() error = %v", err)
	}
	return f
}

// randomXY returns 100 rows of x1, x2 and y = 1.5 + 2 x1 - 0.5 x2 + noise.
func randomXY(t testing.TB, seed uint64) (*dataset.Frame, *dataset.Frame) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	n := 100
	x1, x2, y := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		y[i] = 1.5 + 2*x1[i] - 0.5*x2[i] + 0.1*rng.NormFloat64()
	}
	return frame(t, dataset.NewFloatColumn("x1", x1), dataset.NewFloatColumn("x2", x2)),
		frame(t, dataset.NewFloatColumn("y", y))
}

func captureWarnings(t *testing.T) func() []error {
	t.Helper()
	var mu sync.Mutex
	var got []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, w)
	})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		return append([]error(nil), got...)
	}
}

func newTestOLS(opts ...Option) *OLS {
	_, logger := log.NewTestLoggerProvider(log.LevelDebug)
	return NewOLS(append([]Option{WithLogger(logger)}, opts...)...)
}

func TestOLS_Basic(t *testing.T) {
	// y = 2x + 1
	X := frame(t, dataset.NewFloatColumn("x", []float64{1, 2, 3, 4}))
	y := frame(t, dataset.NewFloatColumn("y", []float64{3, 5, 7, 9}))

	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	coef, err := m.Coefficients()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(coef["x"]-2) > 1e-9 {
		t.Errorf("Expected coefficient ~2.0, got %f", coef["x"])
	}
	if math.Abs(coef[ConstName]-1) > 1e-9 {
		t.Errorf("Expected intercept ~1.0, got %f", coef[ConstName])
	}

	pred, err := m.Predict(frame(t, dataset.NewFloatColumn("x", []float64{5, 6})))
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	if got := pred.Names(); len(got) != 1 || got[0] != "y" {
		t.Errorf("prediction columns = %v, want [y]", got)
	}
	c := pred.Columns()[0]
	expected := []float64{11, 13}
	for i := range expected {
		if math.Abs(c.Float(i)-expected[i]) > 1e-9 {
			t.Errorf("Expected prediction %f, got %f", expected[i], c.Float(i))
		}
	}
}

func TestOLS_NoIntercept(t *testing.T) {
	// y = 2x
	X := frame(t, dataset.NewFloatColumn("x", []float64{1, 2, 3, 4}))
	y := frame(t, dataset.NewFloatColumn("y", []float64{2, 4, 6, 8}))

	m := newTestOLS(WithIntercept(false))
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	params, _ := m.Params()
	if len(params) != 1 || math.Abs(params[0]-2) > 1e-9 {
		t.Errorf("Params() = %v, want [2]", params)
	}
	if ivs := m.IVs(); len(ivs) != 1 || ivs[0] != "x" {
		t.Errorf("IVs() = %v, want [x]", ivs)
	}
}

func TestOLS_NotFitted(t *testing.T) {
	m := newTestOLS()
	X, y := randomXY(t, 1)

	if m.IsFitted() {
		t.Fatal("new model reports fitted")
	}

	calls := map[string]func() error{
		"Predict":      func() error { _, err := m.Predict(X); return err },
		"Evaluate":     func() error { _, err := m.Evaluate(X, y); return err },
		"Summary":      func() error { _, err := m.Summary(); return err },
		"Serialize":    func() error { _, err := m.Serialize(); return err },
		"Coefficients": func() error { _, err := m.Coefficients(); return err },
		"Results":      func() error { _, err := m.Results(); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, errors.ErrModelNotFitted) {
				t.Errorf("%s() error = %v, want ErrModelNotFitted", name, err)
			}
		})
	}
}

func TestOLS_SerializeMetadata(t *testing.T) {
	X, y := randomXY(t, 7)
	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	s, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	md := s.Metadata
	if md.Name != "OLS" || md.Description != "Ordinary Least Squares" {
		t.Errorf("name/description = %q/%q", md.Name, md.Description)
	}
	if strings.Join(md.IVs, ",") != "const,x1,x2" {
		t.Errorf("ivs = %v, want [const x1 x2]", md.IVs)
	}
	if strings.Join(md.DVs, ",") != "y" {
		t.Errorf("dvs = %v, want [y]", md.DVs)
	}
	if !strings.HasPrefix(md.Model, "OLS_") {
		t.Errorf("artifact name %q does not start with OLS_", md.Model)
	}

	params, _ := m.Params()
	if len(params) != 3 {
		t.Fatalf("len(Params()) = %d, want 3", len(params))
	}
	want := []float64{1.5, 2, -0.5}
	for i := range want {
		if math.Abs(params[i]-want[i]) > 0.1 {
			t.Errorf("param %d = %v, want ~%v", i, params[i], want[i])
		}
	}

	mse, err := m.Evaluate(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if mse < 0 || mse > 0.05 {
		t.Errorf("Evaluate() = %v", mse)
	}
}

func TestOLS_RoundTrip(t *testing.T) {
	X, y := randomXY(t, 3)
	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	s, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := model.Open(s)
	if err != nil {
		t.Fatalf("model.Open() error = %v", err)
	}
	if !loaded.IsFitted() {
		t.Fatal("loaded model is not fitted")
	}

	p1, _ := m.Predict(X)
	p2, err := loaded.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	a, b := p1.Columns()[0].Floats(), p2.Columns()[0].Floats()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("prediction %d differs: %v != %v", i, a[i], b[i])
		}
	}

	s1, _ := m.Summary()
	s2, _ := loaded.Summary()
	if s1 != s2 {
		t.Errorf("summaries differ:\n%s\n%s", s1, s2)
	}
	if strings.Join(loaded.IVs(), ",") != "const,x1,x2" {
		t.Errorf("loaded IVs = %v", loaded.IVs())
	}
}

// Loading packages while other goroutines predict must never mix the
// coefficients of one package with the dependent variable of another.
func TestOLS_ConcurrentLoad(t *testing.T) {
	X, y := randomXY(t, 5)
	z := frame(t, dataset.NewFloatColumn("z", y.Columns()[0].Floats()))

	withConst, noConst := newTestOLS(), newTestOLS(WithIntercept(false))
	if err := withConst.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := noConst.Fit(X, z); err != nil {
		t.Fatal(err)
	}
	want := map[string][]float64{}
	packages := make([]*model.Serialized, 0, 2)
	for _, src := range []*OLS{withConst, noConst} {
		p, err := src.Predict(X)
		if err != nil {
			t.Fatal(err)
		}
		want[p.Names()[0]] = p.Columns()[0].Floats()
		s, err := src.Serialize()
		if err != nil {
			t.Fatal(err)
		}
		packages = append(packages, s)
	}

	m := newTestOLS()
	if err := m.Load(packages[0]); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := m.Load(packages[i%2]); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = m.Intercept()
				p, err := m.Predict(X)
				if err != nil {
					t.Error(err)
					return
				}
				ref, ok := want[p.Names()[0]]
				if !ok {
					t.Errorf("unexpected prediction column %v", p.Names())
					return
				}
				if got := p.Columns()[0].Floats(); got[0] != ref[0] || got[len(got)-1] != ref[len(ref)-1] {
					t.Errorf("predictions of %s do not match its package", p.Names()[0])
					return
				}
				s, err := m.Serialize()
				if err != nil {
					t.Error(err)
					return
				}
				if hasConst := s.Metadata.IVs[0] == "const"; hasConst != (s.Metadata.DVs[0] == "y") {
					t.Errorf("metadata mixes two packages: ivs=%v dvs=%v", s.Metadata.IVs, s.Metadata.DVs)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestOLS_LoadRejectsOtherModel(t *testing.T) {
	X, y := randomXY(t, 3)
	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Serialize()

	bad := *s
	bad.Metadata.Name = "Ridge"
	fresh := newTestOLS()
	if err := fresh.Load(&bad); err == nil {
		t.Error("Load() accepted a non-OLS package")
	}
	if fresh.IsFitted() {
		t.Error("failed Load() marked the model fitted")
	}

	bad = *s
	bad.Artifact = []byte("garbage")
	if err := fresh.Load(&bad); err == nil {
		t.Error("Load() accepted a corrupt artifact")
	}

	bad = *s
	bad.Metadata.IVs = []string{"const", "x1"}
	if err := fresh.Load(&bad); err == nil {
		t.Error("Load() accepted mismatched ivs")
	}
}

func TestOLS_RefitOverwrites(t *testing.T) {
	m := newTestOLS()
	X1, y1 := randomXY(t, 11)
	if err := m.Fit(X1, y1); err != nil {
		t.Fatal(err)
	}

	X2 := frame(t, dataset.NewFloatColumn("z", []float64{1, 2, 3, 4, 5}))
	y2 := frame(t, dataset.NewFloatColumn("w", []float64{1, 3, 5, 7, 9.5}))
	if err := m.Fit(X2, y2); err != nil {
		t.Fatal(err)
	}

	coef, _ := m.Coefficients()
	if len(coef) != 2 {
		t.Fatalf("Coefficients() = %v, want const and z only", coef)
	}
	if _, ok := coef["x1"]; ok {
		t.Error("coefficient from the first fit survived the refit")
	}
	if strings.Join(m.DVs(), ",") != "w" {
		t.Errorf("DVs() = %v, want [w]", m.DVs())
	}
	d, _ := m.Diagnostics()
	if len(d.Fitted) != 5 {
		t.Errorf("len(Fitted) = %d, want 5", len(d.Fitted))
	}
}

func TestOLS_FailedRefitKeepsState(t *testing.T) {
	m := newTestOLS()
	X, y := randomXY(t, 5)
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	before, _ := m.Params()

	bad := frame(t, dataset.NewFloatColumn("y", []float64{1, 2}))
	if err := m.Fit(X, bad); err == nil {
		t.Fatal("Fit() with mismatched rows should fail")
	}
	after, _ := m.Params()
	if len(after) != len(before) || after[1] != before[1] {
		t.Error("failed Fit() changed the fitted state")
	}
}

func TestOLS_KnownStatistics(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	yv := []float64{2.1, 3.9, 6.2, 7.8, 10.1}
	m := newTestOLS()
	if err := m.Fit(frame(t, dataset.NewFloatColumn("x", x)), frame(t, dataset.NewFloatColumn("y", yv))); err != nil {
		t.Fatal(err)
	}
	r, err := m.Results()
	if err != nil {
		t.Fatal(err)
	}

	// slope 1.99, intercept 0.05; residuals 0.06 -0.13 0.18 -0.21 0.10
	ssr := 0.107
	tss := 39.708
	scale := ssr / 3
	seSlope := math.Sqrt(scale / 10)
	llf := -2.5 * (math.Log(2*math.Pi) + math.Log(ssr/5) + 1)

	tests := []struct {
		name string
		got  Stat
		want float64
	}{
		{"intercept", r.Coefficients[0].Coef, 0.05},
		{"slope", r.Coefficients[1].Coef, 1.99},
		{"std err", r.Coefficients[1].StdErr, seSlope},
		{"t", r.Coefficients[1].T, 1.99 / seSlope},
		{"r squared", r.RSquared, 1 - ssr/tss},
		{"adj r squared", r.AdjRSquared, 1 - 4.0/3.0*(ssr/tss)},
		{"f statistic", r.FStatistic, (tss - ssr) / scale},
		{"durbin watson", r.DurbinWatson, 0.3804 / ssr},
		{"log likelihood", r.LogLikelihood, llf},
		{"aic", r.AIC, -2*llf + 4},
		{"bic", r.BIC, -2*llf + 2*math.Log(5)},
	}
	for _, tt := range tests {
		if math.Abs(float64(tt.got)-tt.want) > 1e-6 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if r.NObs != 5 || r.DFModel != 1 || r.DFResid != 3 || r.Rank != 2 {
		t.Errorf("nobs/df = %d/%d/%d/%d", r.NObs, r.DFModel, r.DFResid, r.Rank)
	}
	if p := float64(r.Coefficients[1].P); p <= 0 || p > 1e-3 {
		t.Errorf("slope p-value = %v", p)
	}
	if lo, hi := float64(r.Coefficients[1].CILower), float64(r.Coefficients[1].CIUpper); !(lo < 1.99 && 1.99 < hi) {
		t.Errorf("confidence interval [%v, %v] does not contain the estimate", lo, hi)
	}
}

func TestOLS_Summary(t *testing.T) {
	X, y := randomXY(t, 2)
	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	s, err := m.Summary()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"OLS Regression Results", "Dep. Variable:", "R-squared:", "F-statistic:",
		"Durbin-Watson:", "const", "x1", "x2", "P>|t|", "[0.025", "AIC:", "BIC:"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary is missing %q\n%s", want, s)
		}
	}
}

func TestOLS_CategoricalDummies(t *testing.T) {
	warnings := captureWarnings(t)

	g := dataset.NewStringColumn("group", []string{"a", "b", "c", "a", "b", "c", "a", "b"})
	x := dataset.NewFloatColumn("x", []float64{1, 2, 3, 4, 5, 6, 7, 8})
	X := frame(t, x, g)
	X, err := X.Coerce("group", dataset.Categorical)
	if err != nil {
		t.Fatal(err)
	}
	// y = 1 + x + 2 [b] + 5 [c]
	y := frame(t, dataset.NewFloatColumn("y", []float64{2, 5, 9, 5, 8, 12, 8, 11}))

	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(m.IVs(), ","); got != "const,x,group[T.b],group[T.c]" {
		t.Errorf("IVs() = %s", got)
	}
	coef, _ := m.Coefficients()
	for name, want := range map[string]float64{"const": 1, "x": 1, "group[T.b]": 2, "group[T.c]": 5} {
		if math.Abs(coef[name]-want) > 1e-8 {
			t.Errorf("coef[%s] = %v, want %v", name, coef[name], want)
		}
	}

	var conv *errors.DataConversionWarning
	found := false
	for _, w := range warnings() {
		if errors.As(w, &conv) && conv.Column == "group" {
			found = true
		}
	}
	if !found {
		t.Errorf("no DataConversionWarning for group; got %v", warnings())
	}

	// an unseen level cannot be predicted
	Xnew := frame(t, dataset.NewFloatColumn("x", []float64{1}), dataset.NewStringColumn("group", []string{"z"}))
	if _, err := m.Predict(Xnew); err == nil {
		t.Error("Predict() accepted an unseen level")
	}
	// the reference level predicts without dummies
	Xref := frame(t, dataset.NewFloatColumn("x", []float64{10}), dataset.NewStringColumn("group", []string{"a"}))
	pred, err := m.Predict(Xref)
	if err != nil {
		t.Fatal(err)
	}
	if v := pred.Columns()[0].Float(0); math.Abs(v-11) > 1e-8 {
		t.Errorf("prediction = %v, want 11", v)
	}
}

func TestOLS_RankDeficient(t *testing.T) {
	warnings := captureWarnings(t)

	x1 := []float64{1, 2, 3, 4, 5, 6}
	x2 := make([]float64, len(x1))
	for i, v := range x1 {
		x2[i] = 2 * v
	}
	X := frame(t, dataset.NewFloatColumn("x1", x1), dataset.NewFloatColumn("x2", x2))
	y := frame(t, dataset.NewFloatColumn("y", []float64{1.1, 1.9, 3.2, 3.9, 5.1, 6.0}))

	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("rank deficient design should still fit: %v", err)
	}
	r, _ := m.Results()
	if r.Rank != 2 {
		t.Errorf("Rank = %d, want 2", r.Rank)
	}

	var rw *errors.RankWarning
	found := false
	for _, w := range warnings() {
		if errors.As(w, &rw) {
			found = rw.Rank == 2 && rw.Columns == 3
		}
	}
	if !found {
		t.Errorf("no RankWarning; got %v", warnings())
	}

	// minimum norm: the collinear pair shares the effect as b1 = b2 / 2
	params, _ := m.Params()
	if math.Abs(params[2]-2*params[1]) > 1e-8 {
		t.Errorf("params = %v, not the minimum-norm solution", params)
	}
	s, _ := m.Summary()
	if !strings.Contains(s, "rank 2 < 3") {
		t.Errorf("summary does not note the rank deficiency:\n%s", s)
	}
}

func TestOLS_MissingRowsDropped(t *testing.T) {
	X := frame(t, dataset.NewFloatColumn("x", []float64{1, 2, math.NaN(), 4, 5}))
	y := frame(t, dataset.NewFloatColumn("y", []float64{3, 5, 100, math.NaN(), 11}))

	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	r, _ := m.Results()
	if r.NObs != 3 || r.DroppedRows != 2 {
		t.Errorf("nobs = %d dropped = %d, want 3 and 2", r.NObs, r.DroppedRows)
	}
	d, _ := m.Diagnostics()
	if len(d.Rows) != 3 || d.Rows[2] != 4 {
		t.Errorf("Rows = %v", d.Rows)
	}

	pred, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(pred.Columns()[0].Float(2)) {
		t.Error("prediction for a row with a missing input should be NaN")
	}
	mse, err := m.Evaluate(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if mse > 1e-12 {
		t.Errorf("Evaluate() = %v, want 0 on an exact fit", mse)
	}
}

func TestOLS_InputErrors(t *testing.T) {
	X, y := randomXY(t, 9)
	text := frame(t, dataset.NewStringColumn("y", strings.Split(strings.Repeat("a,", 100)[:199], ",")))

	tests := []struct {
		name string
		X, y *dataset.Frame
	}{
		{"nil X", nil, y},
		{"two dvs", X, frame(t, dataset.NewFloatColumn("a", make([]float64, 100)), dataset.NewFloatColumn("b", make([]float64, 100)))},
		{"row mismatch", X, frame(t, dataset.NewFloatColumn("y", []float64{1}))},
		{"text dv", X, text},
		{"reserved const", frame(t, dataset.NewFloatColumn("const", make([]float64, 100))), y},
		{"all missing", frame(t, dataset.NewFloatColumn("x", []float64{math.NaN(), math.NaN()})), frame(t, dataset.NewFloatColumn("y", []float64{1, 2}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestOLS()
			if err := m.Fit(tt.X, tt.y); err == nil {
				t.Error("Fit() should fail")
			}
			if m.IsFitted() {
				t.Error("model marked fitted after a failed Fit()")
			}
		})
	}
}

func TestOLS_PredictMissingColumn(t *testing.T) {
	X, y := randomXY(t, 4)
	m := newTestOLS()
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	onlyX1, _ := X.Select("x1")
	_, err := m.Predict(onlyX1)
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("Predict() error = %v, want DimensionError", err)
	}
}

func TestOLS_ParallelDesign(t *testing.T) {
	n := 3000
	x := make([]float64, n)
	yv := make([]float64, n)
	for i := range x {
		x[i] = float64(i) / 100
		yv[i] = 4 - 3*x[i]
	}
	X := frame(t, dataset.NewFloatColumn("x", x))
	y := frame(t, dataset.NewFloatColumn("y", yv))

	seq := newTestOLS(WithParallelThreshold(n + 1))
	par := newTestOLS(WithParallelThreshold(10))
	for _, m := range []*OLS{seq, par} {
		if err := m.Fit(X, y); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := seq.Params()
	b, _ := par.Params()
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			t.Errorf("param %d: sequential %v, parallel %v", i, a[i], b[i])
		}
	}
}

func TestOLS_LogsFit(t *testing.T) {
	_, logger := log.NewTestLoggerProvider(log.LevelDebug)
	m := NewOLS(WithLogger(logger))
	X, y := randomXY(t, 8)
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if !logger.ContainsMessage("fit completed") {
		t.Error("fit completed was not logged")
	}
	if !logger.ContainsField(log.OperationKey, log.OperationFit) {
		t.Error("operation field missing")
	}
}
