package linear

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Stat is a statistic that encodes NaN and ±Inf as JSON null, e.g. the
// F-statistic of an intercept-only model.
type Stat float64

// MarshalJSON implements json.Marshaler.
func (s Stat) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Stat(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = Stat(f)
	return nil
}

// CoefStat is one row of the coefficient table.
type CoefStat struct {
	Name    string `json:"name"`
	Coef    Stat   `json:"coef"`
	StdErr  Stat   `json:"std_err"`
	T       Stat   `json:"t"`
	P       Stat   `json:"p"`
	CILower Stat   `json:"ci_lower"`
	CIUpper Stat   `json:"ci_upper"`
}

// Results holds the statistics of a fitted OLS model.
type Results struct {
	DepVariable string `json:"dep_variable"`
	NObs        int    `json:"nobs"`
	DroppedRows int    `json:"dropped_rows"`
	DFModel     int    `json:"df_model"`
	DFResid     int    `json:"df_resid"`
	Rank        int    `json:"rank"`
	Intercept   bool   `json:"intercept"`

	RSquared      Stat `json:"r_squared"`
	AdjRSquared   Stat `json:"adj_r_squared"`
	FStatistic    Stat `json:"f_statistic"`
	FPValue       Stat `json:"f_pvalue"`
	LogLikelihood Stat `json:"log_likelihood"`
	AIC           Stat `json:"aic"`
	BIC           Stat `json:"bic"`
	Scale         Stat `json:"scale"`
	MSE           Stat `json:"mse"`

	DurbinWatson Stat `json:"durbin_watson"`
	JarqueBera   Stat `json:"jarque_bera"`
	JBPValue     Stat `json:"jb_pvalue"`
	Skew         Stat `json:"skew"`
	Kurtosis     Stat `json:"kurtosis"`
	CondNo       Stat `json:"cond_no"`

	Coefficients []CoefStat `json:"coefficients"`
}

// computeResults derives the summary statistics from a solved fit.
func computeResults(depVar string, intercept bool, st *fitState) *Results {
	n := len(st.observed)
	nf := float64(n)
	kConst := 0
	if intercept {
		kConst = 1
	}
	dfResid := n - st.rank
	dfModel := st.rank - kConst

	ssr := floats.Dot(st.resid, st.resid)
	var tss float64
	if intercept {
		mean := stat.Mean(st.observed, nil)
		for _, v := range st.observed {
			tss += (v - mean) * (v - mean)
		}
	} else {
		tss = floats.Dot(st.observed, st.observed)
	}

	nan := math.NaN()
	r := &Results{
		DepVariable: depVar,
		NObs:        n,
		DFModel:     dfModel,
		DFResid:     dfResid,
		Rank:        st.rank,
		Intercept:   intercept,
		MSE:         Stat(ssr / nf),
	}

	r2, adj, scale, fstat, fp := nan, nan, nan, nan, nan
	if tss > 0 {
		r2 = 1 - ssr/tss
	}
	if dfResid > 0 {
		scale = ssr / float64(dfResid)
		adj = 1 - (nf-float64(kConst))/float64(dfResid)*(1-r2)
		if dfModel > 0 && ssr > 0 {
			fstat = ((tss - ssr) / float64(dfModel)) / scale
			fp = distuv.F{D1: float64(dfModel), D2: float64(dfResid)}.Survival(fstat)
		}
	}
	r.RSquared, r.AdjRSquared, r.Scale = Stat(r2), Stat(adj), Stat(scale)
	r.FStatistic, r.FPValue = Stat(fstat), Stat(fp)

	llf := -nf / 2 * (math.Log(2*math.Pi) + math.Log(ssr/nf) + 1)
	k := float64(st.rank)
	r.LogLikelihood = Stat(llf)
	r.AIC = Stat(-2*llf + 2*k)
	r.BIC = Stat(-2*llf + math.Log(nf)*k)

	var dw float64
	for i := 1; i < n; i++ {
		d := st.resid[i] - st.resid[i-1]
		dw += d * d
	}
	r.DurbinWatson = Stat(dw / ssr)

	skew, kurt := nan, nan
	if m2 := stat.Moment(2, st.resid, nil); m2 > 0 {
		skew = stat.Moment(3, st.resid, nil) / math.Pow(m2, 1.5)
		kurt = stat.Moment(4, st.resid, nil) / (m2 * m2)
	}
	jb := nf / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	r.Skew, r.Kurtosis, r.JarqueBera = Stat(skew), Stat(kurt), Stat(jb)
	r.JBPValue = Stat(distuv.ChiSquared{K: 2}.Survival(jb))
	if smin := st.singular[len(st.singular)-1]; smin > 0 {
		r.CondNo = Stat(st.singular[0] / smin)
	} else {
		r.CondNo = Stat(math.Inf(1))
	}

	q := nan
	var tdist distuv.StudentsT
	if dfResid > 0 {
		tdist = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}
		q = tdist.Quantile(0.975)
	}
	r.Coefficients = make([]CoefStat, len(st.terms))
	for i, t := range st.terms {
		b := st.coef.AtVec(i)
		se := math.Sqrt(st.normCov.At(i, i) * scale)
		tv, pv := nan, nan
		if dfResid > 0 && se > 0 {
			tv = b / se
			pv = 2 * tdist.Survival(math.Abs(tv))
		}
		r.Coefficients[i] = CoefStat{
			Name:    t.Name,
			Coef:    Stat(b),
			StdErr:  Stat(se),
			T:       Stat(tv),
			P:       Stat(pv),
			CILower: Stat(b - q*se),
			CIUpper: Stat(b + q*se),
		}
	}
	return r
}

// String renders the results as a plain text table.
func (r *Results) String() string {
	const width = 78
	var b strings.Builder
	rule := func(c byte) { b.WriteString(strings.Repeat(string(c), width) + "\n") }
	pair := func(l1 string, v1 string, l2 string, v2 string) {
		fmt.Fprintf(&b, "%-20s%18s   %-20s%17s\n", l1, v1, l2, v2)
	}

	fmt.Fprintf(&b, "%*s\n", (width+len("OLS Regression Results"))/2, "OLS Regression Results")
	rule('=')
	pair("Dep. Variable:", r.DepVariable, "R-squared:", fmtStat(r.RSquared, 3))
	pair("Model:", Name, "Adj. R-squared:", fmtStat(r.AdjRSquared, 3))
	pair("Method:", "Least Squares", "F-statistic:", fmtStat(r.FStatistic, 4))
	pair("No. Observations:", fmt.Sprint(r.NObs), "Prob (F-statistic):", fmtStat(r.FPValue, 3))
	pair("Df Residuals:", fmt.Sprint(r.DFResid), "Log-Likelihood:", fmtStat(r.LogLikelihood, 3))
	pair("Df Model:", fmt.Sprint(r.DFModel), "AIC:", fmtStat(r.AIC, 4))
	pair("Dropped Rows:", fmt.Sprint(r.DroppedRows), "BIC:", fmtStat(r.BIC, 4))
	rule('=')

	nameWidth := 10
	for _, c := range r.Coefficients {
		if len(c.Name) > nameWidth {
			nameWidth = len(c.Name)
		}
	}
	fmt.Fprintf(&b, "%-*s %10s %10s %9s %8s %10s %10s\n", nameWidth, "", "coef", "std err", "t", "P>|t|", "[0.025", "0.975]")
	rule('-')
	for _, c := range r.Coefficients {
		fmt.Fprintf(&b, "%-*s %10s %10s %9s %8s %10s %10s\n", nameWidth, c.Name,
			fmtStat(c.Coef, 4), fmtStat(c.StdErr, 3), fmtStat(c.T, 3), fmtStat(c.P, 3),
			fmtStat(c.CILower, 3), fmtStat(c.CIUpper, 3))
	}
	rule('=')
	pair("Durbin-Watson:", fmtStat(r.DurbinWatson, 3), "Jarque-Bera (JB):", fmtStat(r.JarqueBera, 3))
	pair("Skew:", fmtStat(r.Skew, 3), "Prob(JB):", fmtStat(r.JBPValue, 3))
	pair("Kurtosis:", fmtStat(r.Kurtosis, 3), "Cond. No.:", fmtStat(r.CondNo, 3))
	rule('=')
	if r.Rank < len(r.Coefficients) {
		fmt.Fprintf(&b, "Note: the design matrix has rank %d < %d columns; coefficients are the minimum-norm solution.\n",
			r.Rank, len(r.Coefficients))
	}
	return b.String()
}

func fmtStat(s Stat, prec int) string {
	f := float64(s)
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 0):
		return "inf"
	case f != 0 && (math.Abs(f) >= 1e6 || math.Abs(f) < 1e-3):
		return fmt.Sprintf("%.*e", prec-1, f)
	}
	return fmt.Sprintf("%.*f", prec, f)
}
