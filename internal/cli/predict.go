package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/internal/config"
	"github.com/YuminosukeSato/scigo-workbench/metrics"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

// modelSource is either a package file or a name in the store.
type modelSource struct {
	file   string
	stored string
}

func (s *modelSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.file, "model", "m", "", "model package file")
	cmd.Flags().StringVar(&s.stored, "stored", "", "name of a model in the store")
	cmd.MarkFlagsOneRequired("model", "stored")
	cmd.MarkFlagsMutuallyExclusive("model", "stored")
}

func (s *modelSource) load(ctx context.Context, cfg *config.Config) (model.Model, error) {
	if s.file != "" {
		return model.LoadModel(s.file)
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.LoadModel(ctx, s.stored)
}

type predictOptions struct {
	src       modelSource
	data      string
	delimiter string
	na        []string
	types     map[string]string
	out       string
}

func newPredictCommand(opts *globalOptions) *cobra.Command {
	po := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict with a saved model and write the predictions as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if po.out != "" {
				file, err := os.Create(po.out)
				if err != nil {
					return errors.Wrap(err, "failed to create output file")
				}
				defer file.Close()
				w = file
			}
			return runPredict(cmd.Context(), w, cmd.ErrOrStderr(), cfg, po)
		},
	}

	po.src.register(cmd)
	f := cmd.Flags()
	f.StringVarP(&po.data, "data", "d", "", "CSV file with the independent variables")
	f.StringVar(&po.delimiter, "delimiter", "", `field delimiter (default ",", "tab" for tabs)`)
	f.StringSliceVar(&po.na, "na", nil, "tokens read as missing values")
	f.StringToStringVar(&po.types, "types", nil, "column types, e.g. region=categorical")
	f.StringVarP(&po.out, "out", "o", "", "write predictions to this file instead of stdout")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runPredict(ctx context.Context, w, info io.Writer, cfg *config.Config, po *predictOptions) error {
	logger := log.GetLoggerWithName("predict")

	m, err := po.src.load(ctx, cfg)
	if err != nil {
		return err
	}
	X, err := readFrame(po.data, po.delimiter, po.na, po.types)
	if err != nil {
		return err
	}
	pred, err := m.Predict(X)
	if err != nil {
		return err
	}
	if err := dataset.WriteCSV(w, pred); err != nil {
		return err
	}
	logger.Info("predictions written", log.ModelNameKey, m.Name(), log.SamplesKey, pred.Len())

	// 目的変数の列があれば誤差も報告する
	for _, dv := range m.DVs() {
		if !X.Has(dv) {
			return nil
		}
	}
	y, err := X.Select(m.DVs()...)
	if err != nil {
		return err
	}
	mse, err := m.Evaluate(X, y)
	if err != nil {
		return err
	}
	fmt.Fprintf(info, "mse: %g\n", mse)

	col, err := y.Column(m.DVs()[0])
	if err != nil {
		return err
	}
	pcol, err := pred.Column(m.DVs()[0])
	if err != nil {
		return err
	}
	return writeScores(info, col.Floats(), pcol.Floats())
}

// writeScores reports RMSE, MAE, R², explained variance and MAPE over the rows
// where both the observation and the prediction are finite.
func writeScores(w io.Writer, observed, predicted []float64) error {
	var t, p []float64
	for i := range observed {
		if math.IsNaN(observed[i]) || math.IsNaN(predicted[i]) || math.IsInf(predicted[i], 0) {
			continue
		}
		t = append(t, observed[i])
		p = append(p, predicted[i])
	}
	if len(t) < 2 {
		return nil
	}
	yt, yp := mat.NewVecDense(len(t), t), mat.NewVecDense(len(p), p)
	rmse, err := metrics.RMSE(yt, yp)
	if err != nil {
		return err
	}
	mae, err := metrics.MAE(yt, yp)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "rmse: %g\nmae: %g\n", rmse, mae)
	// 観測値が定数のときR²と説明分散は定義されない
	if r2, err := metrics.R2Score(yt, yp); err == nil {
		fmt.Fprintf(w, "r2: %g\n", r2)
	}
	if ev, err := metrics.ExplainedVarianceScore(yt, yp); err == nil {
		fmt.Fprintf(w, "explained_variance: %g\n", ev)
	}
	// ゼロの観測値はMAPEから除外される
	if mape, err := metrics.MAPE(yt, yp); err == nil {
		fmt.Fprintf(w, "mape: %g%%\n", mape)
	}
	return nil
}

func readFrame(path, delimiter string, na []string, types map[string]string) (*dataset.Frame, error) {
	ropts, err := csvOptions(delimiter, na)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open data file")
	}
	defer file.Close()
	f, err := dataset.ReadCSV(file, append(ropts, dataset.WithSource(filepath.Base(path)))...)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return f, nil
	}
	dts := make(map[string]dataset.DType, len(types))
	for col, name := range types {
		if dts[col], err = dataset.ParseDType(name); err != nil {
			return nil, err
		}
	}
	return f.CoerceAll(dts)
}
