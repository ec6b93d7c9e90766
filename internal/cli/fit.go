package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/internal/config"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
	"github.com/YuminosukeSato/scigo-workbench/preprocessing"
	"github.com/YuminosukeSato/scigo-workbench/registry"
	"github.com/YuminosukeSato/scigo-workbench/visualizer"
)

type fitOptions struct {
	data        string
	delimiter   string
	na          []string
	types       map[string]string
	timeLayouts []string
	index       string
	transforms  map[string]string
	ivs         []string
	dvs         []string
	modelPath   string
	noIntercept bool
	out         string
	save        string
	plotsDir    string
}

func newFitCommand(opts *globalOptions) *cobra.Command {
	fo := &fitOptions{}

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a model on a CSV file and print its summary",
		Example: `  scigo-workbench fit --data houses.csv --ivs rooms,area --dvs price --out price.zip
  scigo-workbench fit --data sales.csv --types region=categorical --transform income=log --ivs region,income --dvs sales`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runFit(cmd.Context(), cmd.OutOrStdout(), cfg, fo)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fo.data, "data", "d", "", "CSV file to fit on")
	f.StringVar(&fo.delimiter, "delimiter", "", `field delimiter (default ",", "tab" for tabs)`)
	f.StringSliceVar(&fo.na, "na", nil, "tokens read as missing values")
	f.StringToStringVar(&fo.types, "types", nil, "column types, e.g. region=categorical,day=datetime")
	f.StringSliceVar(&fo.timeLayouts, "time-layout", nil, "extra time layouts for datetime columns")
	f.StringVar(&fo.index, "index", "", "index column")
	f.StringToStringVar(&fo.transforms, "transform", nil, "derived columns, e.g. income=log")
	f.StringSliceVar(&fo.ivs, "ivs", nil, "independent variables")
	f.StringSliceVar(&fo.dvs, "dvs", nil, "dependent variables")
	f.StringVar(&fo.modelPath, "model-path", DefaultModelPath, "registry path of the model")
	f.BoolVar(&fo.noIntercept, "no-intercept", false, "fit without a constant term")
	f.StringVarP(&fo.out, "out", "o", "", "write the model package to this file")
	f.StringVar(&fo.save, "save", "", "save the model package to the store under this name")
	f.StringVar(&fo.plotsDir, "plots-dir", "", "write diagnostic plots into this directory")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("ivs")
	_ = cmd.MarkFlagRequired("dvs")
	return cmd
}

func runFit(ctx context.Context, w io.Writer, cfg *config.Config, fo *fitOptions) error {
	logger := log.GetLoggerWithName("fit")

	leaf, err := registry.Default().Resolve(splitPath(fo.modelPath)...)
	if err != nil {
		return err
	}
	mc := registry.Config{Intercept: cfg.Model.Intercept && !fo.noIntercept}
	v, err := leaf.New(mc,
		visualizer.WithLogger(logger),
		visualizer.WithPlotSize(cfg.Plots.WidthIn, cfg.Plots.HeightIn),
	)
	if err != nil {
		return err
	}

	if err := loadCSV(v, fo.data, fo.delimiter, fo.na); err != nil {
		return err
	}
	if len(fo.types) > 0 {
		types := make(map[string]dataset.DType, len(fo.types))
		for col, name := range fo.types {
			dt, err := dataset.ParseDType(name)
			if err != nil {
				return err
			}
			types[col] = dt
		}
		var copts []dataset.CoerceOption
		if len(fo.timeLayouts) > 0 {
			copts = append(copts, dataset.WithTimeLayouts(fo.timeLayouts...))
		}
		if err := v.Coerce(types, copts...); err != nil {
			return err
		}
	}
	if fo.index != "" {
		if err := v.SetIndex(fo.index); err != nil {
			return err
		}
	}
	// 列ごとの変換は名前順に適用する
	cols := make([]string, 0, len(fo.transforms))
	for col := range fo.transforms {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		kind, err := preprocessing.ParseKind(fo.transforms[col])
		if err != nil {
			return err
		}
		if err := v.Transform(col, kind); err != nil {
			return err
		}
	}

	if err := v.SetVariables(fo.ivs, fo.dvs); err != nil {
		return err
	}
	if err := v.Fit(); err != nil {
		return err
	}
	report, err := v.Output()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, report.Summary)

	if fo.out != "" {
		if err := writePackage(v, fo.out); err != nil {
			return err
		}
		logger.Info("model package written", "path", fo.out)
	}
	if fo.save != "" {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		var buf bytes.Buffer
		if err := v.Package(&buf); err != nil {
			return err
		}
		entry, err := st.Put(ctx, fo.save, buf.Bytes())
		if err != nil {
			return err
		}
		logger.Info("model saved", log.StoreNameKey, entry.Name, log.DataSizeKey, entry.Size)
	}
	if fo.plotsDir != "" {
		return writePlots(v, report.Plots, fo.plotsDir, cfg.Plots.Format)
	}
	return nil
}

func loadCSV(v visualizer.Visualizer, path, delimiter string, na []string) error {
	ropts, err := csvOptions(delimiter, na)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open data file")
	}
	defer file.Close()
	return v.Load(file, filepath.Base(path), ropts...)
}

func csvOptions(delimiter string, na []string) ([]dataset.ReadOption, error) {
	var ropts []dataset.ReadOption
	if delimiter != "" {
		c, err := dataset.ParseDelimiter(delimiter)
		if err != nil {
			return nil, err
		}
		ropts = append(ropts, dataset.WithDelimiter(c))
	}
	if len(na) > 0 {
		ropts = append(ropts, dataset.WithNATokens(na...))
	}
	return ropts, nil
}

func writePackage(v visualizer.Visualizer, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create package file")
	}
	if err := v.Package(file); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "failed to close package file")
}

func writePlots(v visualizer.Visualizer, kinds []visualizer.PlotKind, dir, format string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create plots directory")
	}
	for _, kind := range kinds {
		var buf bytes.Buffer
		if err := v.Plot(kind, &buf, visualizer.WithFormat(format)); err != nil {
			return errors.Wrapf(err, "plot %s", kind)
		}
		path := filepath.Join(dir, string(kind)+"."+format)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
	}
	return nil
}
