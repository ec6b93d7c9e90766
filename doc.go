// Package workbench is a regression workbench for Go: it loads tabular data,
// walks the user through choosing variables, fits Ordinary Least Squares
// models and reports statsmodels-style summaries with diagnostic plots.
//
// # Quick Start
//
// Fit a model directly on a frame:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/scigo-workbench/dataset"
//	    "github.com/YuminosukeSato/scigo-workbench/linear"
//	)
//
//	func main() {
//	    f, err := os.Open("houses.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer f.Close()
//
//	    frame, err := dataset.ReadCSV(f)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    X, _ := frame.Select("rooms", "area")
//	    y, _ := frame.Select("price")
//
//	    ols := linear.NewOLS()
//	    if err := ols.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//	    summary, _ := ols.Summary()
//	    fmt.Println(summary)
//	}
//
// Or drive the wizard picked from the model registry:
//
//	leaf, _ := registry.Default().Resolve("Supervised", "Regression", "Cross Sectional", "Linear", "OLS")
//	v, _ := leaf.New(registry.DefaultConfig())
//	_ = v.Load(file, "houses.csv")
//	_ = v.SetVariables([]string{"rooms", "area"}, []string{"price"})
//	_ = v.Fit()
//	report, _ := v.Output()
//
// # Packages
//
//   - dataset: Typed frames, CSV input and output, column indexes
//   - linear: Ordinary Least Squares with regression statistics
//   - core/model: The Model contract and the zip package format
//   - visualizer: The data loading, inference and output wizard with plots
//   - registry: The menu tree of available models
//   - metrics: Evaluation metrics (MSE, RMSE, MAE, R²)
//   - preprocessing: Column transforms (standardize, minmax, log, log1p)
//   - core/parallel: Parallel processing utilities
//   - pkg/errors, pkg/log: Error types and structured logging
//
// The scigo-workbench command (cmd/scigo-workbench) fits, predicts and
// summarizes from the shell and serves the wizard over HTTP.
//
// # License
//
// Released under the MIT License.
package workbench
