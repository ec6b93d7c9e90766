// Package metrics provides regression metrics over gonum vectors and matrices.
//
// The workbench reports MSE as the evaluation score of every model; the other
// metrics appear in fit results and the CLI output.
package metrics
