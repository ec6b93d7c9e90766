// Package model defines the contract every workbench model implements and
// the package format models are saved in.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-workbench/dataset"
)

// Model is a supervised model trained on labelled frames.
//
// Predict, Evaluate, Summary and Serialize fail with a NotFittedError until
// Fit or Load has succeeded. Refitting replaces all fitted state.
type Model interface {
	// Name is the model kind, e.g. "OLS".
	Name() string
	Description() string
	IsFitted() bool

	// IVs and DVs are the independent and dependent variable names recorded
	// at fit time.
	IVs() []string
	DVs() []string

	Fit(X, y *dataset.Frame) error
	// Predict returns a frame whose columns are labelled with DVs.
	Predict(X *dataset.Frame) (*dataset.Frame, error)
	// Evaluate returns the mean squared error of Predict(X) against y.
	Evaluate(X, y *dataset.Frame) (float64, error)
	Summary() (string, error)

	Serialize() (*Serialized, error)
	// Load reconstructs a fitted model in place.
	Load(s *Serialized) error
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Factory creates an unfitted model.
type Factory func() Model
