package model

import (
	"sync"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// NotFitted はモデルが未学習の状態
	NotFitted EstimatorState = iota
	// Fitted はモデルが学習済みの状態
	Fitted
)

// BaseEstimator は全てのモデルの基底となる構造体
//
// 学習状態に加えて、モデル名・説明と学習時に記録した説明変数名(ivs)・
// 目的変数名(dvs)を保持する。
type BaseEstimator struct {
	mu          sync.RWMutex
	state       EstimatorState
	name        string
	description string
	ivs         []string
	dvs         []string
}

// Init はモデル名と説明を設定する。モデルのコンストラクタから呼ぶ。
func (e *BaseEstimator) Init(name, description string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
	e.description = description
}

// Name はモデル名を返す
func (e *BaseEstimator) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name
}

// Description はモデルの説明を返す
func (e *BaseEstimator) Description() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.description
}

// SetDescription replaces the human readable description.
func (e *BaseEstimator) SetDescription(d string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.description = d
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == Fitted
}

// SetFitted はモデルを学習済み状態に設定し、変数名を記録する
func (e *BaseEstimator) SetFitted(ivs, dvs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Fitted
	e.ivs = append([]string(nil), ivs...)
	e.dvs = append([]string(nil), dvs...)
}

// Reset はモデルを初期状態にリセットする
func (e *BaseEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = NotFitted
	e.ivs = nil
	e.dvs = nil
}

// IVs は学習時の説明変数名を返す。未学習の場合はnil。
func (e *BaseEstimator) IVs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.ivs...)
}

// DVs は学習時の目的変数名を返す。未学習の場合はnil。
func (e *BaseEstimator) DVs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.dvs...)
}

// RequireFitted returns a NotFittedError naming method when the model is not fitted.
func (e *BaseEstimator) RequireFitted(method string) error {
	if !e.IsFitted() {
		return errors.NewNotFittedError(e.Name(), method)
	}
	return nil
}

// Metadata builds the package metadata for a fitted model.
func (e *BaseEstimator) Metadata(artifact string) Metadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Metadata{
		Name:        e.name,
		Description: e.description,
		IVs:         append([]string(nil), e.ivs...),
		DVs:         append([]string(nil), e.dvs...),
		Model:       artifact,
	}
}

// Restore marks the model fitted from package metadata.
func (e *BaseEstimator) Restore(md Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Fitted
	e.name = md.Name
	e.description = md.Description
	e.ivs = append([]string(nil), md.IVs...)
	e.dvs = append([]string(nil), md.DVs...)
}
