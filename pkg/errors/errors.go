// Package errors はワークベンチ全体のエラーハンドリングと警告システムを提供します。
// すべてのエラー型は cockroachdb/errors でスタックトレースを付与して返されます。
package errors

import (
	stderrors "errors"
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	警告ハンドリング
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("workbench-warning: %v\n", w)
	}
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the fallback warning handler.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc routes warnings to a structured logger. pkg/log installs
// one when it is configured; a nil func restores the fallback handler.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。処理自体は継続されます。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// DataConversionWarning は列の値が暗黙的に別の表現へ変換された場合の警告です。
// 例: カテゴリ列をダミー変数に展開した場合。
type DataConversionWarning struct {
	Column   string
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("column %q converted from %s to %s: %s", w.Column, w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("column", w.Column).
		Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(column, from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{Column: column, FromType: from, ToType: to, Reason: reason}
}

// RankWarning is raised when the design matrix does not have full column rank.
// The fit still succeeds with the minimum-norm solution.
type RankWarning struct {
	Model   string
	Rank    int
	Columns int
}

func (w *RankWarning) Error() string {
	return fmt.Sprintf("%s: design matrix is rank deficient (rank %d < %d columns); coefficients are not unique", w.Model, w.Rank, w.Columns)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *RankWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model", w.Model).
		Int("rank", w.Rank).
		Int("columns", w.Columns).
		Str("type", "RankWarning")
}

// NewRankWarning は新しいRankWarningを作成します。
func NewRankWarning(model string, rank, columns int) *RankWarning {
	return &RankWarning{Model: model, Rank: rank, Columns: columns}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ErrModelNotFitted is the sentinel every NotFittedError matches with Is.
var ErrModelNotFitted = New("model not fitted")

// NotFittedError はモデルが未学習の状態で Predict や Serialize を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("workbench: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// Is makes errors.Is(err, ErrModelNotFitted) hold for every NotFittedError.
func (e *NotFittedError) Is(target error) bool {
	return target == ErrModelNotFitted
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0: rows, 1: columns
}

func (e *DimensionError) Error() string {
	axisName := "columns"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("workbench: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workbench: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError は引数の値が不適切な場合のエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("workbench: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError はモデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workbench: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("workbench: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ParseError reports an uploaded file that could not be read as a table.
// Line is 1-based; zero when the failure is not tied to a line.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("workbench: cannot parse %s at line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("workbench: cannot parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ParseError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Int("line", e.Line).
		Str("type", "ParseError")
}

// NewParseError は新しいParseErrorを作成し、スタックトレースを付与します。
func NewParseError(source string, line int, err error) error {
	return errors.WithStack(&ParseError{Source: source, Line: line, Err: err})
}

// CoercionError reports a column value that cannot be converted to the
// requested dtype. Row is the 0-based data row.
type CoercionError struct {
	Column string
	DType  string
	Row    int
	Value  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("workbench: column %q: cannot convert %q at row %d to %s", e.Column, e.Value, e.Row, e.DType)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *CoercionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("dtype", e.DType).
		Int("row", e.Row).
		Str("value", e.Value).
		Str("type", "CoercionError")
}

// NewCoercionError は新しいCoercionErrorを作成し、スタックトレースを付与します。
func NewCoercionError(column, dtype string, row int, value string) error {
	return errors.WithStack(&CoercionError{Column: column, DType: dtype, Row: row, Value: value})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// Join は複数のエラーを1つにまとめます。nil は無視され、すべて nil なら nil を返します。
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")

	// ErrNotFound is returned by lookups (registry paths, sessions, stored models).
	ErrNotFound = New("not found")
)
