// Package log defines standard attribute keys for workbench operations.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so log records can be filtered the same way across packages.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the model type, e.g. "OLS".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed: fit, predict, evaluate, serialize, load.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package doing the work: linear, visualizer, server.
	ComponentKey = "ml.component"

	// PhaseKey is the wizard step: data_loading, inference, output.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	// SamplesKey is the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of design columns.
	FeaturesKey = "data.features"

	// TargetsKey is the number of dependent variables.
	TargetsKey = "data.targets"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// DataTypeKey is a column dtype.
	DataTypeKey = "data.type"

	// DataSizeKey is a payload size in bytes.
	DataSizeKey = "data.size_bytes"
)

// Metrics.
const (
	DurationMsKey = "perf.duration_ms"
	R2ScoreKey    = "metrics.r2_score"
	MSEKey        = "metrics.mse"
	RankKey       = "metrics.rank"
)

// Application context.
const (
	SessionIDKey    = "session.id"
	RegistryPathKey = "registry.path"
	PlotKindKey     = "plot.kind"
	StoreNameKey    = "store.name"
	ErrorTypeKey    = "error.type"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationEvaluate  = "evaluate"
	OperationSerialize = "serialize"
	OperationLoad      = "load"
	OperationTransform = "transform"

	PhaseDataLoading = "data_loading"
	PhaseInference   = "inference"
	PhaseOutput      = "output"
)
