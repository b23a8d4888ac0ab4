package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRunID is the pipeline run ID (UUID, one per process start)
	FieldRunID = "run_id"

	// FieldArtifact is the input artifact (file) being processed
	FieldArtifact = "artifact"

	// FieldDataset is the dataset name the schema was loaded for
	FieldDataset = "dataset"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldStage is the pipeline stage (validating, converting, loading)
	FieldStage = "stage"

	// FieldRequestID is the HTTP request ID on the status API
	FieldRequestID = "request_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldRows is a row count
	FieldRows = "rows"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
