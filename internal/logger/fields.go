package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldSourceID is the monitored source being checked or reconciled
	FieldSourceID = "source_id"

	// FieldTenantID is the client/company isolation boundary
	FieldTenantID = "tenant_id"

	// FieldCycleID identifies one pool checker cycle
	FieldCycleID = "cycle_id"

	// FieldJobID is the scheduler job ID
	FieldJobID = "job_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldCategory is the failure category bucket
	FieldCategory = "category"
)
