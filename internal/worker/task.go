// Package worker implements the Worker Offload Client: submit a lazy
// plan for materialization, poll for completion, cancel in flight, and read a
// row-sample back from the resulting columnar artifact. "embedded" mode
// runs the materialization in-process, with no separate worker binary
// required; "remote" mode posts the same protocol to FLOWFILE_WORKER_URL.
package worker

import "github.com/flowfile/dataflow-core/internal/domain"

// TaskID identifies one submitted materialization request.
type TaskID string

// Operation selects what submit should do with the plan once materialized.
type Operation string

const (
	OperationCollect Operation = "collect"
	OperationSink    Operation = "sink"
)

// Status is the closed set of states poll can return.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TaskStatus is poll's full result.
type TaskStatus struct {
	Status       Status
	ProgressPct  int
	ArtifactPath string
	RowCount     uint64
	Reason       string
}

// RowBatch is read_sample's result.
type RowBatch struct {
	Schema domain.Schema
	Rows   []map[string]any
}
