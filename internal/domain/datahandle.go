package domain

// MaterializationKind is the lifecycle stage of a DataHandle.
type MaterializationKind string

const (
	MaterializationLazy     MaterializationKind = "lazy"
	MaterializationInMemory MaterializationKind = "in_memory"
	MaterializationOnDisk   MaterializationKind = "on_disk"
)

// DataHandle is the core's view of a CLE lazy plan plus schema metadata.
// internal/cle provides the concrete implementation; domain only depends on
// this interface so FlowNode never has to import the engine that produces
// handles, keeping the dependency edge one-directional (cle -> domain).
type DataHandle interface {
	// Schema returns the handle's schema without forcing materialization.
	Schema() Schema
	// State reports which Materialization variant the handle currently is.
	State() MaterializationKind
	// ArtifactPath returns the on-disk columnar file path when State() is
	// MaterializationOnDisk.
	ArtifactPath() (path string, ok bool)
	// FileRef returns the content-addressed hash keying the on-disk
	// artifact, when one has been assigned.
	FileRef() (ref Hash, ok bool)
	// RowCount returns a known row count, if the handle has been
	// materialized enough to know it.
	RowCount() (count uint64, ok bool)
}

// Closure is the captured-settings transform attached to a FlowNode. It is
// pure with respect to inputs: all configuration was frozen in at
// construction time via the closure factory.
type Closure func(inputs []DataHandle) (DataHandle, error)

// SchemaCallback predicts a node's output schema from its settings and its
// parents' schemas. It must never touch data.
type SchemaCallback func(settings NodeSettings, inputs []Schema) (Schema, error)

// Validator reports whether settings are satisfiable given the current
// input schemas, without executing data.
type Validator func(settings NodeSettings, inputs []Schema) error
