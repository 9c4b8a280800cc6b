package cle

import "github.com/flowfile/dataflow-core/internal/domain"

// Handle is the concrete domain.DataHandle implementation: an owning
// wrapper over a LazyPlan plus materialization bookkeeping.
type Handle struct {
	plan     LazyPlan
	schema   domain.Schema
	state    domain.MaterializationKind
	table    *Table // populated once State() == MaterializationInMemory
	path     string // populated once State() == MaterializationOnDisk
	fileRef  domain.Hash
	hasRef   bool
	rowCount *uint64
}

var _ domain.DataHandle = (*Handle)(nil)

// NewLazy wraps plan without forcing collection.
func NewLazy(plan LazyPlan) *Handle {
	return &Handle{plan: plan, schema: plan.Schema(), state: domain.MaterializationLazy}
}

// NewInMemory wraps an already-collected Table.
func NewInMemory(table *Table) *Handle {
	rc := uint64(len(table.Rows))
	return &Handle{
		plan:     NewStaticPlan(table),
		schema:   table.Schema,
		state:    domain.MaterializationInMemory,
		table:    table,
		rowCount: &rc,
	}
}

// NewOnDisk wraps a materialized artifact path and its content-addressed
// file_ref.
func NewOnDisk(schema domain.Schema, path string, fileRef domain.Hash, rowCount uint64) *Handle {
	return &Handle{
		schema:   schema,
		state:    domain.MaterializationOnDisk,
		path:     path,
		fileRef:  fileRef,
		hasRef:   true,
		rowCount: &rowCount,
	}
}

func (h *Handle) Schema() domain.Schema { return h.schema }

func (h *Handle) State() domain.MaterializationKind { return h.state }

func (h *Handle) ArtifactPath() (string, bool) {
	if h.state != domain.MaterializationOnDisk {
		return "", false
	}
	return h.path, true
}

func (h *Handle) FileRef() (domain.Hash, bool) { return h.fileRef, h.hasRef }

func (h *Handle) RowCount() (uint64, bool) {
	if h.rowCount == nil {
		return 0, false
	}
	return *h.rowCount, true
}

// Collect forces full materialization in memory. An OnDisk handle does not
// read its artifact file itself: it collects only once Materialize has
// attached the table read back from disk, and returns an error before that.
func (h *Handle) Collect() (*Table, error) {
	if h.table != nil {
		return h.table, nil
	}
	if h.plan == nil {
		return nil, errNotMaterialized
	}
	table, err := h.plan.Collect()
	if err != nil {
		return nil, err
	}
	h.table = table
	rc := uint64(len(table.Rows))
	h.rowCount = &rc
	return table, nil
}

// Plan exposes the underlying LazyPlan for composition into a downstream
// node's FuncPlan. OnDisk
// handles backed by a still-open plan (e.g. a reader over the artifact
// file) return that plan; purely-materialized on-disk handles with no live
// plan return nil and the caller must read the artifact file directly.
func (h *Handle) Plan() LazyPlan { return h.plan }

// Materialize attaches table to an OnDisk handle after the artifact file
// has actually been read back (internal/worker's read path).
func (h *Handle) Materialize(table *Table) {
	h.table = table
	h.plan = NewStaticPlan(table)
	rc := uint64(len(table.Rows))
	h.rowCount = &rc
}

var errNotMaterialized = &notMaterializedError{}

type notMaterializedError struct{}

func (*notMaterializedError) Error() string {
	return "data handle has no plan and no materialized table"
}
