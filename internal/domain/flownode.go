package domain

import (
	"time"

	domainerrors "github.com/flowfile/dataflow-core/internal/domain/errors"
)

// State is a FlowNode's position in its lifecycle state machine.
type State string

const (
	StateFresh       State = "fresh"
	StateConfigured  State = "configured"
	StateSchemaKnown State = "schema_known"
	StateRan         State = "ran"
	StateDirty       State = "dirty"
	StateCanceled    State = "canceled"
	StateErrored     State = "errored"
)

// NodeResult is the outcome of executing a FlowNode's closure.
type NodeResult struct {
	DataHandle      DataHandle
	ExampleRowsPath string
	Error           error
	RowCount        *uint64
}

// Stats tracks a FlowNode's execution bookkeeping.
type Stats struct {
	HasRun                bool
	HasRunWithCurrentHash bool
	IsCanceled            bool
	StartTS               time.Time
	EndTS                 time.Time
	RuntimeMS             int64
	Error                 error
}

// RuntimeFlags mirrors the subset of settings that affects scheduling
// rather than data shape.
type RuntimeFlags struct {
	CacheResults bool
	Streamable   bool
}

// FlowNode is one step in the DAG. FlowGraph owns the node
// map; FlowNode refers to parents/children only by id.
type FlowNode struct {
	Settings       NodeSettings
	closure        Closure
	schemaCallback SchemaCallback
	validator      Validator

	Parents  []NodeRef
	Children []NodeRef

	hash Hash

	CachedSchema *Schema
	Result       *NodeResult
	Stats        Stats
	Runtime      RuntimeFlags
	NeedsReset   bool

	state State
}

// NewFlowNode freezes closure and schemaCallback over settings at
// construction time. parents is the resolved parent
// reference list; it may be shorter than ArityOf(settings.Kind) demands
// when edges have not been connected yet — HasRequiredInputs reports that.
func NewFlowNode(settings NodeSettings, closure Closure, schemaCallback SchemaCallback, validator Validator, parents []NodeRef) *FlowNode {
	return &FlowNode{
		Settings:       settings,
		closure:        closure,
		schemaCallback: schemaCallback,
		validator:      validator,
		Parents:        append([]NodeRef(nil), parents...),
		Runtime:        RuntimeFlags{CacheResults: settings.CacheResults, Streamable: true},
		state:          StateConfigured,
	}
}

// State returns the node's current lifecycle state.
func (n *FlowNode) State() State { return n.state }

// IsStart reports whether n has zero parents.
func (n *FlowNode) IsStart() bool { return len(n.Parents) == 0 }

// HasRequiredInputs reports whether n's currently-resolved parents satisfy
// its kind's port arity.
func (n *FlowNode) HasRequiredInputs() bool {
	switch ArityOf(n.Settings.Kind) {
	case ArityZero:
		return true
	case AritySingle:
		return len(n.Parents) == 1 && n.Parents[0].Port == PortMain
	case AritySet:
		return len(n.Parents) >= 1
	case ArityTwo:
		hasLeft, hasRight := false, false
		for _, p := range n.Parents {
			switch p.Port {
			case PortLeft:
				hasLeft = true
			case PortRight:
				hasRight = true
			}
		}
		return hasLeft && hasRight
	default:
		return false
	}
}

// Hash returns the node's content-addressed identity, computed the last
// time RecomputeHash was called.
func (n *FlowNode) Hash() Hash { return n.hash }

// RecomputeHash recomputes n's hash from its own settings payload and the
// supplied parent hashes (left, right, main-sorted). Callers (FlowGraph)
// supply parent hashes because FlowNode does not hold a reference to the
// graph.
func (n *FlowNode) RecomputeHash(left, right Hash, mainParents []Hash) error {
	h, err := HashPayload(n.Settings.Kind, n.Settings.forHash(), left, right, mainParents)
	if err != nil {
		return err
	}
	changed := h != n.hash
	n.hash = h
	if changed {
		n.Stats.HasRunWithCurrentHash = false
	}
	return nil
}

// PredictSchema invokes the schema callback against inputSchemas (already
// resolved by the caller from parents' CachedSchema) and stores the result.
// It never touches data.
func (n *FlowNode) PredictSchema(inputSchemas []Schema) (Schema, error) {
	if n.schemaCallback == nil {
		return Schema{}, domainerrors.SchemaPrediction(n.Settings.FlowID, n.Settings.NodeID, "no schema callback registered for kind "+string(n.Settings.Kind), nil)
	}
	schema, err := n.schemaCallback(n.Settings, inputSchemas)
	if err != nil {
		n.CachedSchema = nil
		return Schema{}, domainerrors.SchemaPrediction(n.Settings.FlowID, n.Settings.NodeID, "schema prediction failed", err)
	}
	n.CachedSchema = &schema
	if n.state == StateConfigured {
		n.state = StateSchemaKnown
	}
	return schema, nil
}

// Validate runs the kind's validator, if one is registered, against the
// resolved input schemas. A nil validator means the kind has no extra
// constraints beyond arity.
func (n *FlowNode) Validate(inputSchemas []Schema) error {
	if n.validator == nil {
		return nil
	}
	if err := n.validator(n.Settings, inputSchemas); err != nil {
		return domainerrors.Validation(n.Settings.FlowID, n.Settings.NodeID, err.Error())
	}
	return nil
}

// Execute runs n's closure against inputs, records timings, and stores the
// result. It does not itself decide whether execution should be skipped
// (that policy lives in the Execution Engine).
func (n *FlowNode) Execute(inputs []DataHandle) *NodeResult {
	start := time.Now()
	n.Stats.StartTS = start

	handle, err := n.closure(inputs)

	end := time.Now()
	n.Stats.EndTS = end
	n.Stats.RuntimeMS = end.Sub(start).Milliseconds()
	n.Stats.HasRun = true

	if err != nil {
		execErr := domainerrors.Execution(n.Settings.FlowID, n.Settings.NodeID, "closure failed", err)
		n.Stats.Error = execErr
		n.state = StateErrored
		n.Result = &NodeResult{Error: execErr}
		return n.Result
	}

	n.Stats.HasRunWithCurrentHash = true
	n.state = StateRan
	result := &NodeResult{DataHandle: handle}
	if handle != nil {
		if rc, ok := handle.RowCount(); ok {
			rcCopy := rc
			result.RowCount = &rcCopy
		}
	}
	n.Result = result
	return result
}

// NeedsResetNow reports whether n is currently flagged dirty.
func (n *FlowNode) NeedsResetNow() bool { return n.NeedsReset }

// Reset clears cached schema and results and transitions back to
// Configured.
func (n *FlowNode) Reset() {
	n.NeedsReset = false
	n.CachedSchema = nil
	n.Result = nil
	n.Stats.HasRunWithCurrentHash = false
	n.state = StateConfigured
}

// MarkDirty flags n for reset without clearing its cached data yet (used by
// BFS reset propagation to mark descendants before visiting them); the
// actual clearing happens in Reset or MarkNeedsReset.
func (n *FlowNode) MarkDirty() {
	n.NeedsReset = true
	if n.state == StateRan || n.state == StateSchemaKnown {
		n.state = StateDirty
	}
}

// MarkNeedsReset flags n dirty and clears its cached schema/result, but
// (unlike Reset) leaves NeedsReset set — used to propagate a reset onto
// descendants, which must stay flagged needs_reset until they are actually
// re-predicted or re-run rather than being marked clean purely because
// their cached data was dropped.
func (n *FlowNode) MarkNeedsReset() {
	n.MarkDirty()
	n.CachedSchema = nil
	n.Result = nil
	n.Stats.HasRunWithCurrentHash = false
}

// Cancel transitions a Ran or SchemaKnown node to Canceled.
func (n *FlowNode) Cancel() {
	n.Stats.IsCanceled = true
	n.state = StateCanceled
}
