package domain

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/flowfile/dataflow-core/internal/dag"
	domainerrors "github.com/flowfile/dataflow-core/internal/domain/errors"
	"github.com/flowfile/dataflow-core/internal/history"
)

// Executor runs a FlowGraph end to end. internal/engine provides the
// concrete implementation; FlowGraph only depends on this interface so the
// scheduling/offload machinery can live in a higher package without domain
// importing it back.
type Executor interface {
	Run(ctx context.Context, g *FlowGraph) (RunInformation, error)
	Cancel(flowID uint64)
}

// FlowGraph is the DAG container: it owns nodes, performs insert/connect/
// delete/copy, computes topological order, and drives execution through its
// Executor.
type FlowGraph struct {
	FlowID   uint64
	Settings FlowSettings

	nodes      map[int64]*FlowNode
	startNodes map[int64]struct{}

	history  *history.Log
	executor Executor
	Log      zerolog.Logger
}

// NewFlowGraph constructs an empty FlowGraph. NewFlowGraph always adds a
// flow_id field to logger, so logger should not carry one already.
func NewFlowGraph(flowID uint64, settings FlowSettings, logger zerolog.Logger) *FlowGraph {
	settings.FlowID = flowID
	return &FlowGraph{
		FlowID:     flowID,
		Settings:   settings,
		nodes:      make(map[int64]*FlowNode),
		startNodes: make(map[int64]struct{}),
		history:    history.NewLog(100),
		Log:        logger.With().Uint64("flow_id", flowID).Logger(),
	}
}

// SetExecutor installs the Executor used by Run/Cancel.
func (g *FlowGraph) SetExecutor(e Executor) { g.executor = e }

// Node returns the node with the given id.
func (g *FlowGraph) Node(id int64) (*FlowNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns every node id currently in the graph, in no particular
// order.
func (g *FlowGraph) NodeIDs() []int64 {
	out := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

// Len reports the number of nodes in the graph.
func (g *FlowGraph) Len() int { return len(g.nodes) }

func (g *FlowGraph) adjacency() map[int64][]int64 {
	adj := make(map[int64][]int64, len(g.nodes))
	for id, n := range g.nodes {
		targets := make([]int64, len(n.Children))
		for i, c := range n.Children {
			targets[i] = c.NodeID
		}
		adj[id] = targets
	}
	return adj
}

func (g *FlowGraph) roots() []int64 {
	out := make([]int64, 0, len(g.startNodes))
	for id := range g.startNodes {
		out = append(out, id)
	}
	return out
}

func (g *FlowGraph) recomputeStartNodes() {
	g.startNodes = make(map[int64]struct{})
	for id, n := range g.nodes {
		if n.IsStart() {
			g.startNodes[id] = struct{}{}
		}
	}
}

// AddNodeStep registers a new node. Its parents are resolved
// purely through later ConnectNode calls; settings referencing parents that
// don't exist yet is not an error here.
func (g *FlowGraph) AddNodeStep(settings NodeSettings, closure Closure, schemaCallback SchemaCallback, validator Validator) (*FlowNode, error) {
	node, err := g.addNodeLow(settings, closure, schemaCallback, validator)
	if err != nil {
		return nil, err
	}
	g.history.Record(&addNodeOp{g: g, settings: settings, closure: closure, schemaCB: schemaCallback, validator: validator})
	g.Log.Info().Int64("node_id", settings.NodeID).Str("kind", string(settings.Kind)).Msg("node added")
	return node, nil
}

func (g *FlowGraph) addNodeLow(settings NodeSettings, closure Closure, schemaCallback SchemaCallback, validator Validator) (*FlowNode, error) {
	if _, exists := g.nodes[settings.NodeID]; exists {
		return nil, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("duplicate node id %d", settings.NodeID))
	}
	node := NewFlowNode(settings, closure, schemaCallback, validator, nil)
	g.nodes[settings.NodeID] = node
	g.startNodes[settings.NodeID] = struct{}{}
	return node, nil
}

// ConnectNode validates and installs an edge. On success the
// target and all its descendants are reset.
func (g *FlowGraph) ConnectNode(edge Edge) error {
	if err := g.connectLow(edge); err != nil {
		return err
	}
	g.history.Record(&connectOp{g: g, edge: edge})
	g.resetDescendants(edge.ToNodeID)
	g.Log.Info().Int64("from", edge.FromNodeID).Int64("to", edge.ToNodeID).Msg("edge connected")
	return nil
}

func (g *FlowGraph) connectLow(edge Edge) error {
	if edge.FromNodeID == edge.ToNodeID {
		return domainerrors.GraphIntegrity(g.FlowID, "self-loop rejected")
	}
	from, ok := g.nodes[edge.FromNodeID]
	if !ok {
		return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("from node %d does not exist", edge.FromNodeID))
	}
	to, ok := g.nodes[edge.ToNodeID]
	if !ok {
		return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("to node %d does not exist", edge.ToNodeID))
	}
	if !AcceptsPort(to.Settings.Kind, edge.ToPort) {
		return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node kind %s does not accept port %s", to.Settings.Kind, edge.ToPort))
	}
	for _, p := range to.Parents {
		if p.Port == edge.ToPort {
			return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("port %s on node %d is already occupied", edge.ToPort, edge.ToNodeID))
		}
	}
	if dag.ReachesFrom(edge.ToNodeID, edge.FromNodeID, g.adjacency()) {
		return domainerrors.GraphIntegrity(g.FlowID, "connecting would create a cycle")
	}

	to.Parents = append(to.Parents, NodeRef{NodeID: edge.FromNodeID, Port: edge.ToPort})
	from.Children = append(from.Children, NodeRef{NodeID: edge.ToNodeID, Port: edge.ToPort})
	delete(g.startNodes, edge.ToNodeID)
	return nil
}

// DeleteConnection removes an existing edge and resets the target and its
// descendants.
func (g *FlowGraph) DeleteConnection(edge Edge) error {
	if err := g.disconnectLow(edge); err != nil {
		return err
	}
	g.history.Record(&disconnectOp{g: g, edge: edge})
	g.resetDescendants(edge.ToNodeID)
	return nil
}

func (g *FlowGraph) disconnectLow(edge Edge) error {
	to, ok := g.nodes[edge.ToNodeID]
	if !ok {
		return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("to node %d does not exist", edge.ToNodeID))
	}
	from, ok := g.nodes[edge.FromNodeID]
	if !ok {
		return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("from node %d does not exist", edge.FromNodeID))
	}
	to.Parents = removeRef(to.Parents, edge.FromNodeID, edge.ToPort)
	from.Children = removeRef(from.Children, edge.ToNodeID, edge.ToPort)
	if to.IsStart() {
		g.startNodes[edge.ToNodeID] = struct{}{}
	}
	return nil
}

func removeRef(refs []NodeRef, nodeID int64, port Port) []NodeRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.NodeID == nodeID && r.Port == port {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DeleteNode removes a node and all incident edges, resetting all
// ex-descendants.
func (g *FlowGraph) DeleteNode(id int64) error {
	node, incidentEdges, err := g.deleteNodeLow(id)
	if err != nil {
		return err
	}
	g.history.Record(&deleteNodeOp{
		g:        g,
		nodeID:   id,
		settings: node.Settings,
		closure:  node.closure,
		schemaCB: node.schemaCallback,
		validator: node.validator,
		edges:    incidentEdges,
	})
	g.Log.Info().Int64("node_id", id).Msg("node deleted")
	return nil
}

func (g *FlowGraph) deleteNodeLow(id int64) (*FlowNode, []Edge, error) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, nil, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", id))
	}

	var incident []Edge
	for _, p := range node.Parents {
		incident = append(incident, Edge{FromNodeID: p.NodeID, FromPort: PortMain, ToNodeID: id, ToPort: p.Port})
	}
	for _, c := range node.Children {
		incident = append(incident, Edge{FromNodeID: id, FromPort: PortMain, ToNodeID: c.NodeID, ToPort: c.Port})
	}

	descendants := dag.DescendantsBFS([]int64{id}, g.adjacency())

	for _, e := range incident {
		_ = g.disconnectLow(e)
	}
	delete(g.nodes, id)
	delete(g.startNodes, id)

	for _, d := range descendants {
		if dn, ok := g.nodes[d]; ok {
			dn.MarkNeedsReset()
		}
	}
	g.recomputeStartNodes()
	return node, incident, nil
}

// resetDescendants fully resets id (back to Configured) and marks every
// descendant needs_reset, clearing their cached schema/results without
// clearing the needs_reset flag itself — a descendant only clears it once
// it is actually re-predicted or re-run.
func (g *FlowGraph) resetDescendants(id int64) {
	if n, ok := g.nodes[id]; ok {
		n.MarkDirty()
		n.Reset()
	}
	for _, d := range dag.DescendantsBFS([]int64{id}, g.adjacency()) {
		if n, ok := g.nodes[d]; ok {
			n.MarkNeedsReset()
		}
	}
}

// CopyNode deep-copies src's settings under a new node id and re-inserts it
// with no edges.
func (g *FlowGraph) CopyNode(srcNodeID int64, newNodeID int64) (*FlowNode, error) {
	src, ok := g.nodes[srcNodeID]
	if !ok {
		return nil, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", srcNodeID))
	}
	newSettings := src.Settings.Clone()
	newSettings.NodeID = newNodeID
	return g.AddNodeStep(newSettings, src.closure, src.schemaCallback, src.validator)
}

// UpdateSettings replaces a node's settings. If the content hash changes,
// the node and its descendants are reset; UI-only changes never reset.
func (g *FlowGraph) UpdateSettings(newSettings NodeSettings, closure Closure, schemaCallback SchemaCallback, validator Validator) error {
	old, err := g.updateSettingsLow(newSettings, closure, schemaCallback, validator)
	if err != nil {
		return err
	}
	g.history.Record(&updateSettingsOp{g: g, nodeID: newSettings.NodeID, oldSettings: old.Settings, oldClosure: old.closure, oldSchemaCB: old.schemaCallback, oldValidator: old.validator})
	return nil
}

func (g *FlowGraph) updateSettingsLow(newSettings NodeSettings, closure Closure, schemaCallback SchemaCallback, validator Validator) (oldSnapshot FlowNode, err error) {
	node, ok := g.nodes[newSettings.NodeID]
	if !ok {
		return FlowNode{}, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", newSettings.NodeID))
	}
	old := *node
	sameUnlessUI := node.Settings.EqualIgnoringUI(newSettings)

	node.Settings = newSettings
	node.closure = closure
	node.schemaCallback = schemaCallback
	node.validator = validator

	if !sameUnlessUI {
		node.MarkDirty()
		node.Reset()
		for _, d := range dag.DescendantsBFS([]int64{newSettings.NodeID}, g.adjacency()) {
			if dn, ok := g.nodes[d]; ok {
				dn.MarkNeedsReset()
			}
		}
	}
	return old, nil
}

// DescendantIDs returns every node id reachable from id via outgoing edges,
// exposed for the Execution Engine's failure-propagation logic.
func (g *FlowGraph) DescendantIDs(id int64) []int64 {
	return dag.DescendantsBFS([]int64{id}, g.adjacency())
}

// IsSinkWritingKind reports whether kind is one of the output-writing
// kinds that make a node a sink regardless of cache_results.
func IsSinkWritingKind(kind NodeKind) bool {
	switch kind {
	case KindOutput, KindDatabaseWriter, KindCloudStorageWriter:
		return true
	default:
		return false
	}
}

// TopologicalOrder returns node ids reachable from the start nodes in
// topological order.
func (g *FlowGraph) TopologicalOrder() ([]int64, error) {
	order, err := dag.TopologicalSort(g.roots(), g.adjacency())
	if err != nil {
		return nil, domainerrors.GraphIntegrity(g.FlowID, "topological sort failed: "+err.Error())
	}
	return order, nil
}

// orderedParentRefs returns n's parent references in port order (left,
// right, main-sorted-by-node_id).
func orderedParentRefs(n *FlowNode) []NodeRef {
	ordered := make([]NodeRef, 0, len(n.Parents))
	var left, right *NodeRef
	var mains []NodeRef
	for i := range n.Parents {
		p := n.Parents[i]
		switch p.Port {
		case PortLeft:
			left = &n.Parents[i]
		case PortRight:
			right = &n.Parents[i]
		default:
			mains = append(mains, p)
		}
	}
	for i := 0; i < len(mains); i++ {
		for j := i + 1; j < len(mains); j++ {
			if mains[j].NodeID < mains[i].NodeID {
				mains[i], mains[j] = mains[j], mains[i]
			}
		}
	}
	if left != nil {
		ordered = append(ordered, *left)
	}
	if right != nil {
		ordered = append(ordered, *right)
	}
	ordered = append(ordered, mains...)
	return ordered
}

// OrderedParentRefs exposes a node's parent references in hash/schema
// resolution order (left, right, main-sorted-by-node_id) for callers
// outside this package (the Execution Engine) that need to gather input
// DataHandles in the same order schema prediction and hashing use.
func (g *FlowGraph) OrderedParentRefs(nodeID int64) ([]NodeRef, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", nodeID))
	}
	return orderedParentRefs(n), nil
}

// parentSchemas resolves the cached schemas of n's parents, in
// orderedParentRefs order, predicting them recursively if necessary.
// Returns an error naming the first parent whose schema cannot be resolved.
func (g *FlowGraph) parentSchemas(n *FlowNode) ([]Schema, error) {
	ordered := orderedParentRefs(n)

	schemas := make([]Schema, 0, len(ordered))
	for _, ref := range ordered {
		parent, ok := g.nodes[ref.NodeID]
		if !ok {
			return nil, domainerrors.SchemaPrediction(g.FlowID, n.Settings.NodeID, fmt.Sprintf("parent %d missing", ref.NodeID), nil)
		}
		if parent.CachedSchema == nil {
			if _, err := g.predictSchemaFor(parent); err != nil {
				return nil, err
			}
		}
		if parent.CachedSchema == nil {
			return nil, domainerrors.SchemaPrediction(g.FlowID, n.Settings.NodeID, fmt.Sprintf("parent %d has no schema", ref.NodeID), nil)
		}
		schemas = append(schemas, *parent.CachedSchema)
	}
	return schemas, nil
}

func (g *FlowGraph) predictSchemaFor(n *FlowNode) (Schema, error) {
	if n.CachedSchema != nil {
		return *n.CachedSchema, nil
	}
	inputs, err := g.parentSchemas(n)
	if err != nil {
		return Schema{}, err
	}
	return n.PredictSchema(inputs)
}

// PredictSchema predicts (or returns the already-cached) schema for a
// single node, exposed for the Execution Engine to call ahead of execution.
func (g *FlowGraph) PredictSchema(nodeID int64) (Schema, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return Schema{}, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", nodeID))
	}
	return g.predictSchemaFor(n)
}

// RecomputeNodeHash recomputes a node's content-addressed hash from its
// resolved parents' hashes, exposed so the Execution Engine can decide
// whether a node's hash changed before deciding to skip execution.
func (g *FlowGraph) RecomputeNodeHash(nodeID int64) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", nodeID))
	}
	var left, right Hash
	var mains []Hash
	for _, ref := range orderedParentRefs(n) {
		parent, ok := g.nodes[ref.NodeID]
		if !ok {
			continue
		}
		switch ref.Port {
		case PortLeft:
			left = parent.Hash()
		case PortRight:
			right = parent.Hash()
		default:
			mains = append(mains, parent.Hash())
		}
	}
	return n.RecomputeHash(left, right, mains)
}

// ResolveInputHandles gathers the DataHandle each of nodeID's parents
// produced, in hash/schema order, for use by Closure. Every parent must
// already have a non-nil result (the caller is responsible for visiting
// nodes in topological order).
func (g *FlowGraph) ResolveInputHandles(nodeID int64) ([]DataHandle, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", nodeID))
	}
	refs := orderedParentRefs(n)
	handles := make([]DataHandle, 0, len(refs))
	for _, ref := range refs {
		parent, ok := g.nodes[ref.NodeID]
		if !ok || parent.Result == nil || parent.Result.DataHandle == nil {
			return nil, domainerrors.Execution(g.FlowID, nodeID, fmt.Sprintf("parent %d has no materialized result", ref.NodeID), nil)
		}
		handles = append(handles, parent.Result.DataHandle)
	}
	return handles, nil
}

// Execute runs a node's closure against inputs and stores the result,
// exposed for the Execution Engine.
func (g *FlowGraph) Execute(nodeID int64, inputs []DataHandle) (*NodeResult, error) {
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, domainerrors.GraphIntegrity(g.FlowID, fmt.Sprintf("node %d does not exist", nodeID))
	}
	return n.Execute(inputs), nil
}

// PredictAllSchemas traverses the graph topologically and predicts every
// reachable node's schema. A failing node's error is returned in the map
// under its node id and is not stored on the node; traversal continues for
// the remaining nodes.
func (g *FlowGraph) PredictAllSchemas() map[int64]error {
	order, err := g.TopologicalOrder()
	failures := make(map[int64]error)
	if err != nil {
		return map[int64]error{0: err}
	}
	for _, id := range order {
		n := g.nodes[id]
		if _, err := g.predictSchemaFor(n); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// Run delegates to the installed Executor. Concurrent runs on
// the same flow are rejected by the executor via Settings.IsRunning.
func (g *FlowGraph) Run(ctx context.Context) (RunInformation, error) {
	if g.executor == nil {
		return RunInformation{}, domainerrors.Execution(g.FlowID, 0, "no executor configured", nil)
	}
	return g.executor.Run(ctx, g)
}

// Cancel requests cooperative cancellation of any in-flight run.
func (g *FlowGraph) Cancel() {
	g.Settings.IsCanceled = true
	if g.executor != nil {
		g.executor.Cancel(g.FlowID)
	}
}

// Undo reverts the most recent history operation.
func (g *FlowGraph) Undo() (bool, error) {
	_, err, ok := g.history.Undo()
	return ok, err
}

// Redo re-applies the most recently undone history operation.
func (g *FlowGraph) Redo() (bool, error) {
	_, err, ok := g.history.Redo()
	return ok, err
}

// HistoryDepths exposes undo/redo stack sizes, used by the CLI status
// report and by tests asserting bounded depth.
func (g *FlowGraph) HistoryDepths() (undo, redo int) {
	return g.history.UndoDepth(), g.history.RedoDepth()
}
