package domain

import "github.com/flowfile/dataflow-core/internal/history"

// The six Op kinds below record sufficient information to invert
// add_node_step/delete_node/connect_node/delete_connection/update_settings
// mutations. Each Apply() calls the graph's low-level (non-
// recording) mutator so undo/redo never re-records itself onto the stack
// it's popping from.

type addNodeOp struct {
	g        *FlowGraph
	settings NodeSettings
	closure  Closure
	schemaCB SchemaCallback
	validator Validator
}

func (op *addNodeOp) Name() string { return "add_node" }

func (op *addNodeOp) Apply() error {
	_, err := op.g.addNodeLow(op.settings, op.closure, op.schemaCB, op.validator)
	return err
}

func (op *addNodeOp) Invert() history.Op {
	return &deleteNodeOp{
		g:        op.g,
		nodeID:   op.settings.NodeID,
		settings: op.settings,
		closure:  op.closure,
		schemaCB: op.schemaCB,
		validator: op.validator,
	}
}

type deleteNodeOp struct {
	g         *FlowGraph
	nodeID    int64
	settings  NodeSettings
	closure   Closure
	schemaCB  SchemaCallback
	validator Validator
	edges     []Edge
}

func (op *deleteNodeOp) Name() string { return "delete_node" }

func (op *deleteNodeOp) Apply() error {
	_, _, err := op.g.deleteNodeLow(op.nodeID)
	return err
}

func (op *deleteNodeOp) Invert() history.Op {
	return &restoreNodeOp{
		g:        op.g,
		settings: op.settings,
		closure:  op.closure,
		schemaCB: op.schemaCB,
		validator: op.validator,
		edges:    op.edges,
	}
}

// restoreNodeOp re-adds a previously-deleted node and reconnects its
// incident edges in one step; its inverse is plain deletion.
type restoreNodeOp struct {
	g         *FlowGraph
	settings  NodeSettings
	closure   Closure
	schemaCB  SchemaCallback
	validator Validator
	edges     []Edge
}

func (op *restoreNodeOp) Name() string { return "restore_node" }

func (op *restoreNodeOp) Apply() error {
	if _, err := op.g.addNodeLow(op.settings, op.closure, op.schemaCB, op.validator); err != nil {
		return err
	}
	for _, e := range op.edges {
		if err := op.g.connectLow(e); err != nil {
			return err
		}
	}
	return nil
}

func (op *restoreNodeOp) Invert() history.Op {
	return &deleteNodeOp{g: op.g, nodeID: op.settings.NodeID, settings: op.settings, closure: op.closure, schemaCB: op.schemaCB, validator: op.validator, edges: op.edges}
}

type connectOp struct {
	g    *FlowGraph
	edge Edge
}

func (op *connectOp) Name() string { return "connect" }

func (op *connectOp) Apply() error { return op.g.connectLow(op.edge) }

func (op *connectOp) Invert() history.Op {
	return &disconnectOp{g: op.g, edge: op.edge}
}

type disconnectOp struct {
	g    *FlowGraph
	edge Edge
}

func (op *disconnectOp) Name() string { return "disconnect" }

func (op *disconnectOp) Apply() error { return op.g.disconnectLow(op.edge) }

func (op *disconnectOp) Invert() history.Op {
	return &connectOp{g: op.g, edge: op.edge}
}

type updateSettingsOp struct {
	g            *FlowGraph
	nodeID       int64
	oldSettings  NodeSettings
	oldClosure   Closure
	oldSchemaCB  SchemaCallback
	oldValidator Validator
	inverse      *updateSettingsOp
}

func (op *updateSettingsOp) Name() string { return "update_settings" }

func (op *updateSettingsOp) Apply() error {
	_, err := op.g.updateSettingsLow(op.oldSettings, op.oldClosure, op.oldSchemaCB, op.oldValidator)
	return err
}

// Invert pairs two updateSettingsOps. The recorded op stores the settings
// from before the update, so undo applies it as is; its first Invert also
// snapshots the node's current settings into the op that redo applies.
func (op *updateSettingsOp) Invert() history.Op {
	if op.inverse != nil {
		return op.inverse
	}
	node, ok := op.g.nodes[op.nodeID]
	if !ok {
		return op
	}
	op.inverse = &updateSettingsOp{
		g:            op.g,
		nodeID:       op.nodeID,
		oldSettings:  node.Settings,
		oldClosure:   node.closure,
		oldSchemaCB:  node.schemaCallback,
		oldValidator: node.validator,
		inverse:      op,
	}
	return op
}
