package domain_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowfile/dataflow-core/internal/domain"
)

func noopClosure(inputs []domain.DataHandle) (domain.DataHandle, error) {
	return nil, nil
}

func constSchemaCallback(schema domain.Schema) domain.SchemaCallback {
	return func(domain.NodeSettings, []domain.Schema) (domain.Schema, error) {
		return schema, nil
	}
}

func newGraph(t *testing.T) *domain.FlowGraph {
	t.Helper()
	return domain.NewFlowGraph(1, domain.NewFlowSettings(1, "test-flow"), zerolog.Nop())
}

func addNode(t *testing.T, g *domain.FlowGraph, id int64, kind domain.NodeKind, payload any, schema domain.Schema) *domain.FlowNode {
	t.Helper()
	settings := domain.NewNodeSettings(g.FlowID, id, kind, payload)
	n, err := g.AddNodeStep(settings, noopClosure, constSchemaCallback(schema), nil)
	require.NoError(t, err)
	return n
}

var flatSchema = domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})

func TestConnectNodeRejectsCycle(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 2, domain.KindFilter, "a", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))

	err := g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 1, ToPort: domain.PortMain})
	assert.Error(t, err)
}

func TestConnectNodeRejectsSelfLoop(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	err := g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 1, ToPort: domain.PortMain})
	assert.Error(t, err)
}

func TestConnectNodeRejectsOccupiedPort(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 2, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 3, domain.KindFilter, "a", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 3, ToPort: domain.PortMain}))
	err := g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 3, ToPort: domain.PortMain})
	assert.Error(t, err)
}

func TestConnectNodeRejectsWrongPortForArity(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 2, domain.KindFilter, "a", flatSchema)

	err := g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortLeft})
	assert.Error(t, err)
}

func TestTopologicalOrderLinear(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 2, domain.KindFilter, "a", flatSchema)
	addNode(t, g, 3, domain.KindFilter, "b", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 3, ToPort: domain.PortMain}))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, order)
}

func TestHashChangesWithPayloadNotWithPosition(t *testing.T) {
	g := newGraph(t)
	n := addNode(t, g, 1, domain.KindManualInput, "payload-a", flatSchema)
	require.NoError(t, g.RecomputeNodeHash(1))
	firstHash := n.Hash()
	assert.False(t, firstHash.IsZero())

	settings := n.Settings
	settings.PosX, settings.PosY = 42, 7
	require.NoError(t, g.UpdateSettings(settings, noopClosure, constSchemaCallback(flatSchema), nil))
	require.NoError(t, g.RecomputeNodeHash(1))
	assert.Equal(t, firstHash, n.Hash(), "moving a node must not change its hash")

	settings.Payload = "payload-b"
	require.NoError(t, g.UpdateSettings(settings, noopClosure, constSchemaCallback(flatSchema), nil))
	require.NoError(t, g.RecomputeNodeHash(1))
	assert.NotEqual(t, firstHash, n.Hash(), "changing the payload must change the hash")
}

func TestHashIncludesParentHash(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, "a", flatSchema)
	addNode(t, g, 2, domain.KindManualInput, "b", flatSchema)
	addNode(t, g, 3, domain.KindFilter, "same-filter", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 3, ToPort: domain.PortMain}))
	require.NoError(t, g.RecomputeNodeHash(1))
	require.NoError(t, g.RecomputeNodeHash(3))
	n3, _ := g.Node(3)
	hashWithParent1 := n3.Hash()

	require.NoError(t, g.DeleteConnection(domain.Edge{FromNodeID: 1, ToNodeID: 3, ToPort: domain.PortMain}))
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 3, ToPort: domain.PortMain}))
	require.NoError(t, g.RecomputeNodeHash(2))
	require.NoError(t, g.RecomputeNodeHash(3))
	assert.NotEqual(t, hashWithParent1, n3.Hash(), "swapping a parent with a differently-hashed one must change the child's hash")
}

func TestConnectResetsDescendants(t *testing.T) {
	g := newGraph(t)
	src := addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	mid := addNode(t, g, 2, domain.KindFilter, "a", flatSchema)
	leaf := addNode(t, g, 3, domain.KindFilter, "b", flatSchema)

	_, err := src.PredictSchema(nil)
	require.NoError(t, err)
	_, err = mid.PredictSchema([]domain.Schema{flatSchema})
	require.NoError(t, err)
	_, err = leaf.PredictSchema([]domain.Schema{flatSchema})
	require.NoError(t, err)
	require.NotNil(t, mid.CachedSchema)
	require.NotNil(t, leaf.CachedSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 3, ToPort: domain.PortMain}))

	assert.Nil(t, mid.CachedSchema, "connecting to mid must reset mid")

	mid.CachedSchema = &flatSchema
	leaf.CachedSchema = &flatSchema
	require.NoError(t, g.DeleteConnection(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))
	assert.Nil(t, mid.CachedSchema)
	assert.Nil(t, leaf.CachedSchema, "resetting mid must propagate to its descendant leaf")
}

func TestReconnectLeavesDescendantFlaggedNeedsReset(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 2, domain.KindFilter, "a", flatSchema)
	leaf := addNode(t, g, 3, domain.KindFilter, "b", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 3, ToPort: domain.PortMain}))

	require.NoError(t, g.DeleteConnection(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))

	assert.True(t, leaf.NeedsResetNow(), "a descendant must stay flagged needs_reset until it is actually re-predicted or re-run, not just have its cache cleared")
}

func TestUpdateSettingsPayloadOnlyChangeResetsDescendants(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	mid := addNode(t, g, 2, domain.KindFilter, "total > 1500", flatSchema)
	leaf := addNode(t, g, 3, domain.KindFilter, "b", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 2, ToNodeID: 3, ToPort: domain.PortMain}))

	_, err := mid.PredictSchema([]domain.Schema{flatSchema})
	require.NoError(t, err)
	_, err = leaf.PredictSchema([]domain.Schema{flatSchema})
	require.NoError(t, err)
	require.NotNil(t, mid.CachedSchema)
	require.NotNil(t, leaf.CachedSchema)

	newSettings := mid.Settings.Clone()
	newSettings.Payload = "total > 100"
	require.NoError(t, g.UpdateSettings(newSettings, noopClosure, constSchemaCallback(flatSchema), nil))

	assert.Nil(t, mid.CachedSchema, "a payload-only settings change must reset the node's cached schema")
	assert.Nil(t, leaf.CachedSchema, "a payload-only settings change must reset descendants too")
	assert.True(t, leaf.NeedsResetNow())
}

func TestDeleteNodeRemovesIncidentEdges(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 2, domain.KindFilter, "a", flatSchema)
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))

	require.NoError(t, g.DeleteNode(1))
	n2, ok := g.Node(2)
	require.True(t, ok)
	assert.True(t, n2.IsStart(), "node 2 must lose its parent reference once node 1 is deleted")
}

func TestPredictSchemaNeverTouchesData(t *testing.T) {
	calls := 0
	g := newGraph(t)
	settings := domain.NewNodeSettings(g.FlowID, 1, domain.KindManualInput, nil)
	closure := func([]domain.DataHandle) (domain.DataHandle, error) {
		calls++
		return nil, nil
	}
	_, err := g.AddNodeStep(settings, closure, constSchemaCallback(flatSchema), nil)
	require.NoError(t, err)

	_, err = g.PredictSchema(1)
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "PredictSchema must never invoke a node's closure")
}

func TestUndoRedoRoundTrip(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	assert.Equal(t, 1, g.Len())

	ok, err := g.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, g.Len())

	ok, err = g.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, g.Len())
}

func TestAddNodeRejectsDuplicateID(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 1, domain.KindManualInput, nil, flatSchema)
	settings := domain.NewNodeSettings(g.FlowID, 1, domain.KindManualInput, nil)
	_, err := g.AddNodeStep(settings, noopClosure, constSchemaCallback(flatSchema), nil)
	assert.Error(t, err)
}

func TestOrderedParentRefsPutsLeftBeforeRightBeforeMains(t *testing.T) {
	g := newGraph(t)
	addNode(t, g, 10, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 20, domain.KindManualInput, nil, flatSchema)
	addNode(t, g, 3, domain.KindJoin, "join", flatSchema)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 20, ToNodeID: 3, ToPort: domain.PortRight}))
	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 10, ToNodeID: 3, ToPort: domain.PortLeft}))

	refs, err := g.OrderedParentRefs(3)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, domain.PortLeft, refs[0].Port)
	assert.Equal(t, domain.PortRight, refs[1].Port)
}
