package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowfile/dataflow-core/internal/domain"
	domainerrors "github.com/flowfile/dataflow-core/internal/domain/errors"
)

func TestFlowNodeLifecycleHappyPath(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	n := domain.NewFlowNode(settings, noopClosure, constSchemaCallback(flatSchema), nil, nil)
	assert.Equal(t, domain.StateConfigured, n.State())
	assert.True(t, n.IsStart())

	_, err := n.PredictSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSchemaKnown, n.State())

	result := n.Execute(nil)
	require.NoError(t, result.Error)
	assert.Equal(t, domain.StateRan, n.State())
	assert.True(t, n.Stats.HasRun)
	assert.True(t, n.Stats.HasRunWithCurrentHash)
}

func TestFlowNodeExecuteFailureSetsErroredState(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	failing := func([]domain.DataHandle) (domain.DataHandle, error) {
		return nil, errors.New("boom")
	}
	n := domain.NewFlowNode(settings, failing, constSchemaCallback(flatSchema), nil, nil)

	result := n.Execute(nil)
	assert.Error(t, result.Error)
	assert.Equal(t, domain.StateErrored, n.State())
	assert.True(t, domainerrors.Is(result.Error, domainerrors.CodeExecution))
}

func TestFlowNodeMarkDirtyThenReset(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	n := domain.NewFlowNode(settings, noopClosure, constSchemaCallback(flatSchema), nil, nil)
	_, err := n.PredictSchema(nil)
	require.NoError(t, err)
	n.Execute(nil)
	require.Equal(t, domain.StateRan, n.State())

	n.MarkDirty()
	assert.Equal(t, domain.StateDirty, n.State())
	assert.True(t, n.NeedsResetNow())

	n.Reset()
	assert.Equal(t, domain.StateConfigured, n.State())
	assert.Nil(t, n.CachedSchema)
	assert.Nil(t, n.Result)
	assert.False(t, n.NeedsResetNow())
}

func TestFlowNodeCancel(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	n := domain.NewFlowNode(settings, noopClosure, constSchemaCallback(flatSchema), nil, nil)
	n.Execute(nil)
	n.Cancel()
	assert.Equal(t, domain.StateCanceled, n.State())
	assert.True(t, n.Stats.IsCanceled)
}

func TestFlowNodeHasRequiredInputs(t *testing.T) {
	single := domain.NewNodeSettings(1, 2, domain.KindFilter, "x")
	node := domain.NewFlowNode(single, noopClosure, constSchemaCallback(flatSchema), nil, nil)
	assert.False(t, node.HasRequiredInputs())

	withParent := domain.NewFlowNode(single, noopClosure, constSchemaCallback(flatSchema), nil,
		[]domain.NodeRef{{NodeID: 1, Port: domain.PortMain}})
	assert.True(t, withParent.HasRequiredInputs())

	join := domain.NewNodeSettings(1, 3, domain.KindJoin, "j")
	joinNode := domain.NewFlowNode(join, noopClosure, constSchemaCallback(flatSchema), nil,
		[]domain.NodeRef{{NodeID: 1, Port: domain.PortLeft}})
	assert.False(t, joinNode.HasRequiredInputs(), "join needs both left and right")

	joinNode2 := domain.NewFlowNode(join, noopClosure, constSchemaCallback(flatSchema), nil,
		[]domain.NodeRef{{NodeID: 1, Port: domain.PortLeft}, {NodeID: 2, Port: domain.PortRight}})
	assert.True(t, joinNode2.HasRequiredInputs())
}

func TestFlowNodePredictSchemaFailureClearsCache(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	failingSchema := func(domain.NodeSettings, []domain.Schema) (domain.Schema, error) {
		return domain.Schema{}, errors.New("bad schema")
	}
	n := domain.NewFlowNode(settings, noopClosure, failingSchema, nil, nil)
	_, err := n.PredictSchema(nil)
	assert.Error(t, err)
	assert.Nil(t, n.CachedSchema)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeSchemaPrediction))
}

func TestFlowNodeValidateRunsRegisteredValidator(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	rejecting := func(domain.NodeSettings, []domain.Schema) error {
		return errors.New("invalid config")
	}
	n := domain.NewFlowNode(settings, noopClosure, constSchemaCallback(flatSchema), rejecting, nil)
	err := n.Validate(nil)
	assert.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.CodeValidation))
}

func TestFlowNodeValidateNilValidatorAlwaysPasses(t *testing.T) {
	settings := domain.NewNodeSettings(1, 1, domain.KindManualInput, "x")
	n := domain.NewFlowNode(settings, noopClosure, constSchemaCallback(flatSchema), nil, nil)
	assert.NoError(t, n.Validate(nil))
}

func TestHashPayloadDeterministic(t *testing.T) {
	type payload struct {
		A string
		B int
	}
	p := payload{A: "x", B: 1}
	h1, err := domain.HashPayload(domain.KindFilter, p, domain.Hash{}, domain.Hash{}, nil)
	require.NoError(t, err)
	h2, err := domain.HashPayload(domain.KindFilter, p, domain.Hash{}, domain.Hash{}, nil)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.False(t, h1.IsZero())
}

func TestHashPayloadMainParentOrderIndependent(t *testing.T) {
	var a, b domain.Hash
	a[0] = 1
	b[0] = 2

	h1, err := domain.HashPayload(domain.KindUnion, "p", domain.Hash{}, domain.Hash{}, []domain.Hash{a, b})
	require.NoError(t, err)
	h2, err := domain.HashPayload(domain.KindUnion, "p", domain.Hash{}, domain.Hash{}, []domain.Hash{b, a})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "main parent hash order must not affect the resulting hash")
}

func TestHashPayloadDiffersOnKind(t *testing.T) {
	h1, err := domain.HashPayload(domain.KindFilter, "p", domain.Hash{}, domain.Hash{}, nil)
	require.NoError(t, err)
	h2, err := domain.HashPayload(domain.KindFormula, "p", domain.Hash{}, domain.Hash{}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashPayloadStableAcrossMapKeyOrder(t *testing.T) {
	rowA := map[string]any{"name": "a", "age": 30.0, "city": "nyc"}
	rowB := map[string]any{"city": "nyc", "age": 30.0, "name": "a"}

	var last domain.Hash
	for i := 0; i < 25; i++ {
		h, err := domain.HashPayload(domain.KindManualInput, []map[string]any{rowA}, domain.Hash{}, domain.Hash{}, nil)
		require.NoError(t, err)
		if i == 0 {
			last = h
		} else {
			assert.Equal(t, last, h, "hash must be stable across repeated calls regardless of map iteration order")
		}
	}

	h1, err := domain.HashPayload(domain.KindManualInput, []map[string]any{rowA}, domain.Hash{}, domain.Hash{}, nil)
	require.NoError(t, err)
	h2, err := domain.HashPayload(domain.KindManualInput, []map[string]any{rowB}, domain.Hash{}, domain.Hash{}, nil)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "two maps with the same entries built in different insertion order must hash identically")
}

func TestEqualIgnoringUIDetectsPayloadOnlyChange(t *testing.T) {
	a := domain.NewNodeSettings(1, 1, domain.KindFilter, "total > 1500")
	b := a
	b.Payload = "total > 100"
	assert.False(t, a.EqualIgnoringUI(b), "a payload-only change must not be reported as UI-only")

	c := a
	c.PosX, c.PosY, c.Description = 10, 20, "moved"
	assert.True(t, a.EqualIgnoringUI(c), "position/description-only changes must still be UI-only")
}

func TestSchemaEqual(t *testing.T) {
	a := domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})
	b := domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})
	c := domain.NewSchema(domain.Field{Name: "y", Type: domain.TypeFloat64})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestNodeSettingsParentIDs(t *testing.T) {
	single := domain.NewNodeSettings(1, 1, domain.KindFilter, nil)
	single.DependingOnID = 7
	assert.Equal(t, []int64{7}, single.ParentIDs())

	join := domain.NewNodeSettings(1, 2, domain.KindJoin, nil)
	join.DependingOnIDLeft, join.DependingOnIDRight = 3, 4
	assert.Equal(t, []int64{3, 4}, join.ParentIDs())

	zero := domain.NewNodeSettings(1, 3, domain.KindManualInput, nil)
	assert.Empty(t, zero.ParentIDs())
}

func TestNodeSettingsEqualIgnoringUI(t *testing.T) {
	a := domain.NewNodeSettings(1, 1, domain.KindFilter, "p")
	b := a
	b.PosX, b.PosY, b.Description = 10, 20, "moved"
	assert.True(t, a.EqualIgnoringUI(b))

	c := a
	c.CacheResults = true
	assert.False(t, a.EqualIgnoringUI(c))
}
