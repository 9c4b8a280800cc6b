package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/engine"
	"github.com/flowfile/dataflow-core/internal/settings"
	"github.com/flowfile/dataflow-core/internal/worker"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	w := worker.New(worker.ModeEmbedded, "", t.TempDir(), "ffa", nil)
	return engine.New(w)
}

func buildGraph(t *testing.T, mode domain.ExecutionMode, rows []map[string]any, filterExpr string, cacheFilter bool) (*domain.FlowGraph, settings.Catalog) {
	t.Helper()
	catalog := settings.NewCatalog()
	flowSettings := domain.NewFlowSettings(1, "test-flow")
	flowSettings.ExecutionMode = mode
	g := domain.NewFlowGraph(1, flowSettings, zerolog.Nop())

	inputPayload := settings.ManualInputPayload{
		Rows: rows,
		ExpectedSchema: []settings.FieldSpec{
			{Name: "name", Type: domain.TypeString},
			{Name: "age", Type: domain.TypeFloat64},
		},
	}
	inputSettings := domain.NewNodeSettings(1, 1, domain.KindManualInput, inputPayload)
	closure, err := catalog.Closure(inputSettings)
	require.NoError(t, err)
	schemaCB, err := catalog.SchemaCallback(domain.KindManualInput)
	require.NoError(t, err)
	_, err = g.AddNodeStep(inputSettings, closure, schemaCB, nil)
	require.NoError(t, err)

	filterSettings := domain.NewNodeSettings(1, 2, domain.KindFilter, settings.FilterPayload{Expression: filterExpr})
	filterSettings.CacheResults = cacheFilter
	fClosure, err := catalog.Closure(filterSettings)
	require.NoError(t, err)
	fSchemaCB, err := catalog.SchemaCallback(domain.KindFilter)
	require.NoError(t, err)
	_, err = g.AddNodeStep(filterSettings, fClosure, fSchemaCB, nil)
	require.NoError(t, err)

	require.NoError(t, g.ConnectNode(domain.Edge{FromNodeID: 1, ToNodeID: 2, ToPort: domain.PortMain}))
	return g, catalog
}

func TestPerformanceModeLinearRunSucceeds(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModePerformance, []map[string]any{
		{"name": "a", "age": 10.0},
		{"name": "b", "age": 30.0},
	}, "age >= 18", true)
	g.SetExecutor(e)

	info, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Success)
	assert.Equal(t, uint32(2), info.NodesCompleted)
	assert.Equal(t, uint32(2), info.TotalNodes)
}

func TestPerformanceModeMaterializesCachedSink(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModePerformance, []map[string]any{
		{"name": "a", "age": 40.0},
	}, "age >= 18", true)
	g.SetExecutor(e)

	_, err := g.Run(context.Background())
	require.NoError(t, err)

	n, ok := g.Node(2)
	require.True(t, ok)
	require.NotNil(t, n.Result)
	assert.Equal(t, domain.MaterializationOnDisk, n.Result.DataHandle.State(), "a node with cache_results set must be materialized to disk")
}

func TestPerformanceModeAbortsOnFirstError(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModePerformance, []map[string]any{
		{"name": "a", "age": 10.0},
	}, "not a valid expr !!!", false)
	g.SetExecutor(e)

	info, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, info.Success)

	var filterResult *domain.NodeRunSummary
	for i := range info.PerNodeResults {
		if info.PerNodeResults[i].NodeID == 2 {
			filterResult = &info.PerNodeResults[i]
		}
	}
	require.NotNil(t, filterResult)
	assert.False(t, filterResult.Success)
}

func TestDevelopmentModeSkipsUnchangedHash(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModeDevelopment, []map[string]any{
		{"name": "a", "age": 20.0},
	}, "age >= 18", false)
	g.SetExecutor(e)

	info1, err := g.Run(context.Background())
	require.NoError(t, err)
	require.True(t, info1.Success)

	info2, err := g.Run(context.Background())
	require.NoError(t, err)
	require.True(t, info2.Success)

	for _, s := range info2.PerNodeResults {
		assert.True(t, s.Skipped, "node %d should be skipped on an unchanged second run", s.NodeID)
	}
}

func TestDevelopmentModeFailureKeepsUpstreamSuccess(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModeDevelopment, []map[string]any{
		{"name": "a", "age": 10.0},
	}, "not a valid expr !!!", false)
	g.SetExecutor(e)

	info, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, info.Success)

	var inputResult, filterResult *domain.NodeRunSummary
	for i := range info.PerNodeResults {
		switch info.PerNodeResults[i].NodeID {
		case 1:
			inputResult = &info.PerNodeResults[i]
		case 2:
			filterResult = &info.PerNodeResults[i]
		}
	}
	require.NotNil(t, inputResult)
	require.NotNil(t, filterResult)
	assert.True(t, inputResult.Success, "the input node has no faulty expression and must still succeed")
	assert.False(t, filterResult.Success)
}

func TestRunRejectsConcurrentExecution(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModePerformance, []map[string]any{{"name": "a", "age": 20.0}}, "age >= 18", false)
	g.SetExecutor(e)
	g.Settings.IsRunning = true

	_, err := g.Run(context.Background())
	assert.Error(t, err)
}

func TestCancelStopsRunEarly(t *testing.T) {
	e := newTestEngine(t)
	g, _ := buildGraph(t, domain.ModePerformance, []map[string]any{{"name": "a", "age": 20.0}}, "age >= 18", false)
	g.SetExecutor(e)

	e.Cancel(g.FlowID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := g.Run(ctx)
	require.NoError(t, err)
	assert.False(t, info.Success)
	for _, s := range info.PerNodeResults {
		assert.True(t, s.Skipped)
	}
}
