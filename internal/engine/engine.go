// Package engine is the Execution Engine: it implements domain.Executor,
// turning a FlowGraph's topological order into a Performance-mode
// single-pass pull from sinks or a Development-mode per-node push with row
// sampling, offloading materialization to a worker.Client either way.
// Structured as a three-phase plan/execute/finalize run.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowfile/dataflow-core/internal/domain"
	domainerrors "github.com/flowfile/dataflow-core/internal/domain/errors"
	"github.com/flowfile/dataflow-core/internal/infrastructure/progress"
	"github.com/flowfile/dataflow-core/internal/worker"
)

// sampleSize is the row cap Development mode materializes per node for
// inline preview.
const sampleSize = 100

// Engine is the concrete domain.Executor.
type Engine struct {
	worker *worker.Client
	tracer trace.Tracer
	hub    *progress.Hub

	mu       sync.Mutex
	canceled map[uint64]bool
}

var _ domain.Executor = (*Engine)(nil)

// New builds an Engine backed by w. w may be nil only in tests that never
// reach a sink/materialization step.
func New(w *worker.Client) *Engine {
	return &Engine{
		worker:   w,
		tracer:   otel.Tracer("flowfile/engine"),
		canceled: make(map[uint64]bool),
	}
}

// SetHub attaches a progress.Hub that Run publishes per-node stage
// transitions to whenever FlowSettings.ShowDetailedProgress is set.
func (e *Engine) SetHub(hub *progress.Hub) { e.hub = hub }

func (e *Engine) report(g *domain.FlowGraph, executionID string, nodeID int64, stage progress.Stage, detail string) {
	if e.hub == nil || !g.Settings.ShowDetailedProgress {
		return
	}
	e.hub.Publish(progress.Event{
		FlowID:      g.FlowID,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Stage:       stage,
		Detail:      detail,
	})
}

// Cancel requests cooperative cancellation of flowID's in-flight run.
func (e *Engine) Cancel(flowID uint64) {
	e.mu.Lock()
	e.canceled[flowID] = true
	e.mu.Unlock()
}

func (e *Engine) isCanceled(flowID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canceled[flowID]
}

func (e *Engine) clearCanceled(flowID uint64) {
	e.mu.Lock()
	delete(e.canceled, flowID)
	e.mu.Unlock()
}

type sinkKey struct{}

// WithExplicitSinks marks node ids that must materialize even if they are
// not sink-writing kinds and do not request cache_results.
func WithExplicitSinks(ctx context.Context, ids ...int64) context.Context {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return context.WithValue(ctx, sinkKey{}, set)
}

func explicitSinks(ctx context.Context) map[int64]bool {
	if v, ok := ctx.Value(sinkKey{}).(map[int64]bool); ok {
		return v
	}
	return nil
}

// Run executes g end to end. Concurrent runs of the same flow
// are rejected via Settings.IsRunning.
func (e *Engine) Run(ctx context.Context, g *domain.FlowGraph) (domain.RunInformation, error) {
	if g.Settings.IsRunning {
		return domain.RunInformation{}, domainerrors.Execution(g.FlowID, 0, "flow is already running", nil)
	}

	ctx, span := e.tracer.Start(ctx, "flow.run",
		trace.WithAttributes(attribute.Int64("flow_id", int64(g.FlowID))))
	defer span.End()

	defer e.clearCanceled(g.FlowID)
	g.Settings.IsRunning = true
	g.Settings.IsCanceled = false
	defer func() { g.Settings.IsRunning = false }()

	executionID := uuid.NewString()
	info := domain.RunInformation{
		FlowID:      g.FlowID,
		ExecutionID: executionID,
		StartTS:     time.Now(),
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		info.EndTS = time.Now()
		return info, err
	}
	info.TotalNodes = uint32(len(order))

	g.Log.Info().Str("execution_id", executionID).Str("mode", string(g.Settings.ExecutionMode)).
		Int("node_count", len(order)).Msg("flow run started")

	switch g.Settings.ExecutionMode {
	case domain.ModeDevelopment:
		e.runDevelopment(ctx, g, order, explicitSinks(ctx), executionID, &info)
	default:
		e.runPerformance(ctx, g, order, explicitSinks(ctx), executionID, &info)
	}
	if e.isCanceled(g.FlowID) {
		info.Success = false
	}

	info.EndTS = time.Now()
	g.Log.Info().Str("execution_id", executionID).Bool("success", info.Success).
		Uint32("nodes_completed", info.NodesCompleted).Msg("flow run finished")
	return info, nil
}

// isSink reports whether id should be materialized by the Worker rather
// than left as a lazy intermediate: a sink-writing
// kind, a node with cache_results set, or one explicitly requested.
func isSink(g *domain.FlowGraph, id int64, explicit map[int64]bool) bool {
	n, ok := g.Node(id)
	if !ok {
		return false
	}
	if domain.IsSinkWritingKind(n.Settings.Kind) {
		return true
	}
	if n.Runtime.CacheResults {
		return true
	}
	if explicit[id] {
		return true
	}
	return false
}

// terminalNodeIDs returns ids in order that have no children, the fallback
// sink set used when a graph declares no explicit sinks at all.
func terminalNodeIDs(g *domain.FlowGraph, order []int64) []int64 {
	var out []int64
	for _, id := range order {
		n, ok := g.Node(id)
		if ok && len(n.Children) == 0 {
			out = append(out, id)
		}
	}
	return out
}

func domainFailure(flowID uint64, nodeID int64, reason string) error {
	return domainerrors.Execution(flowID, nodeID, reason, nil)
}

func summaryFor(n *domain.FlowNode) domain.NodeRunSummary {
	return domain.NodeRunSummary{
		NodeID:    n.Settings.NodeID,
		Kind:      n.Settings.Kind,
		StartTS:   n.Stats.StartTS,
		EndTS:     n.Stats.EndTS,
		RuntimeMS: n.Stats.RuntimeMS,
	}
}
