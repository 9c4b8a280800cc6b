package engine

import (
	"context"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/infrastructure/progress"
	"github.com/flowfile/dataflow-core/internal/worker"
)

// runPerformance builds every node's closure in topological order — cheap,
// since non-sink closures only compose lazy plans and never collect — then
// materializes just the sink set through the Worker, a single pass over the
// graph rather than one traversal per sink.
func (e *Engine) runPerformance(ctx context.Context, g *domain.FlowGraph, order []int64, explicit map[int64]bool, executionID string, info *domain.RunInformation) {
	aborted := false
	errored := make(map[int64]bool)

	for _, id := range order {
		n, _ := g.Node(id)

		if e.isCanceled(g.FlowID) {
			n.Cancel()
			e.report(g, executionID, id, progress.StageCanceled, "")
			info.PerNodeResults = append(info.PerNodeResults, domain.NodeRunSummary{
				NodeID: id, Kind: n.Settings.Kind, Skipped: true, SkipNote: "run canceled",
			})
			continue
		}
		if aborted {
			info.PerNodeResults = append(info.PerNodeResults, domain.NodeRunSummary{
				NodeID: id, Kind: n.Settings.Kind, Skipped: true, SkipNote: "upstream node failed",
			})
			continue
		}

		if _, err := g.PredictSchema(id); err != nil {
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			aborted = true
			continue
		}
		if err := g.RecomputeNodeHash(id); err != nil {
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			aborted = true
			continue
		}

		inputs, err := g.ResolveInputHandles(id)
		if err != nil {
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			aborted = true
			continue
		}

		result, err := g.Execute(id, inputs)
		if err != nil || (result != nil && result.Error != nil) {
			if err == nil {
				err = result.Error
			}
			e.report(g, executionID, id, progress.StageErrored, err.Error())
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			aborted = true
			errored[id] = true
			continue
		}

		e.report(g, executionID, id, progress.StageCompleted, "")
		summary := summaryFor(n)
		summary.Success = true
		info.PerNodeResults = append(info.PerNodeResults, summary)
		info.NodesCompleted++
	}

	if aborted {
		info.Success = false
		return
	}

	sinks := sinkSet(g, order, explicit)
	for _, id := range sinks {
		if e.isCanceled(g.FlowID) {
			break
		}
		n, ok := g.Node(id)
		if !ok || n.Result == nil || n.Result.DataHandle == nil {
			continue
		}
		if err := e.materialize(ctx, g, n); err != nil {
			aborted = true
			for i, s := range info.PerNodeResults {
				if s.NodeID == id {
					info.PerNodeResults[i] = failSummary(n, err)
					info.NodesCompleted--
					break
				}
			}
		}
	}

	info.Success = !aborted
}

func sinkSet(g *domain.FlowGraph, order []int64, explicit map[int64]bool) []int64 {
	var out []int64
	for _, id := range order {
		if isSink(g, id, explicit) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		out = terminalNodeIDs(g, order)
	}
	return out
}

// materialize offloads n's current DataHandle to the Worker when it is
// still Lazy, then swaps n.Result.DataHandle for the resulting on-disk
// handle.
func (e *Engine) materialize(ctx context.Context, g *domain.FlowGraph, n *domain.FlowNode) error {
	handle := n.Result.DataHandle
	if handle.State() != domain.MaterializationLazy {
		return nil
	}
	plan, ok := handle.(interface{ Plan() cle.LazyPlan })
	if !ok {
		return nil
	}

	taskID, err := e.worker.Submit(ctx, worker.SubmitRequest{
		FlowID:    g.FlowID,
		FileRef:   n.Hash(),
		Operation: worker.OperationCollect,
		Plan:      plan.Plan(),
	})
	if err != nil {
		return err
	}
	status, err := e.worker.AwaitCompletion(ctx, taskID, func() bool { return e.isCanceled(g.FlowID) })
	if err != nil {
		return err
	}
	if status.Status == worker.StatusFailed {
		return domainFailure(g.FlowID, n.Settings.NodeID, status.Reason)
	}

	rc := status.RowCount
	n.Result.DataHandle = cle.NewOnDisk(handle.Schema(), status.ArtifactPath, n.Hash(), rc)
	n.Result.RowCount = &rc
	return nil
}

func failSummary(n *domain.FlowNode, err error) domain.NodeRunSummary {
	s := summaryFor(n)
	s.Success = false
	s.Error = err.Error()
	return s
}
