package engine

import (
	"context"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/infrastructure/progress"
	"github.com/flowfile/dataflow-core/internal/worker"
)

// runDevelopment pushes through the graph node by node, materializing each
// one's output and a bounded row sample immediately so the UI can inspect
// intermediate data. A node whose content hash
// is unchanged and which already ran is skipped and its prior artifact
// re-exposed rather than recomputed.
// A node's failure does not abort the run: its descendants are marked
// Errored and skipped, but independent branches still execute.
func (e *Engine) runDevelopment(ctx context.Context, g *domain.FlowGraph, order []int64, explicit map[int64]bool, executionID string, info *domain.RunInformation) {
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

		if ancestorErrored(n, errored) {
			n.Cancel()
			errored[id] = true
			info.PerNodeResults = append(info.PerNodeResults, domain.NodeRunSummary{
				NodeID: id, Kind: n.Settings.Kind, Skipped: true, SkipNote: "upstream node errored",
			})
			continue
		}

		if _, err := g.PredictSchema(id); err != nil {
			errored[id] = true
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			continue
		}
		if err := g.RecomputeNodeHash(id); err != nil {
			errored[id] = true
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			continue
		}

		if n.Stats.HasRunWithCurrentHash && n.Result != nil && n.Result.DataHandle != nil {
			summary := summaryFor(n)
			summary.Success = true
			summary.Skipped = true
			summary.SkipNote = "hash unchanged, reusing prior artifact"
			info.PerNodeResults = append(info.PerNodeResults, summary)
			info.NodesCompleted++
			continue
		}

		inputs, err := g.ResolveInputHandles(id)
		if err != nil {
			errored[id] = true
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			continue
		}

		e.report(g, executionID, id, progress.StageStarted, "")

		result, err := g.Execute(id, inputs)
		if err != nil || (result != nil && result.Error != nil) {
			if err == nil {
				err = result.Error
			}
			e.report(g, executionID, id, progress.StageErrored, err.Error())
			errored[id] = true
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			continue
		}

		if err := e.materializeWithSample(ctx, g, n); err != nil {
			e.report(g, executionID, id, progress.StageErrored, err.Error())
			errored[id] = true
			info.PerNodeResults = append(info.PerNodeResults, failSummary(n, err))
			continue
		}

		e.report(g, executionID, id, progress.StageCompleted, "")
		summary := summaryFor(n)
		summary.Success = true
		info.PerNodeResults = append(info.PerNodeResults, summary)
		info.NodesCompleted++
	}

	info.Success = len(errored) == 0
}

func ancestorErrored(n *domain.FlowNode, errored map[int64]bool) bool {
	for _, p := range n.Parents {
		if errored[p.NodeID] {
			return true
		}
	}
	return false
}

// materializeWithSample offloads n's result to the Worker, reads the
// artifact back into n's OnDisk handle so descendants can collect it, and
// writes its first sampleSize rows beside the artifact as the inline
// preview recorded in ExampleRowsPath.
func (e *Engine) materializeWithSample(ctx context.Context, g *domain.FlowGraph, n *domain.FlowNode) error {
	handle := n.Result.DataHandle

	taskID, err := e.worker.Submit(ctx, worker.SubmitRequest{
		FlowID:    g.FlowID,
		FileRef:   n.Hash(),
		Operation: worker.OperationCollect,
		Plan:      asPlan(handle),
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

	table, err := cle.ReadArtifact(status.ArtifactPath)
	if err != nil {
		return err
	}
	rc := status.RowCount
	onDisk := cle.NewOnDisk(handle.Schema(), status.ArtifactPath, n.Hash(), rc)
	onDisk.Materialize(table)
	n.Result.DataHandle = onDisk
	n.Result.RowCount = &rc
	samplePath := status.ArtifactPath + ".sample"
	if err := cle.WriteArtifact(samplePath, table.Sample(sampleSize)); err != nil {
		return err
	}
	n.Result.ExampleRowsPath = samplePath
	return nil
}

// asPlan extracts a handle's underlying LazyPlan, wrapping already-collected
// in-memory tables as a trivial StaticPlan so Development mode can always
// submit through the same worker path regardless of handle state.
func asPlan(h domain.DataHandle) cle.LazyPlan {
	if p, ok := h.(interface{ Plan() cle.LazyPlan }); ok {
		if plan := p.Plan(); plan != nil {
			return plan
		}
	}
	table, err := h.(interface {
		Collect() (*cle.Table, error)
	}).Collect()
	if err != nil {
		return cle.NewFuncPlan(h.Schema(), func() (*cle.Table, error) { return nil, err })
	}
	return cle.NewStaticPlan(table)
}
