package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowfile/dataflow-core/internal/cle"
)

// remoteSubmitBody is what a remote Worker's /tasks endpoint accepts. The
// plan itself cannot cross a process boundary as a Go closure, so remote
// mode collects locally and ships the materialized table — a documented
// simplification of submitting a serialized lazy plan, since no portable
// plan IR is wired into this client.
type remoteSubmitBody struct {
	FlowID  uint64 `json:"flow_id"`
	FileRef string `json:"file_ref"`
	Op      string `json:"operation"`
	Rows    []map[string]any `json:"rows"`
}

type remoteTaskResponse struct {
	Status       string `json:"status"`
	ProgressPct  int    `json:"progress_pct"`
	ArtifactPath string `json:"artifact_path"`
	RowCount     uint64 `json:"row_count"`
	Reason       string `json:"reason"`
}

func (c *Client) runRemote(ctx context.Context, taskID TaskID, state *taskState, req SubmitRequest) {
	state.mu.Lock()
	state.status = StatusRunning
	state.mu.Unlock()

	err := c.retry.Do(func(attempt int) error {
		select {
		case <-state.cancel:
			return fmt.Errorf("worker: task canceled")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		table, err := req.Plan.Collect()
		if err != nil {
			return err
		}
		rows := make([]map[string]any, len(table.Rows))
		for i, r := range table.Rows {
			rows[i] = map[string]any(r)
		}
		body := remoteSubmitBody{
			FlowID:  req.FlowID,
			FileRef: req.FileRef.String(),
			Op:      string(req.Operation),
			Rows:    rows,
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		token, err := c.signTask(taskID, req.FileRef)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remoteURL+"/tasks", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("worker: remote submit returned status %d", resp.StatusCode)
		}

		var out remoteTaskResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}

		path := out.ArtifactPath
		if path == "" {
			path = c.artifactPath(req.FlowID, req.FileRef)
			if err := cle.WriteArtifact(path, table); err != nil {
				return err
			}
		}

		state.mu.Lock()
		state.status = StatusCompleted
		state.progress = 100
		state.artifact = path
		state.rowCount = uint64(len(table.Rows))
		state.mu.Unlock()
		c.cache.Put(req.FileRef, path)
		return nil
	})

	if err != nil {
		state.mu.Lock()
		state.status = StatusFailed
		state.reason = err.Error()
		state.mu.Unlock()
		c.breaker.RecordFailure()
		return
	}
	c.breaker.RecordSuccess()
}
