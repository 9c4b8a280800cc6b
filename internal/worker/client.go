package worker

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
)

// Mode selects where materialization actually happens.
type Mode string

const (
	// ModeEmbedded runs submit/poll/cancel in-process against the cle
	// package directly, with no standalone worker binary required
	// (FLOWFILE_WORKER_URL="embedded").
	ModeEmbedded Mode = "embedded"
	// ModeRemote posts the same protocol to a configured HTTP endpoint.
	ModeRemote Mode = "remote"
)

// SubmitRequest is what FlowNode execution hands the Worker client.
type SubmitRequest struct {
	FlowID    uint64
	FileRef   domain.Hash
	Operation Operation
	Plan      cle.LazyPlan
	Format    string // artifact file extension, from FLOWFILE_ARTIFACT_FORMAT
}

type taskState struct {
	mu       sync.Mutex
	status   Status
	progress int
	artifact string
	rowCount uint64
	reason   string
	cancel   chan struct{}
}

// Client is the Worker Offload Client.
type Client struct {
	mode       Mode
	remoteURL  string
	httpClient *http.Client
	cacheRoot  string
	format     string
	signingKey []byte

	cache   *ArtifactCache
	retry   RetryPolicy
	breaker *CircuitBreaker

	pollTimeout time.Duration

	mu    sync.Mutex
	tasks map[TaskID]*taskState
}

// New builds a Worker client. cacheRoot and format come from
// FLOWFILE_CACHE_ROOT / FLOWFILE_ARTIFACT_FORMAT; mode/remoteURL
// come from FLOWFILE_WORKER_URL.
func New(mode Mode, remoteURL, cacheRoot, format string, signingKey []byte) *Client {
	return &Client{
		mode:        mode,
		remoteURL:   remoteURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		cacheRoot:   cacheRoot,
		format:      format,
		signingKey:  signingKey,
		cache:       NewArtifactCache(0),
		retry:       DefaultRetryPolicy(),
		breaker:     NewCircuitBreaker(3, 30*time.Second),
		pollTimeout: 60 * time.Second,
		tasks:       make(map[TaskID]*taskState),
	}
}

func (c *Client) artifactPath(flowID uint64, ref domain.Hash) string {
	ext := c.format
	if ext == "" {
		ext = "ffa"
	}
	return filepath.Join(c.cacheRoot, fmt.Sprintf("%d", flowID), ref.String()+"."+ext)
}

// signTask issues a short-lived HS256 token binding fileRef and taskID, so
// a remote Worker cannot be tricked into returning a mismatched artifact
// for a task it was not actually given.
func (c *Client) signTask(taskID TaskID, fileRef domain.Hash) (string, error) {
	if len(c.signingKey) == 0 {
		return "", nil
	}
	claims := jwt.MapClaims{
		"task_id":  string(taskID),
		"file_ref": fileRef.String(),
		"exp":      time.Now().Add(10 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.signingKey)
}

// Submit begins materializing req's plan, short-circuiting to Completed
// immediately if an artifact for req.FileRef already exists.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (TaskID, error) {
	if err := c.breaker.Allow(); err != nil {
		return "", err
	}

	taskID := TaskID(uuid.NewString())

	if path, ok := c.cache.Lookup(req.FileRef); ok {
		c.trackTask(taskID, &taskState{status: StatusCompleted, progress: 100, artifact: path, cancel: make(chan struct{})})
		c.breaker.RecordSuccess()
		return taskID, nil
	}

	state := &taskState{status: StatusQueued, cancel: make(chan struct{})}
	c.trackTask(taskID, state)

	switch c.mode {
	case ModeRemote:
		go c.runRemote(ctx, taskID, state, req)
	default:
		go c.runEmbedded(taskID, state, req)
	}
	return taskID, nil
}

func (c *Client) trackTask(id TaskID, s *taskState) {
	c.mu.Lock()
	c.tasks[id] = s
	c.mu.Unlock()
}

func (c *Client) runEmbedded(taskID TaskID, state *taskState, req SubmitRequest) {
	state.mu.Lock()
	state.status = StatusRunning
	state.mu.Unlock()

	err := c.retry.Do(func(attempt int) error {
		select {
		case <-state.cancel:
			return fmt.Errorf("worker: task canceled")
		default:
		}

		table, err := req.Plan.Collect()
		if err != nil {
			return err
		}
		path := c.artifactPath(req.FlowID, req.FileRef)
		if err := cle.WriteArtifact(path, table); err != nil {
			return err
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

// Poll reports a task's current status.
func (c *Client) Poll(taskID TaskID) (TaskStatus, error) {
	c.mu.Lock()
	state, ok := c.tasks[taskID]
	c.mu.Unlock()
	if !ok {
		return TaskStatus{}, fmt.Errorf("worker: unknown task %s", taskID)
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return TaskStatus{
		Status:       state.status,
		ProgressPct:  state.progress,
		ArtifactPath: state.artifact,
		RowCount:     state.rowCount,
		Reason:       state.reason,
	}, nil
}

// Cancel best-effort terminates a task: it closes the task's cancel channel
// and marks it Failed with reason "canceled". It removes no files.
func (c *Client) Cancel(taskID TaskID) {
	c.mu.Lock()
	state, ok := c.tasks[taskID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-state.cancel:
	default:
		close(state.cancel)
	}
	state.mu.Lock()
	state.status = StatusFailed
	state.reason = "canceled"
	state.mu.Unlock()
}

// ReadSample streams a prefix of the columnar file at artifactPath.
func (c *Client) ReadSample(artifactPath string, maxRows int) (RowBatch, error) {
	table, err := cle.ReadArtifactSample(artifactPath, maxRows)
	if err != nil {
		return RowBatch{}, err
	}
	rows := make([]map[string]any, len(table.Rows))
	for i, r := range table.Rows {
		rows[i] = map[string]any(r)
	}
	return RowBatch{Schema: table.Schema, Rows: rows}, nil
}

// AwaitCompletion polls taskID every 50ms until it leaves Queued/Running.
// It cancels the task and returns an error when ctx is done, when
// isCanceled reports true, or once ten times the client's poll timeout
// (60s by default, so 10 minutes) has passed. That overall deadline is set
// by New and callers cannot change it; Poll itself has no per-call
// timeout. Used by the engine's offload path instead of re-implementing a
// polling loop per mode.
func (c *Client) AwaitCompletion(ctx context.Context, taskID TaskID, isCanceled func() bool) (TaskStatus, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(c.pollTimeout * 10) // overall task timeout
	for {
		select {
		case <-ctx.Done():
			c.Cancel(taskID)
			return TaskStatus{}, ctx.Err()
		case <-ticker.C:
			if isCanceled != nil && isCanceled() {
				c.Cancel(taskID)
				return TaskStatus{}, fmt.Errorf("worker: canceled")
			}
			status, err := c.Poll(taskID)
			if err != nil {
				return TaskStatus{}, err
			}
			if status.Status == StatusCompleted || status.Status == StatusFailed {
				return status, nil
			}
			if time.Now().After(deadline) {
				c.Cancel(taskID)
				return TaskStatus{}, fmt.Errorf("worker: task %s timed out", taskID)
			}
		}
	}
}
