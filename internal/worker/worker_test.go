package worker_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowfile/dataflow-core/internal/cle"
	"github.com/flowfile/dataflow-core/internal/domain"
	"github.com/flowfile/dataflow-core/internal/worker"
)

func TestArtifactCacheMissThenHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.ffa")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	cache := worker.NewArtifactCache(0)
	_, ok := cache.Lookup(domain.Hash{1})
	assert.False(t, ok)

	cache.Put(domain.Hash{1}, path)
	got, ok := cache.Lookup(domain.Hash{1})
	require.True(t, ok)
	assert.Equal(t, path, got)
}

func TestArtifactCacheLookupMissingFileEvictsEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.ffa")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	cache := worker.NewArtifactCache(0)
	cache.Put(domain.Hash{2}, path)
	require.NoError(t, os.Remove(path))

	_, ok := cache.Lookup(domain.Hash{2})
	assert.False(t, ok, "a cache entry whose file no longer exists must report a miss")
}

func TestArtifactCacheEvictsOldestOverCap(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "a.ffa")
	big := filepath.Join(dir, "b.ffa")
	require.NoError(t, os.WriteFile(small, make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(big, make([]byte, 10), 0o644))

	cache := worker.NewArtifactCache(15)
	cache.Put(domain.Hash{1}, small)
	cache.Put(domain.Hash{2}, big)

	_, stillThere := cache.Lookup(domain.Hash{1})
	_, newOne := cache.Lookup(domain.Hash{2})
	assert.False(t, stillThere, "oldest entry must be evicted once the byte cap is exceeded")
	assert.True(t, newOne)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := worker.NewCircuitBreaker(2, 50*time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), worker.ErrOpen)
}

func TestCircuitBreakerHalfOpensAfterResetWindow(t *testing.T) {
	b := worker.NewCircuitBreaker(1, 20*time.Millisecond)
	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), worker.ErrOpen)

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, b.Allow(), "breaker must allow a trial call once resetAfter has elapsed")
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := worker.NewCircuitBreaker(1, 20*time.Millisecond)
	b.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), worker.ErrOpen)
}

func TestCircuitBreakerSuccessClosesAndResetsFailures(t *testing.T) {
	b := worker.NewCircuitBreaker(2, 50*time.Millisecond)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	require.NoError(t, b.Allow(), "a single post-reset failure must not reopen the breaker")
}

func TestRetryPolicyRetriesOnce(t *testing.T) {
	policy := worker.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	err := policy.Do(func(attempt int) error {
		attempts++
		if attempt == 1 {
			return assertError{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryPolicyReturnsLastErrorAfterExhausting(t *testing.T) {
	policy := worker.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	err := policy.Do(func(attempt int) error {
		return assertError{}
	})
	assert.Error(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestClientSubmitEmbeddedCompletes(t *testing.T) {
	dir := t.TempDir()
	c := worker.New(worker.ModeEmbedded, "", dir, "ffa", nil)

	schema := domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})
	plan := cle.NewStaticPlan(&cle.Table{Schema: schema, Rows: []cle.Row{{"x": 1.0}}})

	var ref domain.Hash
	ref[0] = 9
	taskID, err := c.Submit(context.Background(), worker.SubmitRequest{
		FlowID:    1,
		FileRef:   ref,
		Operation: worker.OperationCollect,
		Plan:      plan,
	})
	require.NoError(t, err)

	status, err := c.AwaitCompletion(context.Background(), taskID, nil)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, status.Status)
	assert.Equal(t, uint64(1), status.RowCount)
	assert.FileExists(t, status.ArtifactPath)
}

func TestClientSubmitReusesCachedArtifact(t *testing.T) {
	dir := t.TempDir()
	c := worker.New(worker.ModeEmbedded, "", dir, "ffa", nil)
	schema := domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})
	plan := cle.NewStaticPlan(&cle.Table{Schema: schema, Rows: []cle.Row{{"x": 1.0}}})

	var ref domain.Hash
	ref[0] = 5
	req := worker.SubmitRequest{FlowID: 1, FileRef: ref, Operation: worker.OperationCollect, Plan: plan}

	firstID, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	_, err = c.AwaitCompletion(context.Background(), firstID, nil)
	require.NoError(t, err)

	secondID, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	status, err := c.Poll(secondID)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, status.Status, "a resubmission against an already-cached file_ref must complete immediately")
}

func TestClientCancelMarksTaskFailed(t *testing.T) {
	dir := t.TempDir()
	c := worker.New(worker.ModeEmbedded, "", dir, "ffa", nil)
	schema := domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})
	blocking := cle.NewFuncPlan(schema, func() (*cle.Table, error) {
		time.Sleep(200 * time.Millisecond)
		return &cle.Table{Schema: schema, Rows: nil}, nil
	})

	var ref domain.Hash
	ref[0] = 3
	taskID, err := c.Submit(context.Background(), worker.SubmitRequest{FlowID: 1, FileRef: ref, Plan: blocking})
	require.NoError(t, err)

	c.Cancel(taskID)
	status, err := c.Poll(taskID)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusFailed, status.Status)
}

func TestClientReadSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.ffa")
	schema := domain.NewSchema(domain.Field{Name: "x", Type: domain.TypeFloat64})
	table := &cle.Table{Schema: schema, Rows: []cle.Row{{"x": 1.0}, {"x": 2.0}}}
	require.NoError(t, cle.WriteArtifact(path, table))

	c := worker.New(worker.ModeEmbedded, "", dir, "ffa", nil)
	batch, err := c.ReadSample(path, 1)
	require.NoError(t, err)
	assert.Len(t, batch.Rows, 1)
}

func TestClientPollUnknownTask(t *testing.T) {
	c := worker.New(worker.ModeEmbedded, "", t.TempDir(), "ffa", nil)
	_, err := c.Poll("does-not-exist")
	assert.Error(t, err)
}
