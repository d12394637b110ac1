package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"FinReplay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runPayload struct {
	RunID  string `json:"run_id"`
	Action int    `json:"action"`
}

type recordingJob struct {
	mu       sync.Mutex
	got      []runPayload
	failures int
	err      error
	done     chan struct{}
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "evaluation.run" }

func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	p, err := ParsePayload[runPayload](payload)
	if err != nil {
		return Permanent(err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failures > 0 {
		j.failures--
		return j.err
	}
	j.got = append(j.got, *p)
	close(j.done)
	return nil
}

func TestParsePayload(t *testing.T) {
	raw := json.RawMessage(`{"run_id":"r1","action":3}`)
	p, err := ParsePayload[runPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, runPayload{RunID: "r1", Action: 3}, *p)

	m := map[string]interface{}{"run_id": "r2", "action": 1}
	p, err = ParsePayload[runPayload](m)
	require.NoError(t, err)
	assert.Equal(t, "r2", p.RunID)

	_, err = ParsePayload[runPayload](42)
	require.Error(t, err)
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestMemoryQueueRetriesThenDelivers(t *testing.T) {
	q := NewMemoryQueue(logger.NewNop(), &QueueConfig{Workers: 2, RetryLimit: 2, RetryDelay: time.Millisecond})
	job := &recordingJob{failures: 1, err: errors.New("transient"), done: make(chan struct{})}
	q.RegisterJobs([]Job{job})
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.PublishMessage(context.Background(), "evaluation.run", runPayload{RunID: "r1", Action: 2}))

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	assert.Equal(t, []runPayload{{RunID: "r1", Action: 2}}, job.got)
}

func TestMemoryQueueRejectsUnknownType(t *testing.T) {
	q := NewMemoryQueue(logger.NewNop(), nil)
	require.Error(t, q.PublishMessage(context.Background(), "evaluation.run", nil))

	require.NoError(t, q.Start())
	defer q.Stop(context.Background())
	require.Error(t, q.PublishMessage(context.Background(), "nope", nil))
}
