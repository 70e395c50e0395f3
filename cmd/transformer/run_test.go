package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/orchestrator"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/types"
)

type scriptedJobs struct {
	views  []types.StatusView
	calls  int
	events chan orchestrator.ProgressEvent
}

func (s *scriptedJobs) GetStatus(context.Context, uuid.UUID) (types.StatusView, error) {
	v := s.views[min(s.calls, len(s.views)-1)]
	s.calls++
	return v, nil
}

func (s *scriptedJobs) Subscribe(uuid.UUID) (<-chan orchestrator.ProgressEvent, func()) {
	return s.events, func() {}
}

func TestWaitForJob_FollowsEvents(t *testing.T) {
	jobs := &scriptedJobs{
		views: []types.StatusView{
			{Status: types.JobQueued},
			{Status: types.JobCompleted, Progress: 100},
		},
		events: make(chan orchestrator.ProgressEvent, 3),
	}
	jobs.events <- orchestrator.ProgressEvent{Status: types.JobProcessing, Progress: 10}
	jobs.events <- orchestrator.ProgressEvent{Status: types.JobCompleted, Progress: 100}

	view, err := waitForJob(context.Background(), jobs, uuid.New(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
}

func TestWaitForJob_AlreadyTerminal(t *testing.T) {
	jobs := &scriptedJobs{views: []types.StatusView{{Status: types.JobFailed, Error: "no compliant revision"}}}
	view, err := waitForJob(context.Background(), jobs, uuid.New(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, view.Status)
	assert.Equal(t, 1, jobs.calls)
}

func TestWaitForJob_Timeout(t *testing.T) {
	jobs := &scriptedJobs{
		views:  []types.StatusView{{Status: types.JobProcessing}},
		events: make(chan orchestrator.ProgressEvent),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := waitForJob(ctx, jobs, uuid.New(), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIngestContent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	path := writeTemp(t, "content.json", `{"id": "q3", "sections": [{"kind": "paragraph", "text": "Revenue reached 42.0 million."}]}`)

	first, err := ingestContent(ctx, st, path)
	require.NoError(t, err)
	assert.Equal(t, "q3", first.ID)
	assert.Positive(t, first.Metadata.WordCount)

	again, err := ingestContent(ctx, st, path)
	require.NoError(t, err, "re-ingesting the same document reuses it")
	assert.Equal(t, first.ID, again.ID)

	_, err = ingestContent(ctx, st, writeTemp(t, "bad.json", `{"id": "x"}`))
	assert.Error(t, err)
}

func TestIngestPersona(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	p, err := ingestPersona(ctx, st, writeTemp(t, "p.json", `{"id": "cfo", "name": "CFO", "expertise": "expert", "style": "formal"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)

	again, err := ingestPersona(ctx, st, writeTemp(t, "p.json", `{"id": "cfo", "name": "Other", "expertise": "beginner", "style": "casual"}`))
	require.NoError(t, err)
	assert.Equal(t, "CFO", again.Name, "existing persona is reused")

	anon, err := ingestPersona(ctx, st, writeTemp(t, "p.json", `{"name": "Dev", "expertise": "expert", "style": "technical"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID)

	_, err = ingestPersona(ctx, st, writeTemp(t, "p.json", `{"id": "x", "name": "X", "expertise": "guru", "style": "formal"}`))
	assert.Error(t, err)
}
