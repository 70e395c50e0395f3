package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/persona-transformer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(t *testing.T, s *MemoryStore) *types.Job {
	t.Helper()
	job := &types.Job{ID: uuid.New(), ContentID: "c1", PersonaID: "p1", Format: types.FormatBlog, Status: types.JobQueued, CreatedAt: time.Now()}
	require.NoError(t, s.Job().Create(context.Background(), job))
	return job
}

func newRevision(jobID uuid.UUID, seq int) *types.Revision {
	return &types.Revision{ID: uuid.New(), JobID: jobID, Sequence: seq, Text: "text", ApprovalStatus: types.ApprovalPending}
}

func TestMemoryContent_DuplicateKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := &types.SourceContent{ID: "report", Sections: []types.Section{{Kind: types.SectionParagraph, Text: "hello"}}}

	require.NoError(t, s.Content().Create(ctx, c))
	assert.False(t, c.IngestedAt.IsZero())
	assert.ErrorIs(t, s.Content().Create(ctx, c), ErrDuplicateKey)

	got, err := s.Content().Get(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Sections[0].Text)

	_, err = s.Content().Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryPersona_Versioning(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Persona().Create(ctx, &types.Persona{ID: "cfo", Name: "CFO", Expertise: types.ExpertiseExpert, Style: types.StyleFormal})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	created.Name = "Chief Financial Officer"
	updated, err := s.Persona().Update(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	// Writing again from the stale copy fails.
	_, err = s.Persona().Update(ctx, created)
	assert.ErrorIs(t, err, ErrStaleWrite)

	v1, err := s.Persona().GetVersion(ctx, "cfo", 1)
	require.NoError(t, err)
	assert.Equal(t, "CFO", v1.Name)

	archived, err := s.Persona().Archive(ctx, "cfo", 2)
	require.NoError(t, err)
	assert.True(t, archived.Archived)
	assert.Equal(t, 3, archived.Version)

	v2, err := s.Persona().GetVersion(ctx, "cfo", 2)
	require.NoError(t, err)
	assert.False(t, v2.Archived, "archiving does not rewrite history")

	_, err = s.Persona().GetVersion(ctx, "cfo", 9)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryPersona_ConcurrentUpdatesOneWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, err := s.Persona().Create(ctx, &types.Persona{ID: "dev", Name: "Dev"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Persona().Update(ctx, p.Clone()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryRevision_AppendIsGapless(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(t, s)

	require.NoError(t, s.Revision().Append(ctx, newRevision(job.ID, 1)))
	assert.ErrorIs(t, s.Revision().Append(ctx, newRevision(job.ID, 3)), ErrStaleWrite)
	assert.ErrorIs(t, s.Revision().Append(ctx, newRevision(job.ID, 1)), ErrStaleWrite)
	require.NoError(t, s.Revision().Append(ctx, newRevision(job.ID, 2)))

	chain, err := s.Revision().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, 1, chain[0].Sequence)
	assert.Equal(t, 2, chain[1].Sequence)

	latest, err := s.Revision().Latest(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Sequence)

	_, err = s.Revision().Latest(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemoryRevision_PromoteKeepsSingleApproved(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(t, s)
	r1 := newRevision(job.ID, 1)
	r2 := newRevision(job.ID, 2)
	require.NoError(t, s.Revision().Append(ctx, r1))
	require.NoError(t, s.Revision().Append(ctx, r2))

	require.NoError(t, s.Revision().Promote(ctx, job.ID, r1.ID, "good"))
	require.NoError(t, s.Revision().Promote(ctx, job.ID, r2.ID, "better"))

	got1, _ := s.Revision().Get(ctx, r1.ID)
	got2, _ := s.Revision().Get(ctx, r2.ID)
	assert.Equal(t, types.ApprovalSuperseded, got1.ApprovalStatus)
	assert.Equal(t, types.ApprovalApproved, got2.ApprovalStatus)
	assert.Equal(t, "better", got2.Feedback)

	j, _ := s.Job().Get(ctx, job.ID)
	require.NotNil(t, j.ApprovedRevisionID)
	assert.Equal(t, r2.ID, *j.ApprovedRevisionID)

	assert.ErrorIs(t, s.Revision().Promote(ctx, job.ID, uuid.New(), ""), ErrRecordNotFound)
}

func TestMemoryRevision_PromoteRequiresPendingOrSuperseded(t *testing.T) {
	tests := []struct {
		name    string
		status  types.ApprovalStatus
		wantErr error
	}{
		{name: "pending", status: types.ApprovalPending},
		{name: "superseded", status: types.ApprovalSuperseded},
		{name: "rejected", status: types.ApprovalRejected, wantErr: ErrStaleWrite},
		{name: "approved", status: types.ApprovalApproved, wantErr: ErrStaleWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			ctx := context.Background()
			job := newJob(t, s)
			rev := newRevision(job.ID, 1)
			require.NoError(t, s.Revision().Append(ctx, rev))
			require.NoError(t, s.Revision().SetReview(ctx, rev.ID, tt.status, "", "redo"))

			err := s.Revision().Promote(ctx, job.ID, rev.ID, "ship it")
			got, getErr := s.Revision().Get(ctx, rev.ID)
			require.NoError(t, getErr)
			j, getErr := s.Job().Get(ctx, job.ID)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.status, got.ApprovalStatus)
				assert.Equal(t, "redo", got.ReviewNotes)
				assert.Nil(t, j.ApprovedRevisionID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.ApprovalApproved, got.ApprovalStatus)
			require.NotNil(t, j.ApprovedRevisionID)
			assert.Equal(t, rev.ID, *j.ApprovedRevisionID)
		})
	}
}

func TestMemoryJob_ListByStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := newJob(t, s)
	b := newJob(t, s)
	b.Status = types.JobCompleted
	require.NoError(t, s.Job().Update(ctx, b))

	queued, err := s.Job().ListByStatus(ctx, types.JobQueued, types.JobProcessing)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, a.ID, queued[0].ID)

	assert.ErrorIs(t, s.Job().Update(ctx, &types.Job{ID: uuid.New()}), ErrRecordNotFound)
}

func TestMemoryJob_UpdateKeepsApprovedPointer(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := newJob(t, s)
	rev := newRevision(job.ID, 1)
	require.NoError(t, s.Revision().Append(ctx, rev))

	stale, err := s.Job().Get(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, s.Revision().Promote(ctx, job.ID, rev.ID, ""))

	stale.Progress = 80
	require.NoError(t, s.Job().Update(ctx, stale))

	got, err := s.Job().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, got.Progress)
	require.NotNil(t, got.ApprovedRevisionID)
	assert.Equal(t, rev.ID, *got.ApprovedRevisionID)
}
