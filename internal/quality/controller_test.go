package quality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/persona-transformer/internal/assets"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/templates"
	"github.com/jonathan/persona-transformer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequeuer struct {
	mu    sync.Mutex
	calls []string
	err   error
	st    store.Store
}

func (f *fakeRequeuer) Requeue(ctx context.Context, jobID uuid.UUID, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, notes)
	job, err := f.st.Job().Get(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = types.JobQueued
	job.Notes = notes
	return f.st.Job().Update(ctx, job)
}

type fakeAssets struct {
	err error
	req assets.Request
}

func (f *fakeAssets) Generate(_ context.Context, req assets.Request) ([]types.Asset, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return []types.Asset{{ID: "chart-1", URL: "https://cdn.example.com/chart-1.png"}}, nil
}

type fixture struct {
	ctx      context.Context
	store    *store.MemoryStore
	ctrl     *Controller
	requeuer *fakeRequeuer
	assets   *fakeAssets
	reg      *templates.Registry
	job      *types.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	reg := templates.NewRegistry()
	fa := &fakeAssets{}
	ctrl := NewController(s, Options{Templates: reg, Assets: fa})
	rq := &fakeRequeuer{st: s}
	ctrl.SetRequeuer(rq)

	job := &types.Job{
		ID:        uuid.New(),
		ContentID: "q3",
		PersonaID: "cfo",
		Format:    types.FormatSummary,
		Status:    types.JobProcessing,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.Job().Create(ctx, job))
	return &fixture{ctx: ctx, store: s, ctrl: ctrl, requeuer: rq, assets: fa, reg: reg, job: job}
}

func (f *fixture) setStatus(t *testing.T, status types.JobStatus) {
	t.Helper()
	job, err := f.store.Job().Get(f.ctx, f.job.ID)
	require.NoError(t, err)
	job.Status = status
	require.NoError(t, f.store.Job().Update(f.ctx, job))
}

// record appends a compliant revision and completes the job on it
func (f *fixture) record(t *testing.T) *types.Revision {
	t.Helper()
	f.setStatus(t, types.JobProcessing)
	cand := candidate(t, expert(), types.FormatSummary, expertSummary)
	tmpl, err := f.reg.Get(f.ctx, templates.DefaultID(types.FormatSummary))
	require.NoError(t, err)
	ref := tmpl.Ref()
	cand.Template = &ref

	rev, err := f.ctrl.RecordRevision(f.ctx, f.job, cand)
	require.NoError(t, err)

	job, err := f.store.Job().Get(f.ctx, f.job.ID)
	require.NoError(t, err)
	job.Status = types.JobCompleted
	job.CurrentRevisionID = &rev.ID
	require.NoError(t, f.store.Job().Update(f.ctx, job))
	return rev
}

func TestRecordRevision_Sequences(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	r2 := f.record(t)

	assert.Equal(t, 1, r1.Sequence)
	assert.Equal(t, 2, r2.Sequence)
	assert.Equal(t, types.ApprovalPending, r2.ApprovalStatus)
	assert.Equal(t, "expertise=expert style=formal", r2.Directive)
	assert.GreaterOrEqual(t, r2.Quality.Overall, 0.7)
	assert.Equal(t, types.PersonaRef{ID: "cfo", Version: 1}, r2.Persona)
}

func TestApprove_TwoApprovals(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	_, err := f.ctrl.Approve(f.ctx, f.job.ID, r1.ID, "good")
	require.NoError(t, err)

	r2 := f.record(t)
	approved, err := f.ctrl.Approve(f.ctx, f.job.ID, r2.ID, "better")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, approved.ApprovalStatus)
	assert.Equal(t, "better", approved.Feedback)

	history, err := f.ctrl.History(f.ctx, f.job.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.ApprovalSuperseded, history[0].ApprovalStatus)
	assert.Equal(t, types.ApprovalApproved, history[1].ApprovalStatus)

	job, err := f.store.Job().Get(f.ctx, f.job.ID)
	require.NoError(t, err)
	require.NotNil(t, job.ApprovedRevisionID)
	assert.Equal(t, r2.ID, *job.ApprovedRevisionID)
}

func TestApprove_NotPending(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	r2 := f.record(t)

	tests := []struct {
		name  string
		setup func()
		rev   uuid.UUID
	}{
		{name: "not current", rev: r1.ID},
		{name: "already approved", rev: r2.ID, setup: func() {
			_, err := f.ctrl.Approve(f.ctx, f.job.ID, r2.ID, "")
			require.NoError(t, err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := f.ctrl.Approve(f.ctx, f.job.ID, tt.rev, "")
			var notPending *ErrNotPending
			require.True(t, errors.As(err, &notPending), "got %v", err)
			assert.Equal(t, tt.rev, notPending.RevisionID)
		})
	}
}

// interleavedStore runs beforePromote ahead of every Promote, standing in
// for a reviewer acting between the review check and the write
type interleavedStore struct {
	*store.MemoryStore
	beforePromote func()
}

func (s *interleavedStore) Revision() store.Revision {
	return interleavedRevision{Revision: s.MemoryStore.Revision(), before: s.beforePromote}
}

type interleavedRevision struct {
	store.Revision
	before func()
}

func (r interleavedRevision) Promote(ctx context.Context, jobID, revisionID uuid.UUID, feedback string) error {
	if r.before != nil {
		r.before()
	}
	return r.Revision.Promote(ctx, jobID, revisionID, feedback)
}

func TestApprove_RejectedConcurrently(t *testing.T) {
	f := newFixture(t)
	rev := f.record(t)

	is := &interleavedStore{MemoryStore: f.store}
	ctrl := NewController(is, Options{Templates: f.reg, Assets: f.assets})
	is.beforePromote = func() {
		require.NoError(t, f.store.Revision().SetReview(f.ctx, rev.ID, types.ApprovalRejected, "", "redo"))
	}

	_, err := ctrl.Approve(f.ctx, f.job.ID, rev.ID, "ship it")
	var notPending *ErrNotPending
	require.True(t, errors.As(err, &notPending), "got %v", err)
	assert.Equal(t, types.ApprovalRejected, notPending.Status)

	got, err := f.store.Revision().Get(f.ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, got.ApprovalStatus)
	assert.Equal(t, "redo", got.ReviewNotes)

	job, err := f.store.Job().Get(f.ctx, f.job.ID)
	require.NoError(t, err)
	assert.Nil(t, job.ApprovedRevisionID)
}

func TestApprove_JobStillProcessing(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	f.setStatus(t, types.JobProcessing)

	_, err := f.ctrl.Approve(f.ctx, f.job.ID, r1.ID, "")
	var notPending *ErrNotPending
	assert.True(t, errors.As(err, &notPending))
}

func TestApprove_WrongJob(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	_, err := f.ctrl.Approve(f.ctx, uuid.New(), r1.ID, "")
	assert.True(t, errors.Is(err, store.ErrRecordNotFound))
}

func TestRequestRevision(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)

	rejected, err := f.ctrl.RequestRevision(f.ctx, f.job.ID, r1.ID, "shorter please")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, rejected.ApprovalStatus)
	assert.Equal(t, "shorter please", rejected.ReviewNotes)
	assert.Equal(t, []string{"shorter please"}, f.requeuer.calls)

	job, err := f.store.Job().Get(f.ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, job.Status)

	_, err = f.ctrl.RequestRevision(f.ctx, f.job.ID, r1.ID, "again")
	var notPending *ErrNotPending
	assert.True(t, errors.As(err, &notPending))
}

func TestRequestRevision_RequeueFailureRestores(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	f.requeuer.err = errors.New("queue closed")

	_, err := f.ctrl.RequestRevision(f.ctx, f.job.ID, r1.ID, "notes")
	require.Error(t, err)

	rev, err := f.store.Revision().Get(f.ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, rev.ApprovalStatus)
}

func TestRequestRevision_RequiresNotes(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	_, err := f.ctrl.RequestRevision(f.ctx, f.job.ID, r1.ID, "  ")
	assert.Error(t, err)
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	_, err := f.ctrl.Approve(f.ctx, f.job.ID, r1.ID, "")
	require.NoError(t, err)
	r2 := f.record(t)
	_, err = f.ctrl.Approve(f.ctx, f.job.ID, r2.ID, "")
	require.NoError(t, err)

	_, err = f.ctrl.Rollback(f.ctx, f.job.ID, r2.ID)
	var notPending *ErrNotPending
	require.True(t, errors.As(err, &notPending), "approved revision cannot be restored")

	restored, err := f.ctrl.Rollback(f.ctx, f.job.ID, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, restored.ApprovalStatus)

	history, err := f.ctrl.History(f.ctx, f.job.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "nothing is deleted")
	assert.Equal(t, types.ApprovalSuperseded, history[1].ApprovalStatus)

	job, err := f.store.Job().Get(f.ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, *job.ApprovedRevisionID)
}

func TestHistory_UnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.History(f.ctx, uuid.New())
	assert.True(t, errors.Is(err, store.ErrRecordNotFound))
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)

	_, err := f.ctrl.Export(f.ctx, f.job.ID)
	assert.True(t, errors.Is(err, ErrNoApprovedRevision))

	_, err = f.ctrl.Approve(f.ctx, f.job.ID, r1.ID, "")
	require.NoError(t, err)

	bundle, err := f.ctrl.Export(f.ctx, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, bundle.Revision.ID)
	assert.Contains(t, bundle.HTML, "<h1>Quarterly performance</h1>")
	assert.Len(t, bundle.Assets, 1)
	assert.Empty(t, bundle.Warnings)
	assert.Equal(t, r1.ID, f.assets.req.RevisionID)
	assert.Equal(t, templates.DefaultID(types.FormatSummary), f.assets.req.TemplateID)
}

func TestExport_Warnings(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	_, err := f.ctrl.Approve(f.ctx, f.job.ID, r1.ID, "")
	require.NoError(t, err)

	tmpl, err := f.reg.Get(f.ctx, templates.DefaultID(types.FormatSummary))
	require.NoError(t, err)
	tmpl.Rules.MaxWords = 5
	_, err = f.reg.Put(f.ctx, tmpl)
	require.NoError(t, err)
	f.assets.err = errors.New("renderer down")

	bundle, err := f.ctrl.Export(f.ctx, f.job.ID)
	require.NoError(t, err, "warnings never fail the export")
	require.Len(t, bundle.Warnings, 2)
	assert.Equal(t, types.WarningTemplateDrift, bundle.Warnings[0].Code)
	assert.NotEmpty(t, bundle.Warnings[0].Violations)
	assert.Equal(t, types.WarningAssetsUnavailable, bundle.Warnings[1].Code)
	assert.Empty(t, bundle.Assets)
	assert.NotEmpty(t, bundle.HTML)
}

func TestExport_TemplateChangedButStillCompliant(t *testing.T) {
	f := newFixture(t)
	r1 := f.record(t)
	_, err := f.ctrl.Approve(f.ctx, f.job.ID, r1.ID, "")
	require.NoError(t, err)

	tmpl, err := f.reg.Get(f.ctx, templates.DefaultID(types.FormatSummary))
	require.NoError(t, err)
	tmpl.Style = map[string]string{"tone": "muted"}
	_, err = f.reg.Put(f.ctx, tmpl)
	require.NoError(t, err)

	bundle, err := f.ctrl.Export(f.ctx, f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, bundle.Warnings)
	assert.Equal(t, "muted", f.assets.req.Style["tone"])
}
