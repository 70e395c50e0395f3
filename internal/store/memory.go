package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/persona-transformer/internal/types"
)

// MemoryStore keeps everything in process memory. It is used by tests and
// by `transformer run` when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	contents  map[string]*types.SourceContent
	personas  map[string][]*types.Persona
	jobs      map[uuid.UUID]*types.Job
	revisions map[uuid.UUID]*types.Revision
	chains    map[uuid.UUID][]uuid.UUID
	now       func() time.Time
}

// Make sure we conform to Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contents:  make(map[string]*types.SourceContent),
		personas:  make(map[string][]*types.Persona),
		jobs:      make(map[uuid.UUID]*types.Job),
		revisions: make(map[uuid.UUID]*types.Revision),
		chains:    make(map[uuid.UUID][]uuid.UUID),
		now:       time.Now,
	}
}

func (s *MemoryStore) Content() Content { return memoryContent{s} }
func (s *MemoryStore) Persona() Persona { return memoryPersona{s} }
func (s *MemoryStore) Job() Job { return memoryJob{s} }
func (s *MemoryStore) Revision() Revision { return memoryRevision{s} }
func (s *MemoryStore) Close() error { return nil }

type memoryContent struct{ s *MemoryStore }

func (m memoryContent) Create(_ context.Context, content *types.SourceContent) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.contents[content.ID]; ok {
		return ErrDuplicateKey
	}
	c := *content
	c.Sections = append([]types.Section(nil), content.Sections...)
	if c.IngestedAt.IsZero() {
		c.IngestedAt = m.s.now()
	}
	m.s.contents[c.ID] = &c
	content.IngestedAt = c.IngestedAt
	return nil
}

func (m memoryContent) Get(_ context.Context, id string) (*types.SourceContent, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.contents[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *c
	out.Sections = append([]types.Section(nil), c.Sections...)
	return &out, nil
}

type memoryPersona struct{ s *MemoryStore }

func (m memoryPersona) Create(_ context.Context, p *types.Persona) (*types.Persona, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.personas[p.ID]; ok {
		return nil, ErrDuplicateKey
	}
	stored := p.Clone()
	stored.Version = 1
	stored.Archived = false
	stored.UpdatedAt = m.s.now()
	m.s.personas[p.ID] = []*types.Persona{stored}
	return stored.Clone(), nil
}

func (m memoryPersona) latest(id string) (*types.Persona, bool) {
	versions, ok := m.s.personas[id]
	if !ok || len(versions) == 0 {
		return nil, false
	}
	return versions[len(versions)-1], true
}

func (m memoryPersona) Get(_ context.Context, id string) (*types.Persona, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	p, ok := m.latest(id)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return p.Clone(), nil
}

func (m memoryPersona) GetVersion(_ context.Context, id string, version int) (*types.Persona, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	versions := m.s.personas[id]
	if version < 1 || version > len(versions) {
		return nil, ErrRecordNotFound
	}
	return versions[version-1].Clone(), nil
}

func (m memoryPersona) List(_ context.Context) ([]types.Persona, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]types.Persona, 0, len(m.s.personas))
	for id := range m.s.personas {
		p, _ := m.latest(id)
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memoryPersona) Update(_ context.Context, p *types.Persona) (*types.Persona, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	current, ok := m.latest(p.ID)
	if !ok {
		return nil, ErrRecordNotFound
	}
	if p.Version != current.Version {
		return nil, ErrStaleWrite
	}
	next := p.Clone()
	next.Version = current.Version + 1
	next.Archived = current.Archived
	next.UpdatedAt = m.s.now()
	m.s.personas[p.ID] = append(m.s.personas[p.ID], next)
	return next.Clone(), nil
}

func (m memoryPersona) Archive(_ context.Context, id string, expectedVersion int) (*types.Persona, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	current, ok := m.latest(id)
	if !ok {
		return nil, ErrRecordNotFound
	}
	if expectedVersion != 0 && expectedVersion != current.Version {
		return nil, ErrStaleWrite
	}
	if current.Archived {
		return current.Clone(), nil
	}
	next := current.Clone()
	next.Version = current.Version + 1
	next.Archived = true
	next.UpdatedAt = m.s.now()
	m.s.personas[id] = append(m.s.personas[id], next)
	return next.Clone(), nil
}

type memoryJob struct{ s *MemoryStore }

func (m memoryJob) Create(_ context.Context, job *types.Job) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	m.s.jobs[job.ID] = job.Clone()
	return nil
}

func (m memoryJob) Get(_ context.Context, id uuid.UUID) (*types.Job, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	j, ok := m.s.jobs[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return j.Clone(), nil
}

func (m memoryJob) Update(_ context.Context, job *types.Job) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	current, ok := m.s.jobs[job.ID]
	if !ok {
		return ErrRecordNotFound
	}
	next := job.Clone()
	next.ApprovedRevisionID = current.ApprovedRevisionID
	m.s.jobs[job.ID] = next
	return nil
}

func (m memoryJob) ListByStatus(_ context.Context, statuses ...types.JobStatus) ([]types.Job, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	want := make(map[types.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []types.Job
	for _, j := range m.s.jobs {
		if want[j.Status] {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

type memoryRevision struct{ s *MemoryStore }

func (m memoryRevision) Append(_ context.Context, rev *types.Revision) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.jobs[rev.JobID]; !ok {
		return ErrRecordNotFound
	}
	if _, ok := m.s.revisions[rev.ID]; ok {
		return ErrDuplicateKey
	}
	if rev.Sequence != len(m.s.chains[rev.JobID])+1 {
		return ErrStaleWrite
	}
	m.s.revisions[rev.ID] = rev.Clone()
	m.s.chains[rev.JobID] = append(m.s.chains[rev.JobID], rev.ID)
	return nil
}

func (m memoryRevision) Get(_ context.Context, id uuid.UUID) (*types.Revision, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	r, ok := m.s.revisions[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r.Clone(), nil
}

func (m memoryRevision) ListByJob(_ context.Context, jobID uuid.UUID) ([]types.Revision, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	chain := m.s.chains[jobID]
	out := make([]types.Revision, 0, len(chain))
	for _, id := range chain {
		out = append(out, *m.s.revisions[id].Clone())
	}
	return out, nil
}

func (m memoryRevision) Latest(_ context.Context, jobID uuid.UUID) (*types.Revision, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	chain := m.s.chains[jobID]
	if len(chain) == 0 {
		return nil, ErrRecordNotFound
	}
	return m.s.revisions[chain[len(chain)-1]].Clone(), nil
}

func (m memoryRevision) SetReview(_ context.Context, id uuid.UUID, status types.ApprovalStatus, feedback, notes string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.revisions[id]
	if !ok {
		return ErrRecordNotFound
	}
	now := m.s.now()
	r.ApprovalStatus = status
	r.Feedback = feedback
	r.ReviewNotes = notes
	r.ReviewedAt = &now
	return nil
}

func (m memoryRevision) Promote(_ context.Context, jobID, revisionID uuid.UUID, feedback string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	job, ok := m.s.jobs[jobID]
	if !ok {
		return ErrRecordNotFound
	}
	target, ok := m.s.revisions[revisionID]
	if !ok || target.JobID != jobID {
		return ErrRecordNotFound
	}
	if !promotable(target.ApprovalStatus) {
		return ErrStaleWrite
	}
	now := m.s.now()
	for _, id := range m.s.chains[jobID] {
		r := m.s.revisions[id]
		if id != revisionID && r.ApprovalStatus == types.ApprovalApproved {
			r.ApprovalStatus = types.ApprovalSuperseded
		}
	}
	target.ApprovalStatus = types.ApprovalApproved
	target.Feedback = feedback
	target.ReviewedAt = &now
	approved := revisionID
	job.ApprovedRevisionID = &approved
	job.UpdatedAt = now
	return nil
}

func promotable(status types.ApprovalStatus) bool {
	return status == types.ApprovalPending || status == types.ApprovalSuperseded
}
