// Package orchestrator turns transformation requests into tracked jobs and
// drives them through adaptation and scoring on a fixed worker pool.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/persona-transformer/internal/adapter"
	"github.com/jonathan/persona-transformer/internal/compliance"
	"github.com/jonathan/persona-transformer/internal/metrics"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/templates"
	"github.com/jonathan/persona-transformer/internal/types"
)

const violationsMarker = "Fix these structural problems from the previous attempt:"

// Config sizes the worker pool and the retry policy
type Config struct {
	Workers    int
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	LeaseTTL   time.Duration
	// DeferDelay is how long a job whose lease is held waits before it is
	// offered to a worker again.
	DeferDelay time.Duration
}

// DefaultConfig returns the orchestrator defaults
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   time.Minute,
		LeaseTTL:   5 * time.Minute,
		DeferDelay: 500 * time.Millisecond,
	}
}

// Adapter produces one candidate per call
type Adapter interface {
	Adapt(ctx context.Context, req adapter.AdaptRequest) (*adapter.Candidate, error)
}

// Recorder scores a candidate and appends it to the job's revision chain
type Recorder interface {
	RecordRevision(ctx context.Context, job *types.Job, cand *adapter.Candidate) (*types.Revision, error)
}

// Orchestrator owns the job lifecycle
type Orchestrator struct {
	store     store.Store
	templates templates.Store
	adapter   Adapter
	recorder  Recorder
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	queue  *queue
	leases *leases
	events *broker
	locks  sync.Map

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	timers  map[uuid.UUID]*time.Timer
}

// New creates an Orchestrator. Start must be called before jobs are processed.
func New(s store.Store, tmpl templates.Store, a Adapter, r Recorder, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = def.DeferDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     s,
		templates: tmpl,
		adapter:   a,
		recorder:  r,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		queue:     newQueue(),
		leases:    newLeases(cfg.LeaseTTL, time.Now),
		events:    newBroker(),
		timers:    make(map[uuid.UUID]*time.Timer),
	}
}

// Submit validates the references and queues a new job
func (o *Orchestrator) Submit(ctx context.Context, req types.SubmitJobRequest) (uuid.UUID, error) {
	format, err := types.ParseOutputFormat(req.Format)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", compliance.ErrUnknownFormat, req.Format)
	}

	if _, err := o.store.Content().Get(ctx, req.ContentID); err != nil {
		return uuid.Nil, reference("content", req.ContentID, err)
	}
	persona, err := o.store.Persona().Get(ctx, req.PersonaID)
	if err != nil {
		return uuid.Nil, reference("persona", req.PersonaID, err)
	}
	if persona.Archived {
		return uuid.Nil, &ErrInvalidReference{Kind: "persona", ID: req.PersonaID, Reason: "persona is archived"}
	}
	if req.TemplateID != "" {
		tmpl, err := o.templates.Get(ctx, req.TemplateID)
		if err != nil {
			return uuid.Nil, reference("template", req.TemplateID, err)
		}
		if tmpl.Format != format {
			return uuid.Nil, &ErrInvalidReference{Kind: "template", ID: req.TemplateID, Reason: fmt.Sprintf("template is for %s, not %s", tmpl.Format, format)}
		}
	}

	now := o.now().UTC()
	job := &types.Job{
		ID:         uuid.New(),
		ContentID:  req.ContentID,
		PersonaID:  req.PersonaID,
		Format:     format,
		TemplateID: req.TemplateID,
		Status:     types.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.Job().Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("creating job: %w", err)
	}

	o.metrics.JobSubmitted(string(format))
	o.metrics.JobTransition(string(types.JobQueued))
	o.events.publish(eventFor(job, now))
	o.enqueue(job.ID)
	o.logger.Info("job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("content_id", job.ContentID),
		zap.String("persona_id", job.PersonaID),
		zap.String("format", string(format)))
	return job.ID, nil
}

// reference maps a lookup failure onto ErrInvalidReference
func reference(kind, id string, err error) error {
	if errors.Is(err, store.ErrRecordNotFound) || errors.Is(err, templates.ErrTemplateNotFound) {
		return &ErrInvalidReference{Kind: kind, ID: id, Reason: "not found", Cause: err}
	}
	return fmt.Errorf("loading %s %q: %w", kind, id, err)
}

// GetStatus returns the last committed state of a job without waiting on
// workers
func (o *Orchestrator) GetStatus(ctx context.Context, id uuid.UUID) (types.StatusView, error) {
	job, err := o.store.Job().Get(ctx, id)
	if err != nil {
		return types.StatusView{}, err
	}
	return job.View(), nil
}

// Cancel moves a non-terminal job to cancelled. Cancelling a terminal job is
// a no-op. An in-flight attempt finishes but its result is discarded.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) error {
	mu := o.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := o.store.Job().Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		o.locks.Delete(id)
	}
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() || !job.Status.CanTransitionTo(types.JobCancelled) {
		o.forget(job)
		return nil
	}

	o.stopTimer(id)
	now := o.now().UTC()
	job.Status = types.JobCancelled
	job.CompletedAt = &now
	if err := o.save(ctx, job); err != nil {
		return err
	}
	o.forget(job)
	o.logger.Info("job cancelled", zap.String("job_id", id.String()))
	return nil
}

// Requeue starts a new revision cycle on a completed job with reviewer
// notes. The retry budget starts over.
func (o *Orchestrator) Requeue(ctx context.Context, id uuid.UUID, notes string) error {
	mu := o.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := o.store.Job().Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		o.locks.Delete(id)
	}
	if err != nil {
		return err
	}
	if job.Status != types.JobCompleted {
		return &ErrInvalidTransition{JobID: id, From: job.Status, To: types.JobQueued}
	}

	job.Status = types.JobQueued
	job.Progress = 0
	job.RetryCount = 0
	job.LastError = nil
	job.CompletedAt = nil
	job.Notes = notes
	if err := o.save(ctx, job); err != nil {
		return err
	}
	o.enqueue(id)
	o.logger.Info("job requeued for revision", zap.String("job_id", id.String()))
	return nil
}

// Refine requeues an approved job with notes without rejecting anything
func (o *Orchestrator) Refine(ctx context.Context, id uuid.UUID, notes string) error {
	if strings.TrimSpace(notes) == "" {
		return errors.New("refine notes are required")
	}
	job, err := o.store.Job().Get(ctx, id)
	if err != nil {
		return err
	}
	if job.ApprovedRevisionID == nil {
		return ErrNotApproved
	}
	return o.Requeue(ctx, id, notes)
}

// Subscribe streams progress events of a job until the returned func is called
func (o *Orchestrator) Subscribe(id uuid.UUID) (<-chan ProgressEvent, func()) {
	return o.events.subscribe(id)
}

// Start recovers unfinished jobs from the store and launches the workers
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	o.running = true
	o.cancel = cancel
	o.group = g
	o.mu.Unlock()

	if err := o.recoverJobs(ctx); err != nil {
		_ = o.Stop()
		return err
	}

	for i := 0; i < o.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			o.work(gctx, worker)
			return nil
		})
	}
	o.logger.Info("orchestrator started", zap.Int("workers", o.cfg.Workers))
	return nil
}

// Stop halts the workers and pending retry timers. Jobs in flight return
// to the queued state and are picked up by the next Start.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	o.cancel()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	g := o.group
	o.mu.Unlock()

	err := g.Wait()
	o.logger.Info("orchestrator stopped")
	return err
}

func (o *Orchestrator) recoverJobs(ctx context.Context) error {
	jobs, err := o.store.Job().ListByStatus(ctx, types.JobQueued, types.JobProcessing)
	if err != nil {
		return fmt.Errorf("listing unfinished jobs: %w", err)
	}
	for i := range jobs {
		job := &jobs[i]
		if job.Status == types.JobProcessing {
			if o.leases.held(job.ID) {
				continue
			}
			if err := o.release(ctx, job.ID); err != nil {
				return err
			}
			o.logger.Info("recovered interrupted job", zap.String("job_id", job.ID.String()))
		}
		o.enqueue(job.ID)
	}
	return nil
}

func (o *Orchestrator) work(ctx context.Context, worker int) {
	for {
		id, err := o.queue.pop(ctx)
		if err != nil {
			return
		}
		o.metrics.SetQueueDepth(o.queue.len())
		o.process(ctx, id, worker)
	}
}

func (o *Orchestrator) process(ctx context.Context, id uuid.UUID, worker int) {
	if !o.leases.acquire(id) {
		o.schedule(id, o.cfg.DeferDelay)
		return
	}
	defer o.leases.release(id)

	log := o.logger.With(zap.String("job_id", id.String()), zap.Int("worker", worker))

	job, err := o.begin(ctx, id)
	if err != nil {
		log.Error("failed to start attempt", zap.Error(err))
		return
	}
	if job == nil {
		return
	}
	log = log.With(zap.Int("attempt", job.Attempts))
	log.Info("attempt started")

	req, err := o.prepare(ctx, job)
	if err != nil {
		o.commit(ctx, id, nil, err, log)
		return
	}

	start := time.Now()
	cand, err := o.adapter.Adapt(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.metrics.ObserveAdaptation(outcome, time.Since(start))
	o.commit(ctx, id, cand, err, log)
}

// begin moves a queued job to processing. A nil job means there is nothing
// to do, for example because it was cancelled while waiting.
func (o *Orchestrator) begin(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	mu := o.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := o.store.Job().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobQueued {
		o.forget(job)
		return nil, nil
	}

	now := o.now().UTC()
	job.Status = types.JobProcessing
	job.Progress = types.ProgressDequeued
	job.Attempts++
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := o.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (o *Orchestrator) prepare(ctx context.Context, job *types.Job) (adapter.AdaptRequest, error) {
	content, err := o.store.Content().Get(ctx, job.ContentID)
	if err != nil {
		return adapter.AdaptRequest{}, reference("content", job.ContentID, err)
	}
	// Archiving only blocks new submissions, so running jobs keep the persona.
	persona, err := o.store.Persona().Get(ctx, job.PersonaID)
	if err != nil {
		return adapter.AdaptRequest{}, reference("persona", job.PersonaID, err)
	}

	var tmpl *types.Template
	if job.TemplateID != "" {
		tmpl, err = o.templates.Get(ctx, job.TemplateID)
		if err != nil {
			return adapter.AdaptRequest{}, reference("template", job.TemplateID, err)
		}
	} else {
		tmpl, err = o.templates.Lookup(ctx, job.Format, job.PersonaID)
		if err != nil && !errors.Is(err, templates.ErrTemplateNotFound) {
			return adapter.AdaptRequest{}, fmt.Errorf("looking up template: %w", err)
		}
	}

	return adapter.AdaptRequest{
		Content:  content,
		Persona:  persona,
		Format:   job.Format,
		Template: tmpl,
		Notes:    job.Notes,
	}, nil
}

// commit applies the outcome of an attempt under the job lock shared with
// Cancel, so a cancelled job never receives a revision
func (o *Orchestrator) commit(ctx context.Context, id uuid.UUID, cand *adapter.Candidate, adaptErr error, log *zap.Logger) {
	if ctx.Err() != nil {
		if err := o.release(context.Background(), id); err != nil {
			log.Error("failed to release job on shutdown", zap.Error(err))
		}
		return
	}

	mu := o.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := o.store.Job().Get(ctx, id)
	if err != nil {
		log.Error("failed to reload job", zap.Error(err))
		return
	}
	if job.Status != types.JobProcessing {
		o.metrics.ResultDiscarded()
		o.forget(job)
		log.Info("discarding result", zap.String("status", string(job.Status)))
		return
	}

	if adaptErr != nil {
		o.handleFailure(ctx, job, adaptErr, log)
		return
	}

	job.Progress = types.ProgressAdapted
	if err := o.save(ctx, job); err != nil {
		log.Error("failed to save progress", zap.Error(err))
		return
	}

	rev, err := o.recorder.RecordRevision(ctx, job, cand)
	if err != nil {
		o.handleFailure(ctx, job, err, log)
		return
	}

	job.Progress = types.ProgressScored
	if err := o.save(ctx, job); err != nil {
		log.Error("failed to save progress", zap.Error(err))
		return
	}

	switch {
	case cand.Compliance.Passed:
		o.complete(ctx, job, rev.ID, log)
	case o.canFallBack(ctx, job.CurrentRevisionID):
		log.Warn("candidate failed compliance; keeping previous compliant revision",
			zap.Int("sequence", rev.Sequence))
		o.complete(ctx, job, *job.CurrentRevisionID, log)
	default:
		err := fmt.Errorf("%w: revision %d has %d violations", ErrNoCompliantRevision, rev.Sequence, len(cand.Compliance.Violations))
		o.retryOrFail(ctx, job, err, violationNotes(job.Notes, cand.Compliance.Violations), "non_compliant", log)
	}
}

// canFallBack reports whether a job can fall back to revision id. A rejected
// revision is never restored as the current one.
func (o *Orchestrator) canFallBack(ctx context.Context, id *uuid.UUID) bool {
	if id == nil {
		return false
	}
	rev, err := o.store.Revision().Get(ctx, *id)
	if err != nil {
		return false
	}
	return rev.ApprovalStatus == types.ApprovalPending || rev.ApprovalStatus == types.ApprovalApproved
}

func (o *Orchestrator) complete(ctx context.Context, job *types.Job, revisionID uuid.UUID, log *zap.Logger) {
	now := o.now().UTC()
	job.Status = types.JobCompleted
	job.Progress = types.ProgressDone
	job.CurrentRevisionID = &revisionID
	job.CompletedAt = &now
	job.LastError = nil
	job.Notes = ""
	if err := o.save(ctx, job); err != nil {
		log.Error("failed to complete job", zap.Error(err))
		return
	}
	log.Info("job completed", zap.String("revision_id", revisionID.String()))
}

func (o *Orchestrator) handleFailure(ctx context.Context, job *types.Job, err error, log *zap.Logger) {
	if !transient(err) {
		o.fail(ctx, job, err.Error(), false, log)
		return
	}
	o.retryOrFail(ctx, job, err, job.Notes, "transient", log)
}

func (o *Orchestrator) retryOrFail(ctx context.Context, job *types.Job, cause error, notes, reason string, log *zap.Logger) {
	if job.RetryCount >= o.cfg.MaxRetries {
		o.fail(ctx, job, cause.Error(), true, log)
		return
	}

	job.RetryCount++
	job.Status = types.JobQueued
	job.Progress = 0
	job.Notes = notes
	job.LastError = &types.JobError{Message: cause.Error(), Retryable: true}
	if err := o.save(ctx, job); err != nil {
		log.Error("failed to schedule retry", zap.Error(err))
		return
	}

	delay := o.backoff(job.RetryCount)
	o.metrics.RetryScheduled(reason)
	o.schedule(job.ID, delay)
	log.Warn("attempt failed; retry scheduled",
		zap.Int("retry", job.RetryCount),
		zap.Duration("delay", delay),
		zap.String("reason", reason),
		zap.Error(cause))
}

func (o *Orchestrator) fail(ctx context.Context, job *types.Job, msg string, retryable bool, log *zap.Logger) {
	now := o.now().UTC()
	job.Status = types.JobFailed
	job.CompletedAt = &now
	job.LastError = &types.JobError{Message: msg, Retryable: retryable}
	if err := o.save(ctx, job); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
		return
	}
	o.forget(job)
	log.Warn("job failed", zap.String("error", msg), zap.Bool("retryable", retryable))
}

// release returns an interrupted processing job to the queue without
// charging its retry budget
func (o *Orchestrator) release(ctx context.Context, id uuid.UUID) error {
	mu := o.jobLock(id)
	mu.Lock()
	defer mu.Unlock()

	job, err := o.store.Job().Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != types.JobProcessing {
		return nil
	}
	job.Status = types.JobQueued
	job.Progress = 0
	return o.save(ctx, job)
}

// save persists the job and publishes the change
func (o *Orchestrator) save(ctx context.Context, job *types.Job) error {
	job.UpdatedAt = o.now().UTC()
	if err := o.store.Job().Update(ctx, job); err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	o.metrics.JobTransition(string(job.Status))
	o.events.publish(eventFor(job, job.UpdatedAt))
	return nil
}

func (o *Orchestrator) enqueue(id uuid.UUID) {
	o.queue.push(id)
	o.metrics.SetQueueDepth(o.queue.len())
}

// schedule re-enqueues id after delay. Nothing is scheduled while stopped;
// the job stays queued in the store and is recovered by Start.
func (o *Orchestrator) schedule(id uuid.UUID, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	if t, ok := o.timers[id]; ok {
		t.Stop()
	}
	o.timers[id] = time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.timers, id)
		running := o.running
		o.mu.Unlock()
		if running {
			o.enqueue(id)
		}
	})
}

func (o *Orchestrator) stopTimer(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[id]; ok {
		t.Stop()
		delete(o.timers, id)
	}
}

func (o *Orchestrator) jobLock(id uuid.UUID) *sync.Mutex {
	v, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// forget drops the lock of a failed or cancelled job. Nothing moves such a
// job again, so a caller that still holds the old mutex only reads it.
// Completed jobs keep theirs because review can requeue them.
func (o *Orchestrator) forget(job *types.Job) {
	if job.Status == types.JobFailed || job.Status == types.JobCancelled {
		o.locks.Delete(job.ID)
	}
}

// backoff is base*2^(retry-1) capped at MaxDelay, with normally
// distributed jitter
func (o *Orchestrator) backoff(retry int) time.Duration {
	d := o.cfg.BaseDelay
	for i := 1; i < retry && d < o.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > o.cfg.MaxDelay {
		d = o.cfg.MaxDelay
	}

	j := (&jitterbug.Norm{Stdev: d / 5}).Jitter(d)
	if j < d/2 {
		j = d / 2
	}
	if j > o.cfg.MaxDelay {
		j = o.cfg.MaxDelay
	}
	return j
}

// transient reports whether a failed attempt is worth retrying
func transient(err error) bool {
	var refErr *ErrInvalidReference
	if errors.As(err, &refErr) {
		return false
	}
	var adaptErr *adapter.AdaptationError
	if errors.As(err, &adaptErr) {
		return adaptErr.Retryable
	}
	// provider outages and storage errors
	return true
}

func violationNotes(notes string, violations []types.Violation) string {
	base, _, _ := strings.Cut(notes, violationsMarker)
	base = strings.TrimSpace(base)

	var sb strings.Builder
	if base != "" {
		sb.WriteString(base)
		sb.WriteString("\n\n")
	}
	sb.WriteString(violationsMarker)
	for _, v := range violations {
		sb.WriteString("\n- ")
		if v.Location != "" {
			sb.WriteString(v.Location + ": ")
		}
		sb.WriteString(v.Details)
	}
	return sb.String()
}
