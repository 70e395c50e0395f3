// Package quality scores candidates, keeps the revision chain of each job
// and gates export on human approval.
package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/adapter"
	"github.com/jonathan/persona-transformer/internal/assets"
	"github.com/jonathan/persona-transformer/internal/compliance"
	"github.com/jonathan/persona-transformer/internal/metrics"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/templates"
	"github.com/jonathan/persona-transformer/internal/types"
)

const appendAttempts = 3

// Requeuer puts a job back in the queue with reviewer notes
type Requeuer interface {
	Requeue(ctx context.Context, jobID uuid.UUID, notes string) error
}

// Options configures a Controller
type Options struct {
	Templates    templates.Store
	Assets       assets.Generator
	AssetTimeout time.Duration
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Controller owns revision history and approval
type Controller struct {
	store        store.Store
	templates    templates.Store
	assets       assets.Generator
	assetTimeout time.Duration
	requeuer     Requeuer
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewController creates a Controller
func NewController(s store.Store, opts Options) *Controller {
	c := &Controller{
		store:        s,
		templates:    opts.Templates,
		assets:       opts.Assets,
		assetTimeout: opts.AssetTimeout,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          time.Now,
	}
	if c.assets == nil {
		c.assets = assets.None{}
	}
	if c.assetTimeout <= 0 {
		c.assetTimeout = assets.DefaultTimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// SetRequeuer wires the orchestrator in after construction
func (c *Controller) SetRequeuer(r Requeuer) {
	c.requeuer = r
}

// RecordRevision scores the candidate and appends it as the next revision
func (c *Controller) RecordRevision(ctx context.Context, job *types.Job, cand *adapter.Candidate) (*types.Revision, error) {
	report := Score(cand)

	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		seq, err := c.nextSequence(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		rev := &types.Revision{
			ID:             uuid.New(),
			JobID:          job.ID,
			Sequence:       seq,
			Text:           cand.Text,
			Persona:        cand.Persona,
			Template:       cand.Template,
			Compliance:     cand.Compliance,
			Quality:        report,
			Directive:      cand.Directive.Summary(),
			Notes:          cand.Notes,
			CreatedAt:      c.now().UTC(),
			ApprovalStatus: types.ApprovalPending,
		}
		err = c.store.Revision().Append(ctx, rev)
		if err == nil {
			c.metrics.RevisionEvent(metrics.RevisionRecorded)
			c.metrics.ObserveQuality(string(job.Format), report.Overall)
			c.logger.Info("revision recorded",
				zap.String("job_id", job.ID.String()),
				zap.Int("sequence", seq),
				zap.Float64("overall", report.Overall),
				zap.Bool("compliant", cand.Compliance.Passed),
				zap.Int("issues", len(report.Issues)))
			return rev, nil
		}
		if !errors.Is(err, store.ErrStaleWrite) {
			return nil, fmt.Errorf("appending revision: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("appending revision: %w", lastErr)
}

func (c *Controller) nextSequence(ctx context.Context, jobID uuid.UUID) (int, error) {
	latest, err := c.store.Revision().Latest(ctx, jobID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading latest revision: %w", err)
	}
	return latest.Sequence + 1, nil
}

// reviewable loads a revision of jobID and checks it is the pending revision
// a completed job currently points at
func (c *Controller) reviewable(ctx context.Context, jobID, revisionID uuid.UUID) (*types.Job, *types.Revision, error) {
	job, rev, err := c.load(ctx, jobID, revisionID)
	if err != nil {
		return nil, nil, err
	}
	if rev.ApprovalStatus != types.ApprovalPending {
		return nil, nil, &ErrNotPending{RevisionID: rev.ID, Status: rev.ApprovalStatus, Reason: "only pending revisions can be reviewed"}
	}
	if job.Status != types.JobCompleted {
		return nil, nil, &ErrNotPending{RevisionID: rev.ID, Status: rev.ApprovalStatus, Reason: fmt.Sprintf("job is %s", job.Status)}
	}
	if job.CurrentRevisionID == nil || *job.CurrentRevisionID != rev.ID {
		return nil, nil, &ErrNotPending{RevisionID: rev.ID, Status: rev.ApprovalStatus, Reason: "not the job's current revision"}
	}
	return job, rev, nil
}

func (c *Controller) load(ctx context.Context, jobID, revisionID uuid.UUID) (*types.Job, *types.Revision, error) {
	job, err := c.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	rev, err := c.store.Revision().Get(ctx, revisionID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading revision %s: %w", revisionID, err)
	}
	if rev.JobID != jobID {
		return nil, nil, fmt.Errorf("revision %s of job %s: %w", revisionID, jobID, store.ErrRecordNotFound)
	}
	return job, rev, nil
}

// Approve marks the job's current pending revision approved and supersedes
// the previously approved one
func (c *Controller) Approve(ctx context.Context, jobID, revisionID uuid.UUID, feedback string) (*types.Revision, error) {
	_, rev, err := c.reviewable(ctx, jobID, revisionID)
	if err != nil {
		return nil, err
	}
	if err := c.store.Revision().Promote(ctx, jobID, rev.ID, feedback); err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			return nil, c.reviewedConcurrently(ctx, rev)
		}
		return nil, fmt.Errorf("approving revision: %w", err)
	}
	c.metrics.RevisionEvent(metrics.RevisionApproved)
	c.logger.Info("revision approved", zap.String("job_id", jobID.String()), zap.Int("sequence", rev.Sequence))
	return c.store.Revision().Get(ctx, rev.ID)
}

// reviewedConcurrently reports a revision whose status changed between the
// review check and the write
func (c *Controller) reviewedConcurrently(ctx context.Context, rev *types.Revision) error {
	status := rev.ApprovalStatus
	if current, err := c.store.Revision().Get(ctx, rev.ID); err == nil {
		status = current.ApprovalStatus
	}
	return &ErrNotPending{RevisionID: rev.ID, Status: status, Reason: "reviewed concurrently"}
}

// RequestRevision rejects the current pending revision and re-enqueues the
// job with the reviewer's notes
func (c *Controller) RequestRevision(ctx context.Context, jobID, revisionID uuid.UUID, notes string) (*types.Revision, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, errors.New("revision notes are required")
	}
	if c.requeuer == nil {
		return nil, errors.New("no requeuer configured")
	}
	_, rev, err := c.reviewable(ctx, jobID, revisionID)
	if err != nil {
		return nil, err
	}

	if err := c.store.Revision().SetReview(ctx, rev.ID, types.ApprovalRejected, "", notes); err != nil {
		return nil, fmt.Errorf("rejecting revision: %w", err)
	}
	if err := c.requeuer.Requeue(ctx, jobID, notes); err != nil {
		if restoreErr := c.store.Revision().SetReview(ctx, rev.ID, types.ApprovalPending, "", ""); restoreErr != nil {
			c.logger.Error("failed to restore revision after requeue failure",
				zap.String("job_id", jobID.String()), zap.Error(restoreErr))
		}
		return nil, fmt.Errorf("requeueing job: %w", err)
	}

	c.metrics.RevisionEvent(metrics.RevisionRejected)
	c.logger.Info("revision requested", zap.String("job_id", jobID.String()), zap.Int("sequence", rev.Sequence))
	return c.store.Revision().Get(ctx, rev.ID)
}

// Rollback re-approves an earlier superseded revision. The current approved
// revision becomes superseded; nothing is deleted.
func (c *Controller) Rollback(ctx context.Context, jobID, revisionID uuid.UUID) (*types.Revision, error) {
	_, rev, err := c.load(ctx, jobID, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.ApprovalStatus != types.ApprovalSuperseded {
		return nil, &ErrNotPending{RevisionID: rev.ID, Status: rev.ApprovalStatus, Reason: "only superseded revisions can be restored"}
	}
	if err := c.store.Revision().Promote(ctx, jobID, rev.ID, fmt.Sprintf("restored revision %d", rev.Sequence)); err != nil {
		return nil, fmt.Errorf("restoring revision: %w", err)
	}
	c.metrics.RevisionEvent(metrics.RevisionRolledBack)
	c.logger.Info("revision restored", zap.String("job_id", jobID.String()), zap.Int("sequence", rev.Sequence))
	return c.store.Revision().Get(ctx, rev.ID)
}

// History returns the job's full revision chain ordered by sequence
func (c *Controller) History(ctx context.Context, jobID uuid.UUID) ([]types.Revision, error) {
	if _, err := c.store.Job().Get(ctx, jobID); err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	return c.store.Revision().ListByJob(ctx, jobID)
}

// Export bundles the approved revision. Template drift and asset failures
// are reported as warnings, never as errors.
func (c *Controller) Export(ctx context.Context, jobID uuid.UUID) (*types.ExportBundle, error) {
	job, err := c.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	if job.ApprovedRevisionID == nil {
		return nil, ErrNoApprovedRevision
	}
	rev, err := c.store.Revision().Get(ctx, *job.ApprovedRevisionID)
	if err != nil {
		return nil, fmt.Errorf("loading approved revision: %w", err)
	}

	html, err := compliance.RenderHTML(rev.Text)
	if err != nil {
		return nil, err
	}

	bundle := &types.ExportBundle{
		JobID:      job.ID,
		Format:     job.Format,
		Revision:   *rev,
		Quality:    rev.Quality,
		HTML:       html,
		ExportedAt: c.now().UTC(),
	}

	tmpl := c.revalidate(ctx, job, rev, bundle)

	req := assets.Request{JobID: job.ID, RevisionID: rev.ID, Format: job.Format, Text: rev.Text}
	if tmpl != nil {
		req.TemplateID = tmpl.ID
		req.Style = tmpl.Style
	}
	assetCtx, cancel := context.WithTimeout(ctx, c.assetTimeout)
	defer cancel()
	generated, err := c.assets.Generate(assetCtx, req)
	if err != nil {
		c.logger.Warn("asset generation failed", zap.String("job_id", jobID.String()), zap.Error(err))
		bundle.Warnings = append(bundle.Warnings, types.ExportWarning{
			Code:    types.WarningAssetsUnavailable,
			Message: "visual assets could not be generated; exported text only",
		})
	} else {
		bundle.Assets = generated
	}
	return bundle, nil
}

// revalidate checks the approved text against the current version of its
// template and returns that template
func (c *Controller) revalidate(ctx context.Context, job *types.Job, rev *types.Revision, bundle *types.ExportBundle) *types.Template {
	if rev.Template == nil || c.templates == nil {
		return nil
	}
	current, err := c.templates.Get(ctx, rev.Template.ID)
	if err != nil {
		bundle.Warnings = append(bundle.Warnings, types.ExportWarning{
			Code:    types.WarningTemplateDrift,
			Message: fmt.Sprintf("template %s is no longer available", rev.Template.ID),
		})
		return nil
	}
	if current.Version == rev.Template.Version {
		return current
	}

	result, err := compliance.Check(rev.Text, job.Format, current)
	if err != nil || result.Passed {
		return current
	}
	bundle.Warnings = append(bundle.Warnings, types.ExportWarning{
		Code: types.WarningTemplateDrift,
		Message: fmt.Sprintf("template %s changed from version %d to %d and the approved text no longer complies",
			current.ID, rev.Template.Version, current.Version),
		Violations: result.Violations,
	})
	return current
}
