package types

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the review state of a revision
type ApprovalStatus string

// Approval states
const (
	ApprovalPending    ApprovalStatus = "pending"
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalRejected   ApprovalStatus = "rejected"
	ApprovalSuperseded ApprovalStatus = "superseded"
)

// Revision is one generated-and-scored candidate within a job. Everything but
// the review fields (ApprovalStatus, Feedback, ReviewNotes, ReviewedAt) is
// fixed at creation.
type Revision struct {
	ID         uuid.UUID        `json:"id"`
	JobID      uuid.UUID        `json:"job_id"`
	Sequence   int              `json:"sequence"`
	Text       string           `json:"text"`
	Persona    PersonaRef       `json:"persona"`
	Template   *TemplateRef     `json:"template,omitempty"`
	Compliance ComplianceResult `json:"compliance"`
	Quality    QualityReport    `json:"quality"`
	Directive  string           `json:"directive,omitempty"`
	// Notes are the reviewer notes this revision was generated to address.
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Feedback       string         `json:"feedback,omitempty"`
	ReviewNotes    string         `json:"review_notes,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
}

// Clone returns a deep copy of the revision
func (r *Revision) Clone() *Revision {
	c := *r
	if r.Template != nil {
		t := *r.Template
		c.Template = &t
	}
	if r.Compliance.Template != nil {
		t := *r.Compliance.Template
		c.Compliance.Template = &t
	}
	c.Compliance.Violations = append([]Violation(nil), r.Compliance.Violations...)
	c.Quality.Metrics = append([]Metric(nil), r.Quality.Metrics...)
	c.Quality.Issues = append([]Issue(nil), r.Quality.Issues...)
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}

// Asset is an opaque visual asset returned by the asset collaborator
type Asset struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Export warning codes
const (
	WarningTemplateDrift     = "template_drift"
	WarningAssetsUnavailable = "assets_unavailable"
)

// ExportWarning is a non-fatal note attached to an export
type ExportWarning struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

// ExportBundle is the approved output handed to downstream consumers
type ExportBundle struct {
	JobID      uuid.UUID       `json:"job_id"`
	Format     OutputFormat    `json:"format"`
	Revision   Revision        `json:"revision"`
	Quality    QualityReport   `json:"quality"`
	HTML       string          `json:"html,omitempty"`
	Assets     []Asset         `json:"assets,omitempty"`
	Warnings   []ExportWarning `json:"warnings,omitempty"`
	ExportedAt time.Time       `json:"exported_at"`
}
