package types

import (
	"github.com/go-playground/validator/v10"
)

// SubmitJobRequest asks for a new transformation job
type SubmitJobRequest struct {
	ContentID  string `json:"content_id" validate:"required"`
	PersonaID  string `json:"persona_id" validate:"required"`
	Format     string `json:"format" validate:"required"`
	TemplateID string `json:"template_id,omitempty"`
}

// PersonaRequest creates or updates a persona. Version is required on update
// and must match the stored version.
type PersonaRequest struct {
	ID               string         `json:"id,omitempty"`
	Name             string         `json:"name" validate:"required,min=1"`
	Expertise        ExpertiseLevel `json:"expertise" validate:"required,oneof=beginner intermediate expert mixed"`
	Style            string         `json:"style" validate:"required,oneof=formal casual technical conversational academic"`
	Interests        []string       `json:"interests,omitempty" validate:"dive,required"`
	PreferredFormats []string       `json:"preferred_formats,omitempty" validate:"dive,oneof=slides thread summary blog infographic"`
	Version          int            `json:"version,omitempty" validate:"min=0"`
}

// ApproveRequest carries optional reviewer feedback on approval
type ApproveRequest struct {
	Feedback string `json:"feedback,omitempty"`
}

// RevisionRequest carries the notes a reviewer wants addressed
type RevisionRequest struct {
	Notes string `json:"notes" validate:"required,min=1"`
}

// Validate validates the SubmitJobRequest using the validator.
func (r *SubmitJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the PersonaRequest using the validator.
func (r *PersonaRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the RevisionRequest using the validator.
func (r *RevisionRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ToPersona builds a persona from the request. Version and timestamps are left
// to the store.
func (r *PersonaRequest) ToPersona() *Persona {
	formats := make([]OutputFormat, 0, len(r.PreferredFormats))
	for _, f := range r.PreferredFormats {
		formats = append(formats, OutputFormat(f))
	}
	return &Persona{
		ID:               r.ID,
		Name:             r.Name,
		Expertise:        r.Expertise,
		Style:            CommunicationStyle(r.Style),
		Interests:        append([]string(nil), r.Interests...),
		PreferredFormats: formats,
		Version:          r.Version,
	}
}
