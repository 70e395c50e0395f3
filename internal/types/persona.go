package types

import "time"

// ExpertiseLevel describes how much domain knowledge the audience has
type ExpertiseLevel string

// Expertise levels
const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseExpert       ExpertiseLevel = "expert"
	ExpertiseMixed        ExpertiseLevel = "mixed"
)

// Valid reports whether e is a known expertise level
func (e ExpertiseLevel) Valid() bool {
	switch e {
	case ExpertiseBeginner, ExpertiseIntermediate, ExpertiseExpert, ExpertiseMixed:
		return true
	}
	return false
}

// CommunicationStyle describes the tone the audience expects
type CommunicationStyle string

// Communication styles
const (
	StyleFormal         CommunicationStyle = "formal"
	StyleCasual         CommunicationStyle = "casual"
	StyleTechnical      CommunicationStyle = "technical"
	StyleConversational CommunicationStyle = "conversational"
	StyleAcademic       CommunicationStyle = "academic"
)

// Valid reports whether s is a known communication style
func (s CommunicationStyle) Valid() bool {
	switch s {
	case StyleFormal, StyleCasual, StyleTechnical, StyleConversational, StyleAcademic:
		return true
	}
	return false
}

// Persona is a mutable audience profile. Version is bumped on every write and
// used for optimistic concurrency.
type Persona struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Expertise        ExpertiseLevel     `json:"expertise"`
	Style            CommunicationStyle `json:"style"`
	Interests        []string           `json:"interests,omitempty"`
	PreferredFormats []OutputFormat     `json:"preferred_formats,omitempty"`
	Archived         bool               `json:"archived"`
	Version          int                `json:"version"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Ref returns the snapshot reference stored on revisions
func (p *Persona) Ref() PersonaRef {
	return PersonaRef{ID: p.ID, Version: p.Version}
}

// Clone returns a deep copy so callers can't alias stored slices
func (p *Persona) Clone() *Persona {
	c := *p
	c.Interests = append([]string(nil), p.Interests...)
	c.PreferredFormats = append([]OutputFormat(nil), p.PreferredFormats...)
	return &c
}

// PersonaRef pins the persona version a revision was generated under
type PersonaRef struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}
