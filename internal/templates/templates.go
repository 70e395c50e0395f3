// Package templates stores the layout/style templates each output format is
// checked against. Templates are versioned: every Put bumps the version so
// revisions can pin the exact rules they were validated under.
package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/persona-transformer/internal/types"
)

// ErrTemplateNotFound is returned when no template matches
var ErrTemplateNotFound = errors.New("template not found")

// Store is the template storage collaborator
type Store interface {
	// Lookup returns the persona-scoped template for the format when one
	// exists, otherwise the format-wide default.
	Lookup(ctx context.Context, format types.OutputFormat, personaID string) (*types.Template, error)
	Get(ctx context.Context, id string) (*types.Template, error)
	// Put stores t, bumping the version when the ID already exists.
	Put(ctx context.Context, t *types.Template) (*types.Template, error)
	List(ctx context.Context) ([]types.Template, error)
}

// Registry is an in-memory Store, optionally seeded from YAML files
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*types.Template
}

// Make sure we conform to Store interface
var _ Store = (*Registry)(nil)

// NewRegistry returns a registry seeded with the built-in defaults
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]*types.Template)}
	for _, t := range Defaults() {
		tmpl := t
		r.byID[tmpl.ID] = &tmpl
	}
	return r
}

// DefaultID is the ID of the built-in template for a format
func DefaultID(format types.OutputFormat) string {
	return "default-" + string(format)
}

// Defaults returns one template per format with the stock structural rules
func Defaults() []types.Template {
	return []types.Template{
		{
			ID: DefaultID(types.FormatSlides), Name: "Standard deck", Format: types.FormatSlides, Version: 1,
			Rules: types.TemplateRules{MinSlides: 3, MaxSlides: 12, MaxBulletsPerSlide: 5},
			Style: map[string]string{"theme": "light"},
		},
		{
			ID: DefaultID(types.FormatThread), Name: "Social thread", Format: types.FormatThread, Version: 1,
			Rules: types.TemplateRules{MaxSegmentChars: 280, HookMaxChars: 200, MinSegments: 2, MaxSegments: 15},
		},
		{
			ID: DefaultID(types.FormatSummary), Name: "Executive summary", Format: types.FormatSummary, Version: 1,
			Rules: types.TemplateRules{MaxWords: 250},
		},
		{
			ID: DefaultID(types.FormatBlog), Name: "Long-form post", Format: types.FormatBlog, Version: 1,
			Rules: types.TemplateRules{MinHeadings: 1},
		},
		{
			ID: DefaultID(types.FormatInfographic), Name: "Fact sheet", Format: types.FormatInfographic, Version: 1,
			Rules: types.TemplateRules{MinFacts: 3},
			Style: map[string]string{"palette": "brand"},
		},
	}
}

// Validate checks the fields every template needs
func Validate(t *types.Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("template: id is required")
	}
	if !t.Format.Valid() {
		return fmt.Errorf("template %s: unknown format %q", t.ID, t.Format)
	}
	r := t.Rules
	if r.MinSegments > 0 && r.MaxSegments > 0 && r.MinSegments > r.MaxSegments {
		return fmt.Errorf("template %s: min_segments %d exceeds max_segments %d", t.ID, r.MinSegments, r.MaxSegments)
	}
	if r.MinSlides > 0 && r.MaxSlides > 0 && r.MinSlides > r.MaxSlides {
		return fmt.Errorf("template %s: min_slides %d exceeds max_slides %d", t.ID, r.MinSlides, r.MaxSlides)
	}
	return nil
}

func clone(t *types.Template) *types.Template {
	c := *t
	if t.Style != nil {
		c.Style = make(map[string]string, len(t.Style))
		for k, v := range t.Style {
			c.Style[k] = v
		}
	}
	return &c
}

// Lookup implements Store
func (r *Registry) Lookup(_ context.Context, format types.OutputFormat, personaID string) (*types.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *types.Template
	for _, t := range r.sortedLocked() {
		if t.Format != format {
			continue
		}
		if personaID != "" && t.PersonaID == personaID {
			return clone(t), nil
		}
		if t.PersonaID == "" && (fallback == nil || t.ID == DefaultID(format)) {
			fallback = t
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("%w: format %s", ErrTemplateNotFound, format)
	}
	return clone(fallback), nil
}

// Get implements Store
func (r *Registry) Get(_ context.Context, id string) (*types.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return clone(t), nil
}

// Put implements Store
func (r *Registry) Put(_ context.Context, t *types.Template) (*types.Template, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := clone(t)
	if existing, ok := r.byID[t.ID]; ok {
		stored.Version = existing.Version + 1
	} else if stored.Version < 1 {
		stored.Version = 1
	}
	r.byID[t.ID] = stored
	return clone(stored), nil
}

// List implements Store
func (r *Registry) List(_ context.Context) ([]types.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := r.sortedLocked()
	out := make([]types.Template, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, *clone(t))
	}
	return out, nil
}

func (r *Registry) sortedLocked() []*types.Template {
	out := make([]*types.Template, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
