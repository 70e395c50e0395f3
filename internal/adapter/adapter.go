// Package adapter rewrites source content for a persona. It makes exactly
// one provider call per attempt, then checks the candidate for factual
// drift and structural compliance without discarding it.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/compliance"
	"github.com/jonathan/persona-transformer/internal/llm"
	"github.com/jonathan/persona-transformer/internal/prompts"
	"github.com/jonathan/persona-transformer/internal/types"
)

// Config bounds a single adaptation
type Config struct {
	ProviderTimeout time.Duration
	MaxContentWords int
	// AdvancedTierWords switches to the advanced model tier for long content.
	// Zero keeps every request on the standard tier.
	AdvancedTierWords int
}

// DefaultConfig returns the adapter defaults
func DefaultConfig() Config {
	return Config{
		ProviderTimeout:   60 * time.Second,
		MaxContentWords:   20000,
		AdvancedTierWords: 4000,
	}
}

// AdaptRequest is one adaptation attempt
type AdaptRequest struct {
	Content  *types.SourceContent
	Persona  *types.Persona
	Format   types.OutputFormat
	Template *types.Template
	// Notes from a reviewer or from the previous non-compliant attempt.
	Notes string
}

// Candidate is a generated rewrite with its checks attached
type Candidate struct {
	Text       string
	Directive  Directive
	Facts      []Fact
	Drift      []Drift
	Compliance types.ComplianceResult
	Persona    types.PersonaRef
	Template   *types.TemplateRef
	Notes      string
	Model      string
	Duration   time.Duration
}

// DriftError returns a *FactualDriftError when facts were lost, else nil
func (c *Candidate) DriftError() error {
	if len(c.Drift) == 0 {
		return nil
	}
	return &FactualDriftError{Drift: c.Drift}
}

// Adapter produces candidates through an llm.Client
type Adapter struct {
	client llm.Client
	cfg    Config
	logger *zap.Logger
}

// New creates an Adapter
func New(client llm.Client, cfg Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultConfig().ProviderTimeout
	}
	return &Adapter{client: client, cfg: cfg, logger: logger}
}

// Adapt runs one adaptation attempt
func (a *Adapter) Adapt(ctx context.Context, req AdaptRequest) (*Candidate, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	directive := BuildDirective(req.Persona, req.Content)
	facts := Checklist(req.Content)

	prompt, err := a.buildPrompt(req, directive, facts)
	if err != nil {
		return nil, &AdaptationError{Message: "building prompt", Cause: err}
	}

	tier := llm.TierStandard
	if a.cfg.AdvancedTierWords > 0 && req.Content.Metadata.WordCount > a.cfg.AdvancedTierWords {
		tier = llm.TierAdvanced
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	text, err := a.client.GenerateContent(callCtx, prompt, tier)
	elapsed := time.Since(start)
	if err != nil {
		retryable := llm.IsTransient(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		a.logger.Warn("provider call failed",
			zap.String("persona_id", req.Persona.ID),
			zap.Duration("elapsed", elapsed),
			zap.Bool("retryable", retryable),
			zap.Error(err))
		return nil, &AdaptationError{Message: "provider call", Retryable: retryable, Cause: err}
	}

	text = llm.StripCodeFence(text)
	if strings.TrimSpace(text) == "" {
		return nil, &AdaptationError{Message: "provider returned an empty response"}
	}

	result, err := compliance.Check(text, req.Format, req.Template)
	if err != nil {
		return nil, &AdaptationError{Message: "compliance check", Cause: err}
	}

	c := &Candidate{
		Text:       text,
		Directive:  directive,
		Facts:      facts,
		Drift:      VerifyFacts(text, facts),
		Compliance: result,
		Persona:    req.Persona.Ref(),
		Notes:      req.Notes,
		Model:      a.client.GetModel(tier),
		Duration:   elapsed,
	}
	if req.Template != nil {
		ref := req.Template.Ref()
		c.Template = &ref
	}

	a.logger.Debug("candidate generated",
		zap.String("persona_id", req.Persona.ID),
		zap.String("format", string(req.Format)),
		zap.String("model", c.Model),
		zap.Duration("elapsed", elapsed),
		zap.Int("drift", len(c.Drift)),
		zap.Int("violations", len(result.Violations)))
	return c, nil
}

func (a *Adapter) validate(req AdaptRequest) error {
	if req.Persona == nil {
		return &AdaptationError{Message: "persona is required"}
	}
	if req.Content == nil || strings.TrimSpace(req.Content.PlainText()) == "" {
		return &AdaptationError{Message: "content is empty"}
	}
	for i, s := range req.Content.Sections {
		if !s.Kind.Valid() {
			return &AdaptationError{Message: fmt.Sprintf("content section %d has unknown kind %q", i, s.Kind)}
		}
	}
	if !req.Format.Valid() {
		return &AdaptationError{Message: "unsupported format", Cause: fmt.Errorf("%w: %q", compliance.ErrUnknownFormat, req.Format)}
	}
	words := req.Content.Metadata.WordCount
	if words == 0 {
		words = types.CountWords(req.Content.PlainText())
	}
	if a.cfg.MaxContentWords > 0 && words > a.cfg.MaxContentWords {
		return &AdaptationError{Message: fmt.Sprintf("content has %d words; at most %d allowed", words, a.cfg.MaxContentWords)}
	}
	return nil
}

func (a *Adapter) buildPrompt(req AdaptRequest, d Directive, facts []Fact) (string, error) {
	contract, err := compliance.Contract(req.Format, req.Template)
	if err != nil {
		return "", err
	}

	factLines := prompts.MustGet(prompts.AdaptationFile, prompts.KeyNoFacts)
	if len(facts) > 0 {
		lines := make([]string, 0, len(facts))
		for _, f := range facts {
			lines = append(lines, "- "+f.String())
		}
		factLines = strings.Join(lines, "\n")
	}

	notes := ""
	if strings.TrimSpace(req.Notes) != "" {
		notes, err = prompts.Render(prompts.AdaptationFile, prompts.KeyReviewerNotes, map[string]string{"Notes": req.Notes})
		if err != nil {
			return "", err
		}
	}

	return prompts.Render(prompts.AdaptationFile, prompts.KeyAdaptContent, map[string]string{
		"Persona":   describePersona(req.Persona),
		"Directive": d.Prompt(),
		"Contract":  contract,
		"Facts":     factLines,
		"Notes":     notes,
		"Source":    sourceMarkdown(req.Content),
	})
}

func describePersona(p *types.Persona) string {
	s := fmt.Sprintf("%s (%s expertise, %s style)", p.Name, p.Expertise, p.Style)
	if len(p.Interests) > 0 {
		s += "; interested in " + strings.Join(p.Interests, ", ")
	}
	return s
}

// sourceMarkdown renders the sections back to Markdown for the prompt
func sourceMarkdown(c *types.SourceContent) string {
	var sb strings.Builder
	if c.Title != "" {
		sb.WriteString("# " + c.Title + "\n\n")
	}
	for _, s := range c.Sections {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		switch s.Kind {
		case types.SectionHeading:
			level := 2
			if s.Level != nil && *s.Level > 0 && *s.Level <= 6 {
				level = *s.Level
			}
			sb.WriteString(strings.Repeat("#", level) + " " + text)
		case types.SectionCode:
			sb.WriteString("```\n" + text + "\n```")
		case types.SectionImage:
			sb.WriteString("[image: " + text + "]")
		default:
			sb.WriteString(text)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
