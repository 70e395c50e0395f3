package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/observability"
	"github.com/jonathan/persona-transformer/internal/orchestrator"
	"github.com/jonathan/persona-transformer/internal/schemas"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Transform one document for one persona and wait for the result",
	Long: `Ingests a source content document and a persona, submits a single job and waits for it
to settle, printing progress, the resulting revision and its quality report.

With --approve the revision is approved and the export bundle is printed.`,
	RunE: runTransformCmd,
}

var (
	runContent    string
	runPersona    string
	runFormat     string
	runTemplateID string
	runApprove    bool
	runTimeout    time.Duration
)

func init() {
	runCommand.Flags().StringVar(&runContent, "content", "", "Path to a SourceContent JSON document")
	runCommand.Flags().StringVar(&runPersona, "persona", "", "Path to a persona JSON document")
	runCommand.Flags().StringVarP(&runFormat, "format", "f", "", "Output format: slides, thread, summary, blog or infographic")
	runCommand.Flags().StringVarP(&runTemplateID, "template", "t", "", "Template ID (defaults to the persona's or the format's template)")
	runCommand.Flags().BoolVar(&runApprove, "approve", false, "Approve the result and print the export bundle")
	runCommand.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "How long to wait for the job")

	_ = runCommand.MarkFlagRequired("content")
	_ = runCommand.MarkFlagRequired("persona")
	_ = runCommand.MarkFlagRequired("format")

	rootCmd.AddCommand(runCommand)
}

func runTransformCmd(cmd *cobra.Command, _ []string) error {
	format, err := types.ParseOutputFormat(runFormat)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	content, err := ingestContent(ctx, a.store, runContent)
	if err != nil {
		return err
	}
	persona, err := ingestPersona(ctx, a.store, runPersona)
	if err != nil {
		return err
	}

	if err := a.orchestrator.Start(ctx); err != nil {
		return err
	}
	defer a.orchestrator.Stop() //nolint:errcheck

	jobID, err := a.orchestrator.Submit(ctx, types.SubmitJobRequest{
		ContentID:  content.ID,
		PersonaID:  persona.ID,
		Format:     string(format),
		TemplateID: runTemplateID,
	})
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	logger.Info("job submitted", zap.String("job_id", jobID.String()),
		zap.String("content_id", content.ID), zap.String("persona_id", persona.ID))

	printer := observability.NewPrinter(cmd.OutOrStdout())
	view, err := waitForJob(ctx, a.orchestrator, jobID, logger)
	if err != nil {
		return err
	}
	printer.PrintStatus(view)
	if view.Status != types.JobCompleted {
		return fmt.Errorf("job %s: %s", view.Status, view.Error)
	}

	job, err := a.store.Job().Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.CurrentRevisionID == nil {
		return errors.New("completed job has no revision")
	}
	rev, err := a.store.Revision().Get(ctx, *job.CurrentRevisionID)
	if err != nil {
		return err
	}
	printer.PrintRevision(rev)
	printer.PrintQualityReport(&rev.Quality)

	if !runApprove {
		return nil
	}
	if _, err := a.controller.Approve(ctx, jobID, rev.ID, "approved from the command line"); err != nil {
		return fmt.Errorf("failed to approve revision: %w", err)
	}
	bundle, err := a.controller.Export(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	printer.PrintExport(bundle)
	return nil
}

// jobRunner is the orchestrator surface waitForJob needs
type jobRunner interface {
	GetStatus(ctx context.Context, id uuid.UUID) (types.StatusView, error)
	Subscribe(id uuid.UUID) (<-chan orchestrator.ProgressEvent, func())
}

// waitForJob blocks until the job reaches a terminal state or ctx is done
func waitForJob(ctx context.Context, jobs jobRunner, id uuid.UUID, logger *zap.Logger) (types.StatusView, error) {
	events, stop := jobs.Subscribe(id)
	defer stop()

	view, err := jobs.GetStatus(ctx, id)
	if err != nil {
		return types.StatusView{}, err
	}
	for !view.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return view, fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return jobs.GetStatus(ctx, id)
			}
			logger.Info("job progress", zap.String("status", string(ev.Status)),
				zap.Int("progress", ev.Progress), zap.Int("retry_count", ev.RetryCount))
			if ev.Status.IsTerminal() {
				return jobs.GetStatus(ctx, id)
			}
		}
	}
	return view, nil
}

// ingestContent stores the document at path. A document already stored under
// the same ID is reused.
func ingestContent(ctx context.Context, st store.Store, path string) (*types.SourceContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if err := schemas.ValidateContent(data); err != nil {
		return nil, err
	}
	var content types.SourceContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}
	content.DeriveMetadata()
	if content.IngestedAt.IsZero() {
		content.IngestedAt = time.Now().UTC()
	}

	err = st.Content().Create(ctx, &content)
	if errors.Is(err, store.ErrDuplicateKey) {
		return st.Content().Get(ctx, content.ID)
	}
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// ingestPersona stores the persona at path, reusing an existing one with the same ID
func ingestPersona(ctx context.Context, st store.Store, path string) (*types.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona: %w", err)
	}
	var req types.PersonaRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse persona: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persona: %w", err)
	}

	p := req.ToPersona()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	created, err := st.Persona().Create(ctx, p)
	if errors.Is(err, store.ErrDuplicateKey) {
		return st.Persona().Get(ctx, p.ID)
	}
	return created, err
}
