// -----------------------------------------------------------------------
// Extraction Pipeline - Fetch session, resolve, submit, classify, persist
// -----------------------------------------------------------------------

package scraper

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/interfaces"
	"github.com/ternarybob/tabula/internal/models"
)

// Pipeline executes one extraction attempt end to end. It holds no state
// between runs; every attempt fetches a fresh session because the server
// rotates tokens. Results are returned, never accumulated, so concurrent
// tasks cannot observe each other.
type Pipeline struct {
	session   *SessionClient
	artifacts interfaces.ArtifactStore
	retry     *RetryPolicy
	logger    arbor.ILogger
}

// NewPipeline creates an extraction pipeline
func NewPipeline(session *SessionClient, artifacts interfaces.ArtifactStore, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		session:   session,
		artifacts: artifacts,
		retry:     NewRetryPolicy(),
		logger:    logger,
	}
}

// Run executes the pipeline for one task and returns the artifact path.
// Transport faults are retried with backoff; each retry starts over with a
// fresh session fetch since the previous token may be spent. Every other
// failure is final for this attempt and surfaces through the error
// taxonomy.
func (p *Pipeline) Run(ctx context.Context, task *models.Task) (string, error) {
	var body []byte

	err := p.retry.ExecuteWithRetry(ctx, p.logger, func() error {
		attemptBody, err := p.attempt(ctx, task.RequestedSelection)
		if err != nil {
			return err
		}
		body = attemptBody
		return nil
	})
	if err != nil {
		return "", err
	}

	path, err := p.artifacts.Write(task.ID, body)
	if err != nil {
		return "", &StorageError{Op: "artifact write", Err: err}
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Str("artifact", path).
		Int("bytes", len(body)).
		Msg("Extraction completed")
	return path, nil
}

// attempt performs one full fetch-resolve-submit-classify cycle
func (p *Pipeline) attempt(ctx context.Context, requested []string) ([]byte, error) {
	session, err := p.session.FetchSession(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := Resolve(requested, session.Options)
	if err != nil {
		return nil, err
	}

	resp, err := p.session.Submit(ctx, session, resolved)
	if err != nil {
		return nil, err
	}

	return Classify(resp)
}

// AvailableOptions fetches the server-declared option values without
// submitting anything. Serves the option discovery endpoint.
func (p *Pipeline) AvailableOptions(ctx context.Context) ([]string, error) {
	session, err := p.session.FetchSession(ctx)
	if err != nil {
		return nil, err
	}
	return session.Options, nil
}
