// Package ingest drains the SQLite job queue: fetching data source content
// and running sentiment analysis over it.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/twinlabs/twind/internal/sentiment"
	"github.com/twinlabs/twind/internal/storage"
)

// SourceStore abstracts the job queue and data source operations.
type SourceStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	EnqueueJob(job storage.Job) error
	GetDataSource(id string) (storage.DataSource, error)
	SetDataSourceContent(id, content string) error
	SetDataSourceError(id, msg string) error
	SetDataSourceSentiment(id, reportJSON string) error
}

// Analyzer scores a data source's content.
type Analyzer interface {
	Analyze(ctx context.Context, src storage.DataSource) (sentiment.Report, error)
}

// Worker processes source_fetch and sentiment_analysis jobs.
type Worker struct {
	store    SourceStore
	fetcher  Fetcher
	analyzer Analyzer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store SourceStore, fetcher Fetcher, analyzer Analyzer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		fetcher:  fetcher,
		analyzer: analyzer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobSourceFetch, storage.JobSentimentAnalysis})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// SourcePayload identifies the data source a job operates on.
type SourcePayload struct {
	SourceID string `json:"source_id"`
}

// EnqueueFetch queues a source_fetch job for the given source.
func EnqueueFetch(store SourceStore, sourceID string) error {
	return enqueue(store, storage.JobSourceFetch, sourceID)
}

// EnqueueAnalysis queues a sentiment_analysis job for the given source.
func EnqueueAnalysis(store SourceStore, sourceID string) error {
	return enqueue(store, storage.JobSentimentAnalysis, sourceID)
}

func enqueue(store SourceStore, jobType, sourceID string) error {
	payload, err := json.Marshal(SourcePayload{SourceID: sourceID})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return store.EnqueueJob(storage.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		PayloadJSON: string(payload),
	})
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload SourcePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	src, err := w.store.GetDataSource(payload.SourceID)
	if err != nil {
		return fmt.Errorf("loading data source %s: %w", payload.SourceID, err)
	}

	switch job.Type {
	case storage.JobSourceFetch:
		return w.processFetch(ctx, src)
	case storage.JobSentimentAnalysis:
		return w.processAnalysis(ctx, src)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) processFetch(ctx context.Context, src storage.DataSource) error {
	content, err := w.fetcher.Fetch(ctx, src)
	if err != nil {
		if markErr := w.store.SetDataSourceError(src.ID, err.Error()); markErr != nil {
			w.logger.Error("failed to mark source error", "source_id", src.ID, "error", markErr)
		}
		return fmt.Errorf("fetching source %s: %w", src.ID, err)
	}

	if err := w.store.SetDataSourceContent(src.ID, content); err != nil {
		return fmt.Errorf("storing content for %s: %w", src.ID, err)
	}

	// Fresh content invalidates any previous sentiment reading.
	if err := EnqueueAnalysis(w.store, src.ID); err != nil {
		return fmt.Errorf("queueing analysis for %s: %w", src.ID, err)
	}
	return nil
}

func (w *Worker) processAnalysis(ctx context.Context, src storage.DataSource) error {
	report, err := w.analyzer.Analyze(ctx, src)
	if err != nil {
		return fmt.Errorf("analyzing source %s: %w", src.ID, err)
	}

	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if err := w.store.SetDataSourceSentiment(src.ID, string(b)); err != nil {
		return fmt.Errorf("storing report for %s: %w", src.ID, err)
	}
	return nil
}
