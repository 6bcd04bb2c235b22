package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	jobmetrics "github.com/rvgrafica/rvgrafica-erp/internal/jobs"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Recomputer rebuilds document totals.
type Recomputer interface {
	RecomputeTotals(ctx context.Context, documentID int64) (documents.Totals, error)
	RecomputeAll(ctx context.Context) (int, error)
}

// RecomputeJob rebuilds totals for one document or all open ones.
type RecomputeJob struct {
	Documents Recomputer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewRecomputeJob initialises the recompute handler.
func NewRecomputeJob(docs Recomputer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputeJob {
	return &RecomputeJob{Documents: docs, Logger: logger, Metrics: metrics}
}

// Handle executes the recompute. Missing documents are not retried.
func (j *RecomputeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Documents == nil {
		return errors.New("recompute: handler not configured")
	}
	var payload RecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskDocumentsRecompute)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskDocumentsRecompute)
	if payload.DocumentID == 0 {
		count, err := j.Documents.RecomputeAll(ctx)
		if err != nil {
			logger.Error("recompute all failed", slog.Int("processed", count), slog.Any("error", err))
			return err
		}
		logger.Info("documents recomputed", slog.Int("count", count))
		return nil
	}
	totals, err := j.Documents.RecomputeTotals(ctx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrReference) {
			logger.Warn("recompute skipped", slog.Int64("document_id", payload.DocumentID), slog.Any("error", err))
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("document recomputed", slog.Int64("document_id", payload.DocumentID), slog.String("total", totals.Total.String()))
	return nil
}
