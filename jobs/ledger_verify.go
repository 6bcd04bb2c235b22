package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	jobmetrics "github.com/rvgrafica/rvgrafica-erp/internal/jobs"
)

// LedgerVerifier reports journal entries that do not balance.
type LedgerVerifier interface {
	VerifyBalanced(ctx context.Context) ([]accounting.EntryIssue, error)
}

// LedgerVerifyJob scans the journal for unbalanced or mixed-side entries.
type LedgerVerifyJob struct {
	Ledger  LedgerVerifier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerVerifyJob initialises the ledger check handler.
func NewLedgerVerifyJob(ledger LedgerVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle executes the check. Findings are logged and counted; the run itself
// only fails when the journal cannot be read.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload ScheduledPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskLedgerVerify)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskLedgerVerify)
	issues, err := j.Ledger.VerifyBalanced(ctx)
	if err != nil {
		logger.Error("ledger verify failed", slog.Any("error", err))
		return err
	}
	mixed := 0
	for _, issue := range issues {
		if issue.MixedLine {
			mixed++
		}
	}
	j.Metrics.AddFindings(TaskLedgerVerify, "unbalanced_entry", len(issues)-mixed)
	j.Metrics.AddFindings(TaskLedgerVerify, "mixed_line", mixed)
	logger.Info("ledger verified", slog.Int("issues", len(issues)))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
