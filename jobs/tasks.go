package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerVerify checks every journal entry balances.
	TaskLedgerVerify = "ledger:verify"
	// TaskStockAudit compares material stock with its movements.
	TaskStockAudit = "inventory:stock-audit"
	// TaskDocumentsRecompute rebuilds document totals from their lines.
	TaskDocumentsRecompute = "documents:recompute"
)

// ScheduledPayload carries scheduling metadata for periodic checks.
type ScheduledPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// RecomputePayload selects the document to rebuild. Zero means every
// document whose lines can still change.
type RecomputePayload struct {
	DocumentID int64 `json:"document_id"`
}

// NewLedgerVerifyTask constructs an Asynq task for the ledger check.
func NewLedgerVerifyTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskLedgerVerify, ScheduledPayload{ScheduledFor: at})
}

// NewStockAuditTask constructs an Asynq task for the stock audit.
func NewStockAuditTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskStockAudit, ScheduledPayload{ScheduledFor: at})
}

// NewRecomputeTask constructs an Asynq task recomputing one or all documents.
func NewRecomputeTask(documentID int64) (*asynq.Task, error) {
	return newTask(TaskDocumentsRecompute, RecomputePayload{DocumentID: documentID})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
