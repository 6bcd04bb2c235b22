package numbering

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// TxSequencer advances counters in document_sequences inside the caller's
// transaction. The advisory lock serialises allocation per series and the
// counter row is seeded from the highest existing number the first time a
// series is used.
type TxSequencer struct {
	tx pgx.Tx
}

// NewTxSequencer binds a sequencer to a transaction.
func NewTxSequencer(tx pgx.Tx) *TxSequencer {
	return &TxSequencer{tx: tx}
}

// NextSequence implements Sequencer.
func (s *TxSequencer) NextSequence(ctx context.Context, prefix, period string) (int64, error) {
	if err := db.AdvisoryXactLock(ctx, s.tx, shared.NumberingLockKey(prefix, period)); err != nil {
		return 0, err
	}
	var next int64
	err := s.tx.QueryRow(ctx, `INSERT INTO document_sequences (prefix, period, last_value, updated_at)
VALUES ($1, $2, COALESCE((
	SELECT MAX(CAST(substr(number, length($3) + 1) AS BIGINT))
	FROM documents
	WHERE number LIKE $3 || '%' AND substr(number, length($3) + 1) ~ '^[0-9]+$'
), 0) + 1, NOW())
ON CONFLICT (prefix, period) DO UPDATE SET last_value = document_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`, prefix, period, prefix+period+"-").Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// MemorySequencer is an in-process Sequencer guarded by a mutex.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemorySequencer builds an empty MemorySequencer.
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[string]int64)}
}

// Seed sets the last issued value of a series.
func (s *MemorySequencer) Seed(prefix, period string, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[prefix+"|"+period] = last
}

// NextSequence implements Sequencer.
func (s *MemorySequencer) NextSequence(_ context.Context, prefix, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefix + "|" + period
	s.counters[key]++
	return s.counters[key], nil
}
