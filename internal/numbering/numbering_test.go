package numbering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

func TestAssignNumberFormatsPerType(t *testing.T) {
	ctx := context.Background()
	seq := NewMemorySequencer()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	budget, err := AssignNumber(ctx, seq, DocBudget, date)
	require.NoError(t, err)
	assert.Equal(t, "P24-0001", budget)

	order, err := AssignNumber(ctx, seq, DocProductionOrder, date)
	require.NoError(t, err)
	assert.Equal(t, "24-0001", order)

	second, err := AssignNumber(ctx, seq, DocBudget, date)
	require.NoError(t, err)
	assert.Equal(t, "P24-0002", second)

	invoice, err := AssignNumber(ctx, seq, DocInvoiceSale, date)
	require.NoError(t, err)
	assert.Equal(t, "FV24-0001", invoice)

	nextYear, err := AssignNumber(ctx, seq, DocBudget, date.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "P25-0001", nextYear)
}

func TestAssignNumberContinuesSeededSeries(t *testing.T) {
	seq := NewMemorySequencer()
	seq.Seed("NCV", "24", 41)
	number, err := AssignNumber(context.Background(), seq, DocSaleCredit, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "NCV24-0042", number)
}

func TestAssignNumberUnknownType(t *testing.T) {
	_, err := AssignNumber(context.Background(), NewMemorySequencer(), DocType("RECEIPT"), time.Now())
	require.ErrorIs(t, err, shared.ErrValidation)
}

type failingSequencer struct{}

func (failingSequencer) NextSequence(context.Context, string, string) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestAssignNumberPropagatesCounterError(t *testing.T) {
	_, err := AssignNumber(context.Background(), failingSequencer{}, DocBudget, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAssignNumberConcurrentUnique(t *testing.T) {
	const workers = 64
	seq := NewMemorySequencer()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			number, err := AssignNumber(ctx, seq, DocInvoiceSale, date)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if _, dup := seen[number]; dup {
				return errors.New("duplicate number " + number)
			}
			seen[number] = struct{}{}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, workers)
	_, ok := seen[Format("FV", "24", workers)]
	assert.True(t, ok)
}

func TestParseSequence(t *testing.T) {
	seq, ok := ParseSequence("P24-0017", "P", "24")
	require.True(t, ok)
	assert.EqualValues(t, 17, seq)

	_, ok = ParseSequence("P24-0017", "", "24")
	assert.False(t, ok)
	_, ok = ParseSequence("24-abc", "", "24")
	assert.False(t, ok)
}
