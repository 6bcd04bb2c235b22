package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

var errSnapshotSuperseded = errors.New("documents: totals snapshot superseded")

// TotalsCache keeps a read-through totals snapshot of each document in
// redis. Writers never store snapshots; they bump the document generation
// after commit. A loaded snapshot is only written back while the generation
// it was read under is still current, so a load racing a mutation cannot
// leave old totals behind.
type TotalsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewTotalsCache instantiates the cache helper.
func NewTotalsCache(client *redis.Client, ttl time.Duration) *TotalsCache {
	return &TotalsCache{client: client, ttl: ttl}
}

// Invalidate drops the snapshot of a document and starts a new generation.
// Call it after the transaction that changed the document committed.
func (c *TotalsCache) Invalidate(ctx context.Context, documentID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, shared.TotalsGenerationKey(documentID))
		pipe.Del(ctx, shared.TotalsCacheKey(documentID))
		return nil
	})
	return err
}

// Fetch returns the cached snapshot or loads and stores it. Concurrent misses
// for the same document and generation share one load.
func (c *TotalsCache) Fetch(ctx context.Context, documentID int64, loader func(context.Context) (Totals, error)) (Totals, error) {
	if loader == nil {
		return Totals{}, errors.New("documents: totals loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	values, err := c.client.MGet(ctx, shared.TotalsCacheKey(documentID), shared.TotalsGenerationKey(documentID)).Result()
	if err != nil {
		return Totals{}, err
	}
	if raw, ok := values[0].(string); ok {
		var totals Totals
		if err := json.Unmarshal([]byte(raw), &totals); err == nil {
			return totals, nil
		}
	}
	generation := generationOf(values[1])
	flight := strconv.FormatInt(documentID, 10) + ":" + strconv.FormatInt(generation, 10)
	value, err, _ := c.group.Do(flight, func() (interface{}, error) {
		totals, err := loader(ctx)
		if err != nil {
			return Totals{}, err
		}
		if err := c.storeIfCurrent(ctx, documentID, generation, totals); err != nil {
			return Totals{}, err
		}
		return totals, nil
	})
	if err != nil {
		return Totals{}, err
	}
	return value.(Totals), nil
}

func (c *TotalsCache) storeIfCurrent(ctx context.Context, documentID, generation int64, totals Totals) error {
	raw, err := json.Marshal(totals)
	if err != nil {
		return err
	}
	generationKey := shared.TotalsGenerationKey(documentID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errSnapshotSuperseded
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, shared.TotalsCacheKey(documentID), raw, c.ttl)
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, errSnapshotSuperseded) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("documents: store totals %d: %w", documentID, err)
	}
	return nil
}

func generationOf(value interface{}) int64 {
	raw, ok := value.(string)
	if !ok {
		return 0
	}
	generation, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return generation
}
