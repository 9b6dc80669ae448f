package vectorindex

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultBatchSize       = 100
	defaultOverfetchFactor = 3
)

// Index is the namespace-aware layer over a Backend. When a namespace is
// configured every stored ID gets a "{namespace}_" prefix, and queries
// filter client-side to this namespace's records. An empty namespace
// passes IDs through unchanged.
type Index struct {
	backend   Backend
	namespace string
	batchSize int
	overfetch int
}

// NewIndex wraps backend. batchSize and overfetch fall back to defaults
// when non-positive.
func NewIndex(backend Backend, namespace string, batchSize, overfetch int) *Index {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if overfetch <= 0 {
		overfetch = defaultOverfetchFactor
	}
	return &Index{
		backend:   backend,
		namespace: namespace,
		batchSize: batchSize,
		overfetch: overfetch,
	}
}

func (ix *Index) prefix() string {
	if ix.namespace == "" {
		return ""
	}
	return ix.namespace + "_"
}

// UpsertBatch applies the namespace prefix and writes records in fixed-size
// batches, one backend call per batch.
func (ix *Index) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	prefix := ix.prefix()
	prefixed := make([]Record, len(records))
	for i, r := range records {
		r.ID = prefix + r.ID
		prefixed[i] = r
	}

	for start := 0; start < len(prefixed); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(prefixed) {
			end = len(prefixed)
		}
		if err := ix.backend.Upsert(ctx, prefixed[start:end]); err != nil {
			return fmt.Errorf("upserting batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Query returns the topK most similar records in this namespace. The
// backend has no native namespace concept, so it over-fetches
// topK x overfetch and filters by ID prefix before truncating; too small
// a factor risks returning fewer than topK even when enough matches exist.
func (ix *Index) Query(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}
	fetchK := topK
	prefix := ix.prefix()
	if prefix != "" {
		fetchK = topK * ix.overfetch
	}

	results, err := ix.backend.Query(ctx, vector, fetchK)
	if err != nil {
		return nil, fmt.Errorf("querying backend: %w", err)
	}
	if prefix == "" {
		if len(results) > topK {
			results = results[:topK]
		}
		return results, nil
	}

	filtered := results[:0]
	for _, r := range results {
		if strings.HasPrefix(r.ID, prefix) {
			filtered = append(filtered, r)
		}
		if len(filtered) == topK {
			break
		}
	}
	return filtered, nil
}

// ResetAll destructively removes every vector regardless of namespace.
// This is a whole-store operation; there is no per-namespace delete.
func (ix *Index) ResetAll(ctx context.Context) error {
	return ix.backend.Reset(ctx)
}

// Stats is a passthrough read of backend statistics.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	return ix.backend.Info(ctx)
}
