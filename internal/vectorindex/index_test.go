package vectorindex

import (
	"context"
	"strings"
	"testing"

	"github.com/YallaPapi/ragmaker/internal/storage"
)

func openBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLiteBackend(s.DB())
}

func rec(id, videoID string, embedding []float32) Record {
	return Record{
		ID:         id,
		VideoID:    videoID,
		ChunkIndex: 0,
		Text:       "text for " + id,
		Metadata:   map[string]string{"video_title": "t"},
		Embedding:  embedding,
	}
}

func TestSQLiteBackend_UpsertAndQuery(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	records := []Record{
		rec("a", "v1", []float32{1, 0, 0}),
		rec("b", "v1", []float32{0.9, 0.1, 0}),
		rec("c", "v2", []float32{0, 1, 0}),
	}
	if err := b.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := b.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("got order %s,%s, want a,b", results[0].ID, results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v vs %v", results[0].Score, results[1].Score)
	}
	if results[0].Metadata["video_title"] != "t" {
		t.Errorf("metadata not preserved: %+v", results[0].Metadata)
	}
}

func TestSQLiteBackend_UpsertReplacesByID(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	if err := b.Upsert(ctx, []Record{rec("a", "v1", []float32{1, 0})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := b.Upsert(ctx, []Record{rec("a", "v1", []float32{0, 1})}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	stats, err := b.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if stats.VectorCount != 1 {
		t.Errorf("got %d vectors, want 1 after replace", stats.VectorCount)
	}
}

func TestSQLiteBackend_Reset(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	if err := b.Upsert(ctx, []Record{rec("a", "v1", []float32{1})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := b.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	stats, err := b.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if stats.VectorCount != 0 {
		t.Errorf("got %d vectors after reset, want 0", stats.VectorCount)
	}
}

func TestIndex_NamespacePrefixRoundTrip(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	ix := NewIndex(b, "p1", 100, 3)

	if err := ix.UpsertBatch(ctx, []Record{rec("v1_chunk_0", "v1", []float32{1, 0})}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	results, err := ix.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "p1_v1_chunk_0" {
		t.Fatalf("got %+v, want single ID p1_v1_chunk_0", results)
	}
}

func TestIndex_QueryFiltersForeignNamespaces(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()

	// Two tenants sharing one backend.
	p1 := NewIndex(b, "p1", 100, 3)
	p2 := NewIndex(b, "p2", 100, 3)
	vec := []float32{1, 0}
	if err := p1.UpsertBatch(ctx, []Record{rec("v1_chunk_0", "v1", vec)}); err != nil {
		t.Fatalf("UpsertBatch p1: %v", err)
	}
	if err := p2.UpsertBatch(ctx, []Record{
		rec("v9_chunk_0", "v9", vec),
		rec("v9_chunk_1", "v9", vec),
	}); err != nil {
		t.Fatalf("UpsertBatch p2: %v", err)
	}

	results, err := p1.Query(ctx, vec, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, r := range results {
		if !strings.HasPrefix(r.ID, "p1_") {
			t.Errorf("foreign namespace leaked into results: %s", r.ID)
		}
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestIndex_EmptyNamespacePassthrough(t *testing.T) {
	b := openBackend(t)
	ctx := context.Background()
	ix := NewIndex(b, "", 100, 3)

	if err := ix.UpsertBatch(ctx, []Record{rec("v1_chunk_0", "v1", []float32{1})}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	results, err := ix.Query(ctx, []float32{1}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].ID != "v1_chunk_0" {
		t.Fatalf("got %+v, want unprefixed v1_chunk_0", results)
	}
}

type countingBackend struct {
	SQLiteBackend
	calls []int
}

func (c *countingBackend) Upsert(ctx context.Context, records []Record) error {
	c.calls = append(c.calls, len(records))
	return nil
}

func TestIndex_UpsertBatchSplits(t *testing.T) {
	cb := &countingBackend{}
	ix := NewIndex(cb, "", 100, 3)

	records := make([]Record, 250)
	for i := range records {
		records[i] = rec(string(rune('a'+i%26)), "v", []float32{1})
	}
	if err := ix.UpsertBatch(context.Background(), records); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if len(cb.calls) != 3 || cb.calls[0] != 100 || cb.calls[2] != 50 {
		t.Errorf("got batch sizes %v, want [100 100 50]", cb.calls)
	}
}
