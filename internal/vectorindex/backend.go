// Package vectorindex stores embedded chunks and serves similarity queries,
// with optional namespace prefixing for multi-tenant use of one backing store.
package vectorindex

import "context"

// Record is one stored vector with its denormalized chunk text.
// Created once at embedding time, never mutated.
type Record struct {
	ID         string            `json:"id"`
	VideoID    string            `json:"video_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
}

// ScoredRecord is a query hit with its similarity score.
type ScoredRecord struct {
	Record
	Score float32 `json:"score"`
}

// Stats is a passthrough read of backend state.
type Stats struct {
	VectorCount int `json:"vector_count"`
}

// Backend is the raw vector-store capability surface.
type Backend interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
	Reset(ctx context.Context) error
	Info(ctx context.Context) (Stats, error)
}
