// Package indexer runs the channel indexing pipeline: catalog enumeration,
// filtering, transcript fetch, chunking, embedding, and vector upsert, with
// live progress and an append-only run ledger.
package indexer

import (
	"context"
	"fmt"

	"github.com/YallaPapi/ragmaker/internal/catalog"
	"github.com/YallaPapi/ragmaker/internal/chunker"
	"github.com/YallaPapi/ragmaker/internal/llm"
	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

// Processor turns one video's transcript into embedded vector records.
type Processor struct {
	chunker  *chunker.Chunker
	embedder llm.EmbeddingProvider
}

// NewProcessor builds a Processor.
func NewProcessor(c *chunker.Chunker, embedder llm.EmbeddingProvider) *Processor {
	return &Processor{chunker: c, embedder: embedder}
}

// ProcessVideo chunks the transcript and embeds each chunk sequentially.
// A single chunk's embedding failure aborts the whole video: a partial
// chunk set would leave the video half-indexed.
func (p *Processor) ProcessVideo(ctx context.Context, video catalog.Video, text string) ([]vectorindex.Record, error) {
	meta := map[string]string{
		"video_title":  video.Title,
		"video_url":    video.URL,
		"published_at": video.PublishedAt,
	}
	chunks := p.chunker.Chunk(video.VideoID, text, meta)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("transcript produced no chunks")
	}

	records := make([]vectorindex.Record, 0, len(chunks))
	for _, ch := range chunks {
		vec, err := p.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d/%d: %w", ch.Index+1, ch.TotalChunks, err)
		}
		records = append(records, vectorindex.Record{
			ID:         fmt.Sprintf("%s_chunk_%d", video.VideoID, ch.Index),
			VideoID:    video.VideoID,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
			Metadata:   ch.Metadata,
			Embedding:  vec,
		})
	}
	return records, nil
}
