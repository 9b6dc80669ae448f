// Package chunker splits long text into overlapping chunks sized for
// embedding, preserving document order and positional metadata.
package chunker

import "strings"

// Chunk is one slice of a source document. Index and TotalChunks are
// assigned in a second pass once the full split is known.
type Chunk struct {
	ParentVideoID string            `json:"parent_video_id"`
	Index         int               `json:"index"`
	TotalChunks   int               `json:"total_chunks"`
	Text          string            `json:"text"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// separators in preference order: the splitter uses the largest unit that
// keeps a piece within the size limit. The empty separator is a hard
// character cut and always succeeds.
var separators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

// Chunker splits text into pieces of at most Size characters, with each
// chunk after the first carrying the last Overlap characters of its
// predecessor for cross-boundary context.
type Chunker struct {
	Size    int
	Overlap int
}

// New builds a Chunker. Overlap is clamped below Size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Chunk splits text and annotates every piece with the shared metadata plus
// its index and the total count.
func (c *Chunker) Chunk(parentVideoID, text string, metadata map[string]string) []Chunk {
	pieces := c.Split(text)
	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		meta := make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		chunks[i] = Chunk{
			ParentVideoID: parentVideoID,
			Index:         i,
			TotalChunks:   len(pieces),
			Text:          piece,
			Metadata:      meta,
		}
	}
	return chunks
}

// Split produces the overlapped chunk texts. Without overlap the pieces
// concatenate back to the exact source text.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	base := splitRecursive(text, c.Size, 0)
	if c.Overlap == 0 || len(base) < 2 {
		return base
	}

	out := make([]string, len(base))
	out[0] = base[0]
	for i := 1; i < len(base); i++ {
		prev := base[i-1]
		tail := prev
		if len(prev) > c.Overlap {
			tail = prev[len(prev)-c.Overlap:]
		}
		out[i] = tail + base[i]
	}
	return out
}

// splitRecursive splits text into pieces of at most size characters using
// the separator at sepIdx, recursing to finer separators for oversized
// pieces. Separators stay attached to the preceding piece so that joining
// the result reproduces the input.
func splitRecursive(text string, size, sepIdx int) []string {
	if len(text) <= size {
		return []string{text}
	}

	sep := separators[sepIdx]
	if sep == "" {
		var out []string
		for len(text) > size {
			out = append(out, text[:size])
			text = text[size:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, size, sepIdx+1)
	}

	var out []string
	current := ""
	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}
	for _, part := range parts {
		if len(part) > size {
			flush()
			out = append(out, splitRecursive(part, size, sepIdx+1)...)
			continue
		}
		if len(current)+len(part) > size {
			flush()
		}
		current += part
	}
	flush()
	return out
}
