package chunker

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := New(100, 10)
	got := c.Split("short text")
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("got %v, want single unchanged chunk", got)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	c := New(100, 10)
	if got := c.Split("   \n  "); got != nil {
		t.Errorf("got %v, want nil for blank text", got)
	}
}

func TestSplit_NoOverlapReconstructsSource(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	c := New(120, 0)

	pieces := c.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want a real split", len(pieces))
	}
	for i, p := range pieces {
		if len(p) > 120 {
			t.Errorf("piece %d is %d chars, over limit", i, len(p))
		}
	}
	if strings.Join(pieces, "") != text {
		t.Error("concatenated pieces do not reconstruct the source")
	}
}

func TestSplit_OverlapCarriesPredecessorTail(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 30)
	overlap := 20
	base := New(150, 0).Split(text)
	overlapped := New(150, overlap).Split(text)

	if len(base) != len(overlapped) {
		t.Fatalf("overlap changed chunk count: %d vs %d", len(base), len(overlapped))
	}
	if overlapped[0] != base[0] {
		t.Error("first chunk must not carry overlap")
	}
	for i := 1; i < len(base); i++ {
		prev := base[i-1]
		tail := prev
		if len(prev) > overlap {
			tail = prev[len(prev)-overlap:]
		}
		if overlapped[i] != tail+base[i] {
			t.Errorf("chunk %d missing predecessor tail", i)
		}
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here."
	pieces := New(30, 0).Split(text)

	for i, p := range pieces[:len(pieces)-1] {
		if !strings.HasSuffix(p, "\n\n") {
			t.Errorf("piece %d does not end on a paragraph boundary: %q", i, p)
		}
	}
}

func TestSplit_HardCutsUnbrokenText(t *testing.T) {
	text := strings.Repeat("x", 250)
	pieces := New(100, 0).Split(text)

	if len(pieces) != 3 {
		t.Fatalf("got %d pieces, want 3", len(pieces))
	}
	if len(pieces[0]) != 100 || len(pieces[2]) != 50 {
		t.Errorf("got lengths %d/%d/%d, want 100/100/50",
			len(pieces[0]), len(pieces[1]), len(pieces[2]))
	}
}

func TestChunk_IndexAndTotalInvariants(t *testing.T) {
	text := strings.Repeat("one two three four five six seven eight. ", 25)
	chunks := New(120, 15).Chunk("vid42", text, map[string]string{"title": "T"})

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want a real split", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.TotalChunks != len(chunks) {
			t.Errorf("chunk %d has total %d, want %d", i, ch.TotalChunks, len(chunks))
		}
		if ch.ParentVideoID != "vid42" {
			t.Errorf("chunk %d lost parent ID", i)
		}
		if ch.Metadata["title"] != "T" {
			t.Errorf("chunk %d lost metadata", i)
		}
	}

	// Metadata maps must be independent copies.
	chunks[0].Metadata["title"] = "mutated"
	if chunks[1].Metadata["title"] != "T" {
		t.Error("metadata map shared between chunks")
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(100, 100)
	if c.Overlap != 50 {
		t.Errorf("got overlap %d, want clamped 50", c.Overlap)
	}
}
