package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSearcher struct {
	hits []vectorindex.ScoredRecord
	err  error
}

func (f *fakeSearcher) Query(ctx context.Context, vector []float32, topK int) ([]vectorindex.ScoredRecord, error) {
	return f.hits, f.err
}

type fakeGenerator struct {
	answer     string
	err        error
	lastSystem string
	lastUser   string
	lastTemp   float32
}

func (f *fakeGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.lastTemp = temperature
	return f.answer, f.err
}

func hit(videoID, title, text string, score float32) vectorindex.ScoredRecord {
	return vectorindex.ScoredRecord{
		Record: vectorindex.Record{
			ID:      videoID + "_chunk_0",
			VideoID: videoID,
			Text:    text,
			Metadata: map[string]string{
				"video_title": title,
				"video_url":   "https://www.youtube.com/watch?v=" + videoID,
			},
		},
		Score: score,
	}
}

func newEngine(e *fakeEmbedder, s *fakeSearcher, g *fakeGenerator) *Engine {
	return NewEngine(e, s, g, Options{DefaultTopK: 5, MaxTokens: 256})
}

func TestAnswer_DedupesSourcesKeepsAllChunks(t *testing.T) {
	s := &fakeSearcher{hits: []vectorindex.ScoredRecord{
		hit("X", "Video X", "chunk one", 0.9),
		hit("X", "Video X", "chunk two", 0.8),
		hit("Y", "Video Y", "chunk three", 0.7),
	}}
	g := &fakeGenerator{answer: "the answer"}
	resp := newEngine(&fakeEmbedder{}, s, g).Answer(context.Background(), "q", 5, "default", "")

	if len(resp.Sources) != 2 {
		t.Errorf("got %d sources, want 2", len(resp.Sources))
	}
	if len(resp.Chunks) != 3 {
		t.Errorf("got %d chunks, want 3", len(resp.Chunks))
	}
	if resp.Sources[0].VideoID != "X" || resp.Sources[1].VideoID != "Y" {
		t.Errorf("sources not in first-seen order: %+v", resp.Sources)
	}
	if resp.Answer != "the answer" {
		t.Errorf("got %q", resp.Answer)
	}
}

func TestAnswer_EmptyIndexIsNormalOutcome(t *testing.T) {
	resp := newEngine(&fakeEmbedder{}, &fakeSearcher{}, &fakeGenerator{}).
		Answer(context.Background(), "anything", 5, "default", "")

	if !strings.Contains(resp.Answer, "couldn't find") {
		t.Errorf("got %q, want a couldn't-find answer", resp.Answer)
	}
	if len(resp.Sources) != 0 || len(resp.Chunks) != 0 {
		t.Errorf("got sources=%d chunks=%d, want empty", len(resp.Sources), len(resp.Chunks))
	}
	if resp.Debug.Error != "" {
		t.Errorf("empty index is not an error, got %q", resp.Debug.Error)
	}
}

func TestAnswer_EmbedFailureDegrades(t *testing.T) {
	resp := newEngine(&fakeEmbedder{err: errors.New("provider down")}, &fakeSearcher{}, &fakeGenerator{}).
		Answer(context.Background(), "q", 5, "default", "")

	if !strings.Contains(resp.Answer, "encountered an error") {
		t.Errorf("got %q, want degraded answer", resp.Answer)
	}
	if !strings.Contains(resp.Debug.Error, "provider down") {
		t.Errorf("debug.error %q missing cause", resp.Debug.Error)
	}
	if resp.Sources == nil || resp.Chunks == nil {
		t.Error("degraded response must carry empty, non-nil slices")
	}
}

func TestAnswer_GeneratorFailureDegrades(t *testing.T) {
	s := &fakeSearcher{hits: []vectorindex.ScoredRecord{hit("X", "V", "text", 0.5)}}
	g := &fakeGenerator{err: errors.New("model overloaded")}
	resp := newEngine(&fakeEmbedder{}, s, g).Answer(context.Background(), "q", 5, "default", "")

	if !strings.Contains(resp.Answer, "encountered an error") {
		t.Errorf("got %q, want degraded answer", resp.Answer)
	}
	// The trace up to the failure point is preserved.
	if resp.Debug.ChunkCount != 1 || resp.Debug.Context == "" {
		t.Errorf("debug trace incomplete: %+v", resp.Debug)
	}
}

func TestAnswer_ContextFormatAndPrompts(t *testing.T) {
	s := &fakeSearcher{hits: []vectorindex.ScoredRecord{
		hit("X", "My Video", "the chunk text", 0.9),
	}}
	g := &fakeGenerator{answer: "ok"}
	resp := newEngine(&fakeEmbedder{}, s, g).
		Answer(context.Background(), "what is it?", 5, "concise", "answer in French")

	want := `[1] From "My Video" (https://www.youtube.com/watch?v=X): the chunk text`
	if resp.Debug.Context != want {
		t.Errorf("context block:\n got %q\nwant %q", resp.Debug.Context, want)
	}
	if !strings.Contains(g.lastSystem, "few sentences") {
		t.Errorf("concise profile not applied: %q", g.lastSystem)
	}
	if !strings.Contains(g.lastSystem, "answer in French") {
		t.Errorf("custom instructions missing: %q", g.lastSystem)
	}
	if !strings.Contains(g.lastUser, "what is it?") {
		t.Errorf("question missing from user prompt: %q", g.lastUser)
	}
	if g.lastTemp != 0.4 {
		t.Errorf("got temperature %v, want profile's 0.4", g.lastTemp)
	}
}

func TestResolveProfile_UnknownFallsBack(t *testing.T) {
	if p := ResolveProfile("nonsense"); p.ID != "default" {
		t.Errorf("got %q, want default", p.ID)
	}
	if p := ResolveProfile("educational"); p.ID != "educational" {
		t.Errorf("got %q, want educational", p.ID)
	}
}
