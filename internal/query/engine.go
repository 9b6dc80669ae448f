package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

const notFoundAnswer = "I couldn't find anything relevant to that question in the indexed videos."

// Source is one cited video, deduplicated across its chunks.
type Source struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// ChunkHit is one retrieved chunk with its similarity score.
type ChunkHit struct {
	VideoID string  `json:"video_id"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
}

// Debug carries the full trace of how an answer was produced.
type Debug struct {
	Question     string `json:"question"`
	ProfileID    string `json:"profile_id"`
	ChunkCount   int    `json:"chunk_count"`
	Context      string `json:"context"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Error        string `json:"error,omitempty"`
}

// Response is the complete answer payload. Errors never escape the engine;
// a degraded response carries the message in Debug.Error.
type Response struct {
	Answer  string     `json:"answer"`
	Sources []Source   `json:"sources"`
	Chunks  []ChunkHit `json:"chunks"`
	Debug   Debug      `json:"debug"`
}

// Embedder turns the question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher serves similarity queries. Implemented by vectorindex.Index.
type Searcher interface {
	Query(ctx context.Context, vector []float32, topK int) ([]vectorindex.ScoredRecord, error)
}

// Generator produces the final answer text.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// Options configures an Engine.
type Options struct {
	DefaultTopK int
	MaxTokens   int
	Logger      *slog.Logger
}

// Engine embeds a question, retrieves context, builds a profile-specific
// prompt, and generates an answer. Read-only and safe for concurrent use.
type Engine struct {
	embedder  Embedder
	index     Searcher
	generator Generator
	topK      int
	maxTokens int
	logger    *slog.Logger
}

// NewEngine wires the query pipeline.
func NewEngine(embedder Embedder, index Searcher, generator Generator, opts Options) *Engine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		index:     index,
		generator: generator,
		topK:      opts.DefaultTopK,
		maxTokens: opts.MaxTokens,
		logger:    opts.Logger,
	}
}

// Answer runs the full query flow. It never returns an error: failures
// produce a degraded response explaining what went wrong in Debug.Error.
func (e *Engine) Answer(ctx context.Context, question string, topK int, profileID, customInstructions string) Response {
	if topK <= 0 {
		topK = e.topK
	}
	profile := ResolveProfile(profileID)
	debug := Debug{Question: question, ProfileID: profile.ID}

	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return e.degraded(debug, fmt.Errorf("embedding question: %w", err))
	}

	hits, err := e.index.Query(ctx, vector, topK)
	if err != nil {
		return e.degraded(debug, fmt.Errorf("querying index: %w", err))
	}
	if len(hits) == 0 {
		// A normal outcome, not an error.
		debug.Context = "no chunks matched the question"
		return Response{
			Answer:  notFoundAnswer,
			Sources: []Source{},
			Chunks:  []ChunkHit{},
			Debug:   debug,
		}
	}

	chunks := make([]ChunkHit, len(hits))
	for i, h := range hits {
		chunks[i] = ChunkHit{
			VideoID: h.VideoID,
			Title:   h.Metadata["video_title"],
			URL:     h.Metadata["video_url"],
			Text:    h.Text,
			Score:   h.Score,
		}
	}

	contextBlock := buildContext(chunks)
	sources := dedupeSources(chunks)

	systemPrompt := profile.SystemPrompt
	if customInstructions != "" {
		systemPrompt += "\n\nAdditional instructions: " + customInstructions
	}
	userPrompt := fmt.Sprintf("Transcript excerpts:\n\n%s\n\nQuestion: %s", contextBlock, question)

	debug.ChunkCount = len(chunks)
	debug.Context = contextBlock
	debug.SystemPrompt = systemPrompt
	debug.UserPrompt = userPrompt

	answer, err := e.generator.Complete(ctx, systemPrompt, userPrompt, profile.Temperature, e.maxTokens)
	if err != nil {
		return e.degraded(debug, fmt.Errorf("generating answer: %w", err))
	}

	return Response{
		Answer:  answer,
		Sources: sources,
		Chunks:  chunks,
		Debug:   debug,
	}
}

// buildContext formats chunks as a numbered block the model can cite.
func buildContext(chunks []ChunkHit) string {
	var sb strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] From %q (%s): %s", i+1, ch.Title, ch.URL, ch.Text)
	}
	return sb.String()
}

// dedupeSources collapses chunks to one source per video, preserving
// first-seen order.
func dedupeSources(chunks []ChunkHit) []Source {
	seen := make(map[string]bool, len(chunks))
	sources := make([]Source, 0, len(chunks))
	for _, ch := range chunks {
		if seen[ch.VideoID] {
			continue
		}
		seen[ch.VideoID] = true
		sources = append(sources, Source{VideoID: ch.VideoID, Title: ch.Title, URL: ch.URL})
	}
	return sources
}

func (e *Engine) degraded(debug Debug, err error) Response {
	e.logger.Warn("query degraded", "question", debug.Question, "error", err)
	debug.Error = err.Error()
	return Response{
		Answer:  "Sorry, I encountered an error while answering that question.",
		Sources: []Source{},
		Chunks:  []ChunkHit{},
		Debug:   debug,
	}
}
