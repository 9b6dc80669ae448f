package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/YallaPapi/ragmaker/internal/indexer"
	"github.com/YallaPapi/ragmaker/internal/query"
	"github.com/YallaPapi/ragmaker/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeIndexer, *fakeAnswerer) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ix := &fakeIndexer{runID: "run-42"}
	ans := &fakeAnswerer{resp: query.Response{
		Answer:  "an answer",
		Sources: []query.Source{{VideoID: "v1", Title: "T", URL: "u"}},
	}}
	return MCPDeps{
		Indexer: ix,
		Query:   ans,
		Quota:   &fakeQuota{},
		Store:   store,
	}, ix, ans
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPAsk_ReturnsAnswerWithSources(t *testing.T) {
	deps, _, ans := newTestMCPDeps(t)

	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"question": "what is discussed?",
		"profile":  "concise",
	}))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}

	var payload struct {
		Answer  string `json:"answer"`
		Sources []struct {
			VideoID string `json:"video_id"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Answer != "an answer" || len(payload.Sources) != 1 {
		t.Errorf("payload = %+v", payload)
	}
	if ans.lastProfile != "concise" {
		t.Errorf("profile = %q, want concise", ans.lastProfile)
	}
}

func TestMCPAsk_MissingQuestion(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)

	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", nil))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing question")
	}
}

func TestMCPAsk_DegradedQuerySurfacesError(t *testing.T) {
	deps, _, ans := newTestMCPDeps(t)
	ans.resp = query.Response{
		Answer: "Sorry, I encountered an error while answering that question.",
		Debug:  query.Debug{Error: "embedding question: provider down"},
	}

	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"question": "q",
	}))
	if !result.IsError {
		t.Fatal("expected error result for degraded query")
	}
	if !strings.Contains(toolText(t, result), "provider down") {
		t.Errorf("error text missing cause: %s", toolText(t, result))
	}
}

func TestMCPIndexChannel_StartsRun(t *testing.T) {
	deps, ix, _ := newTestMCPDeps(t)

	result, err := mcpIndexChannel(deps)(context.Background(), makeCallToolRequest("index_channel", map[string]interface{}{
		"channel":        "@SomeHandle",
		"exclude_shorts": true,
	}))
	if err != nil {
		t.Fatalf("index_channel: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "run-42") {
		t.Errorf("result missing run ID: %s", toolText(t, result))
	}
	if !ix.lastOpts.ExcludeShorts {
		t.Error("exclude_shorts not forwarded")
	}
}

func TestMCPIndexChannel_AlreadyRunning(t *testing.T) {
	deps, ix, _ := newTestMCPDeps(t)
	ix.startErr = indexer.ErrAlreadyRunning

	result, _ := mcpIndexChannel(deps)(context.Background(), makeCallToolRequest("index_channel", map[string]interface{}{
		"channel": "x",
	}))
	if !result.IsError {
		t.Fatal("expected error result when a run is active")
	}
	if !strings.Contains(toolText(t, result), "already active") {
		t.Errorf("got %q", toolText(t, result))
	}
}

func TestMCPProgress_ReportsState(t *testing.T) {
	deps, ix, _ := newTestMCPDeps(t)
	ix.progress = indexer.Progress{State: indexer.StateUpserting, TotalVideos: 4}

	result, err := mcpProgress(deps)(context.Background(), makeCallToolRequest("indexing_progress", nil))
	if err != nil {
		t.Fatalf("indexing_progress: %v", err)
	}

	var p indexer.Progress
	if err := json.Unmarshal([]byte(toolText(t, result)), &p); err != nil {
		t.Fatalf("decoding progress: %v", err)
	}
	if p.State != indexer.StateUpserting || p.TotalVideos != 4 {
		t.Errorf("progress = %+v", p)
	}
}

func TestMCPCancel_ReportsOutcome(t *testing.T) {
	deps, ix, _ := newTestMCPDeps(t)

	result, _ := mcpCancel(deps)(context.Background(), makeCallToolRequest("cancel_indexing", nil))
	if !strings.Contains(toolText(t, result), "No indexing run") {
		t.Errorf("got %q", toolText(t, result))
	}

	ix.cancelled = true
	result, _ = mcpCancel(deps)(context.Background(), makeCallToolRequest("cancel_indexing", nil))
	if !strings.Contains(toolText(t, result), "Cancellation requested") {
		t.Errorf("got %q", toolText(t, result))
	}
}

func TestMCPResourceChannels_ListsIndexedChannels(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	err := deps.Store.MarkVideosIndexed("ch1", "My Channel", []storage.VideoSuccess{
		{VideoID: "v1", ChunksCreated: 3},
		{VideoID: "v2", ChunksCreated: 2},
	})
	if err != nil {
		t.Fatalf("MarkVideosIndexed: %v", err)
	}

	contents, err := mcpResourceChannels(deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "ragmaker://channels"},
	})
	if err != nil {
		t.Fatalf("reading resource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text

	var summaries []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		VideoCount int    `json:"video_count"`
		ChunkCount int    `json:"chunk_count"`
	}
	if err := json.Unmarshal([]byte(text), &summaries); err != nil {
		t.Fatalf("decoding channels: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d channels, want 1", len(summaries))
	}
	if summaries[0].VideoCount != 2 || summaries[0].ChunkCount != 5 {
		t.Errorf("counts = %+v", summaries[0])
	}
}
