package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/YallaPapi/ragmaker/internal/indexer"
	"github.com/YallaPapi/ragmaker/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Indexer Indexer
	Query   Answerer
	Quota   QuotaReporter
	Store   *storage.Store
}

// NewMCPServer creates an MCP server with the ragmaker tools and the
// channels resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ragmaker",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ragmaker — index YouTube channels into a searchable knowledge base and answer questions over their transcripts."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question using the indexed video transcripts."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Number of transcript chunks to retrieve (default 5)")),
			mcp.WithString("profile", mcp.Description("Answer style: default, concise, detailed, or educational")),
			mcp.WithString("instructions", mcp.Description("Extra instructions appended to the system prompt")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("index_channel",
			mcp.WithDescription("Start indexing a YouTube channel in the background."),
			mcp.WithString("channel", mcp.Description("Channel ID, handle, or URL"), mcp.Required()),
			mcp.WithBoolean("exclude_shorts", mcp.Description("Skip videos at or under the shorts threshold")),
			mcp.WithNumber("max_videos", mcp.Description("Cap the number of videos indexed this run (0 = all)")),
		),
		mcpIndexChannel(deps),
	)

	s.AddTool(
		mcp.NewTool("indexing_progress",
			mcp.WithDescription("Report the state of the current or most recent indexing run."),
		),
		mcpProgress(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_indexing",
			mcp.WithDescription("Request cancellation of the active indexing run."),
		),
		mcpCancel(deps),
	)

	s.AddTool(
		mcp.NewTool("quota_status",
			mcp.WithDescription("Show the daily YouTube API quota budget."),
		),
		mcpQuota(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ragmaker://channels",
			"Indexed Channels",
			mcp.WithResourceDescription("Channels in the index with video and chunk counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceChannels(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		topK := req.GetInt("top_k", 0)
		profile := req.GetString("profile", "default")
		instructions := req.GetString("instructions", "")

		resp := deps.Query.Answer(ctx, question, topK, profile, instructions)
		if resp.Debug.Error != "" {
			return mcpError(fmt.Sprintf("query failed: %s", resp.Debug.Error)), nil
		}

		payload := struct {
			Answer  string `json:"answer"`
			Sources any    `json:"sources"`
		}{Answer: resp.Answer, Sources: resp.Sources}

		b, err := json.Marshal(payload)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpIndexChannel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		channel, err := req.RequireString("channel")
		if err != nil {
			return mcpError("channel is required"), nil
		}

		opts := indexer.RunOptions{
			ExcludeShorts: req.GetBool("exclude_shorts", false),
			MaxVideos:     req.GetInt("max_videos", 0),
		}

		runID, err := deps.Indexer.StartRun(ctx, channel, opts)
		if errors.Is(err, indexer.ErrAlreadyRunning) {
			return mcpError("an indexing run is already active; check indexing_progress"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start run: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Started indexing run %s for %s", runID, channel)), nil
	}
}

func mcpProgress(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Indexer.Progress())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal progress: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCancel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Indexer.CancelRun() {
			return mcpText("Cancellation requested; the run stops after the current video."), nil
		}
		return mcpText("No indexing run is active."), nil
	}
}

func mcpQuota(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Quota.Snapshot())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal quota status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceChannels(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		channels, err := deps.Store.ListChannels()
		if err != nil {
			return nil, fmt.Errorf("listing channels: %w", err)
		}

		type channelSummary struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			VideoCount    int    `json:"video_count"`
			ChunkCount    int    `json:"chunk_count"`
			LastIndexedAt string `json:"last_indexed_at"`
		}

		summaries := make([]channelSummary, len(channels))
		for i, c := range channels {
			summaries[i] = channelSummary{
				ID:            c.ID,
				Name:          c.Name,
				VideoCount:    c.VideoCount,
				ChunkCount:    c.ChunkCount,
				LastIndexedAt: c.LastIndexedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("marshalling channels: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
