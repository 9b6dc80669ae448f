package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/YallaPapi/ragmaker/internal/indexer"
	"github.com/YallaPapi/ragmaker/internal/query"
	"github.com/YallaPapi/ragmaker/internal/quota"
	"github.com/YallaPapi/ragmaker/internal/storage"
	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <channel>",
	Short: "Index a YouTube channel's transcripts",
	Long: `Index a YouTube channel's transcripts.

Examples:
  ragmaker index @SomeHandle
  ragmaker index UCuAXFkgsw1L7xaCfnd5JJOw --exclude-shorts
  ragmaker index https://www.youtube.com/@SomeHandle --max-videos 50 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		excludeShorts, _ := cmd.Flags().GetBool("exclude-shorts")
		maxVideos, _ := cmd.Flags().GetInt("max-videos")
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/index", map[string]any{
			"channel":        args[0],
			"exclude_shorts": excludeShorts,
			"max_videos":     maxVideos,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Started run %s", result["run_id"])

		if !wait {
			printStep("Track it with: ragmaker status")
			return nil
		}
		return waitForRun(client)
	},
}

// waitForRun polls progress until the run reaches a terminal state.
func waitForRun(client *apiClient) error {
	var lastLine string
	for {
		time.Sleep(time.Second)

		resp, err := client.get("/progress")
		if err != nil {
			return err
		}
		var p indexer.Progress
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		line := fmt.Sprintf("%s %d/%d %s", p.State, p.ProcessedVideos, p.TotalVideos, p.CurrentVideoTitle)
		if line != lastLine {
			printStep("%s", line)
			lastLine = line
		}

		if p.State.Terminal() {
			if p.State == indexer.StateCompleted {
				printSuccess("Run finished: %s", p.Message)
			} else {
				printWarning("Run %s: %s", p.State, p.Message)
			}
			return nil
		}
	}
}

func init() {
	indexCmd.Flags().Bool("exclude-shorts", false, "skip videos at or under the shorts threshold")
	indexCmd.Flags().Int("max-videos", 0, "cap the number of videos indexed this run (0 = all)")
	indexCmd.Flags().Bool("wait", false, "block until the run finishes, printing progress")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed transcripts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")
		profile, _ := cmd.Flags().GetString("profile")
		instructions, _ := cmd.Flags().GetString("instructions")
		showDebug, _ := cmd.Flags().GetBool("debug")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/query", map[string]any{
			"question":     question,
			"top_k":        topK,
			"profile":      profile,
			"instructions": instructions,
		})
		if err != nil {
			return err
		}

		var result query.Response
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)

		if len(result.Sources) > 0 {
			fmt.Println()
			fmt.Println(colorize(colorBold, "Sources:"))
			for _, s := range result.Sources {
				fmt.Printf("  - %s (%s)\n", s.Title, s.URL)
			}
		}

		if showDebug {
			fmt.Println()
			fmt.Println(colorize(colorBold, "Debug:"))
			fmt.Printf("  profile=%s chunks=%d\n", result.Debug.ProfileID, result.Debug.ChunkCount)
			if result.Debug.Error != "" {
				printError("%s", result.Debug.Error)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Int("top-k", 0, "number of transcript chunks to retrieve (0 = server default)")
	askCmd.Flags().String("profile", "default", "answer style: default, concise, detailed, educational")
	askCmd.Flags().String("instructions", "", "extra instructions appended to the system prompt")
	askCmd.Flags().Bool("debug", false, "print the retrieval trace")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, quota, and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/health")
		if err != nil {
			printStatus("Server", "stopped")
			return nil
		}
		resp.Body.Close()
		printStatus("Server", "running at %s", client.baseURL)

		if resp, err := client.get("/quota"); err == nil {
			var q quota.Status
			if decodeJSON(resp, &q) == nil {
				printStatus("Quota", "%d/%d used (%.0f%%), resets %s",
					q.Used, q.Limit, q.Percent, q.ResetAt.Local().Format("15:04 MST"))
			}
		}

		if resp, err := client.get("/progress"); err == nil {
			var p indexer.Progress
			if decodeJSON(resp, &p) == nil {
				if p.IsRunning {
					printStatus("Indexing", "%s %d/%d", p.State, p.ProcessedVideos, p.TotalVideos)
				} else {
					printStatus("Indexing", "idle")
				}
			}
		}

		if resp, err := client.get("/stats"); err == nil {
			var s vectorindex.Stats
			if decodeJSON(resp, &s) == nil {
				printStatus("Vectors", "%d", s.VectorCount)
			}
		}

		if resp, err := client.get("/channels"); err == nil {
			var channels []storage.Channel
			if decodeJSON(resp, &channels) == nil {
				for _, c := range channels {
					printStatus("Channel", "%s (%d videos, %d chunks)", c.Name, c.VideoCount, c.ChunkCount)
				}
			}
		}
		return nil
	},
}

// --- ledger ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List recent indexing runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID, _ := cmd.Flags().GetString("channel")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/ledger?limit=%d", limit)
		if channelID != "" {
			path += "&channel_id=" + channelID
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var entries []storage.LedgerEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %-10s %d ok / %d failed  %s\n",
				colorize(colorCyan, e.ID[:8]),
				e.StartedAt.Local().Format("2006-01-02 15:04"),
				e.Status,
				len(e.SuccessVideos),
				len(e.FailedVideos),
				e.Message,
			)
		}
		return nil
	},
}

func init() {
	ledgerCmd.Flags().String("channel", "", "filter by channel ID")
	ledgerCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active indexing run",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/cancel", nil)
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result["cancelled"] {
			printSuccess("Cancellation requested; the run stops after the current video")
		} else {
			printWarning("No indexing run is active")
		}
		return nil
	},
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every vector and all bookkeeping",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes ALL indexed data across every channel. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/reset", map[string]bool{"confirm": true})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Index reset")
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("confirm", false, "confirm the destructive reset")
}
