// Package api exposes the indexing pipeline and query engine over HTTP
// and MCP. Handlers are thin: decode, delegate, encode.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/YallaPapi/ragmaker/internal/indexer"
	"github.com/YallaPapi/ragmaker/internal/query"
	"github.com/YallaPapi/ragmaker/internal/quota"
	"github.com/YallaPapi/ragmaker/internal/storage"
	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Indexer is the orchestrator surface the API consumes.
type Indexer interface {
	StartRun(ctx context.Context, identifier string, opts indexer.RunOptions) (string, error)
	Progress() indexer.Progress
	CancelRun() bool
	Ledger(channelID string, limit int) ([]storage.LedgerEntry, error)
}

// Answerer answers questions over the index.
type Answerer interface {
	Answer(ctx context.Context, question string, topK int, profileID, customInstructions string) query.Response
}

// QuotaReporter exposes the current quota budget.
type QuotaReporter interface {
	Snapshot() quota.Status
}

// VectorIndex is the index admin surface (stats and destructive reset).
type VectorIndex interface {
	Stats(ctx context.Context) (vectorindex.Stats, error)
	ResetAll(ctx context.Context) error
}

// Deps holds everything the HTTP handler needs.
type Deps struct {
	Indexer Indexer
	Query   Answerer
	Quota   QuotaReporter
	Index   VectorIndex
	Store   *storage.Store
	Token   string // empty disables auth
}

// NewHandler builds the full HTTP API. /health is unauthenticated; every
// other route sits behind bearer auth when a token is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/index", handleStartIndex(deps))
		r.Get("/progress", handleProgress(deps))
		r.Post("/cancel", handleCancel(deps))
		r.Get("/ledger", handleLedger(deps))
		r.Get("/quota", handleQuota(deps))
		r.Get("/channels", handleChannels(deps))
		r.Get("/stats", handleStats(deps))
		r.Post("/query", handleQuery(deps))
		r.Get("/profiles", handleProfiles())
		r.Post("/reset", handleReset(deps))
	})

	return r
}

// IndexRequest starts an indexing run for one channel.
type IndexRequest struct {
	Channel       string `json:"channel"`
	ExcludeShorts bool   `json:"exclude_shorts"`
	MaxVideos     int    `json:"max_videos"`
}

func handleStartIndex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req IndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Channel == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "channel is required")
			return
		}

		runID, err := deps.Indexer.StartRun(r.Context(), req.Channel, indexer.RunOptions{
			ExcludeShorts: req.ExcludeShorts,
			MaxVideos:     req.MaxVideos,
		})
		if errors.Is(err, indexer.ErrAlreadyRunning) {
			httpError(w, http.StatusConflict, "conflict", "an indexing run is already active")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "starting run: %v", err)
			return
		}

		writeJSON(w, map[string]string{"run_id": runID, "status": "started"})
	}
}

func handleProgress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, deps.Indexer.Progress())
	}
}

func handleCancel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]bool{"cancelled": deps.Indexer.CancelRun()})
	}
}

func handleLedger(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID := r.URL.Query().Get("channel_id")
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Indexer.Ledger(channelID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing ledger: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.LedgerEntry{}
		}
		writeJSON(w, entries)
	}
}

func handleQuota(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, deps.Quota.Snapshot())
	}
}

func handleChannels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		channels, err := deps.Store.ListChannels()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing channels: %v", err)
			return
		}
		if channels == nil {
			channels = []storage.Channel{}
		}
		writeJSON(w, channels)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Index.Stats(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading index stats: %v", err)
			return
		}
		writeJSON(w, stats)
	}
}

// QueryRequest asks a question over the index.
type QueryRequest struct {
	Question     string `json:"question"`
	TopK         int    `json:"top_k"`
	Profile      string `json:"profile"`
	Instructions string `json:"instructions"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		resp := deps.Query.Answer(r.Context(), req.Question, req.TopK, req.Profile, req.Instructions)
		writeJSON(w, resp)
	}
}

func handleProfiles() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string][]string{"profiles": query.Profiles()})
	}
}

// ResetRequest guards the destructive wipe behind an explicit confirmation.
type ResetRequest struct {
	Confirm bool `json:"confirm"`
}

func handleReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req ResetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if !req.Confirm {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reset deletes every vector and all bookkeeping; pass confirm=true")
			return
		}

		if err := deps.Index.ResetAll(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resetting index: %v", err)
			return
		}
		if err := deps.Store.ClearBookkeeping(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing bookkeeping: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "reset"})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
