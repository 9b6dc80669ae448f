package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YallaPapi/ragmaker/internal/api"
	"github.com/YallaPapi/ragmaker/internal/catalog"
	"github.com/YallaPapi/ragmaker/internal/chunker"
	"github.com/YallaPapi/ragmaker/internal/config"
	"github.com/YallaPapi/ragmaker/internal/indexer"
	"github.com/YallaPapi/ragmaker/internal/llm"
	"github.com/YallaPapi/ragmaker/internal/query"
	"github.com/YallaPapi/ragmaker/internal/quota"
	"github.com/YallaPapi/ragmaker/internal/storage"
	"github.com/YallaPapi/ragmaker/internal/transcript"
	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ragmaker server (HTTP + MCP, foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "ragmaker version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.YouTube.APIKey == "" {
		return errors.New("YOUTUBE_API_KEY is required")
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	loc, err := time.LoadLocation(cfg.Quota.ResetTimezone)
	if err != nil {
		return fmt.Errorf("loading quota timezone: %w", err)
	}
	sched, err := quota.New(store, quota.Options{
		DailyLimit:       cfg.Quota.DailyLimit,
		WarningFraction:  cfg.Quota.WarningFraction,
		CriticalFraction: cfg.Quota.CriticalFraction,
		MaxConcurrent:    cfg.Quota.MaxConcurrent,
		MinDispatchGap:   cfg.Quota.MinDispatchGap,
		Location:         loc,
	})
	if err != nil {
		return fmt.Errorf("starting quota scheduler: %w", err)
	}
	defer sched.Close()

	llmClient, err := llm.NewClient(llm.Options{
		APIKey:         cfg.OpenAI.APIKey,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		ChatModel:      cfg.OpenAI.ChatModel,
		Dimension:      cfg.OpenAI.Dimension,
	})
	if err != nil {
		return fmt.Errorf("creating OpenAI client: %w", err)
	}

	ytClient := catalog.NewYouTubeClient(cfg.YouTube.APIKey, sched, &http.Client{Timeout: 30 * time.Second})
	enumerator := catalog.NewEnumerator(ytClient, cfg.Indexing.MetadataBatchSize, slog.Default())

	captions := transcript.NewInnertubeClient(&http.Client{Timeout: 30 * time.Second})
	fetcher := transcript.NewFetcher(captions, slog.Default())

	backend := vectorindex.NewSQLiteBackend(store.DB())
	index := vectorindex.NewIndex(backend, cfg.Indexing.Namespace, cfg.Indexing.UpsertBatchSize, cfg.Query.OverfetchFactor)

	processor := indexer.NewProcessor(chunker.New(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap), llmClient)
	orchestrator := indexer.New(enumerator, fetcher, processor, index, store, indexer.Options{
		ShortThresholdSeconds: cfg.Indexing.ShortDurationSeconds,
	})

	engine := query.NewEngine(llmClient, index, llmClient, query.Options{
		DefaultTopK: cfg.Query.TopK,
		MaxTokens:   cfg.Query.MaxTokens,
	})

	handler := api.NewHandler(api.Deps{
		Indexer: orchestrator,
		Query:   engine,
		Quota:   sched,
		Index:   index,
		Store:   store,
		Token:   cfg.Server.Token,
	})
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Indexer: orchestrator,
		Query:   engine,
		Quota:   sched,
		Store:   store,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ragmaker listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		stdio := server.NewStdioServer(mcpSrv)
		if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	// Drain quota threshold events into the log.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				for _, ev := range sched.TakeEvents() {
					logQuotaEvent(ev)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func logQuotaEvent(ev quota.Event) {
	switch ev.Type {
	case quota.EventExhausted:
		slog.Error("quota exhausted", "used", ev.Used, "limit", ev.Limit)
	case quota.EventCritical:
		slog.Warn("quota critical", "used", ev.Used, "limit", ev.Limit)
	case quota.EventWarning:
		slog.Warn("quota warning", "used", ev.Used, "limit", ev.Limit)
	case quota.EventReset:
		slog.Info("quota reset", "limit", ev.Limit)
	}
}
