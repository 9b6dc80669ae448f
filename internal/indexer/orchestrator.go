package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YallaPapi/ragmaker/internal/catalog"
	"github.com/YallaPapi/ragmaker/internal/quota"
	"github.com/YallaPapi/ragmaker/internal/storage"
	"github.com/YallaPapi/ragmaker/internal/transcript"
	"github.com/YallaPapi/ragmaker/internal/vectorindex"
)

// ErrAlreadyRunning rejects a second concurrent run in one process.
var ErrAlreadyRunning = errors.New("an indexing run is already active")

// reasonEmbedding marks per-video failures from the chunk/embed stage in
// the ledger, alongside the transcript failure categories.
const reasonEmbedding = "EMBEDDING_ERROR"

// Catalog is the catalog surface the orchestrator consumes.
type Catalog interface {
	ResolveChannel(ctx context.Context, identifier string) string
	ChannelInfo(ctx context.Context, channelID string) (catalog.ChannelInfo, error)
	ListVideos(ctx context.Context, channelID string) ([]catalog.Video, error)
	MetadataBatch(ctx context.Context, videoIDs []string) (map[string]catalog.VideoMeta, error)
}

// TranscriptFetcher materializes one video's transcript.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) transcript.Result
}

// VectorUpserter is the index surface the orchestrator writes to.
type VectorUpserter interface {
	UpsertBatch(ctx context.Context, records []vectorindex.Record) error
}

// Bookkeeper persists run outcomes and the skip-existing video set.
type Bookkeeper interface {
	AppendLedgerEntry(storage.LedgerEntry) error
	MarkVideosIndexed(channelID, channelName string, videos []storage.VideoSuccess) error
	IndexedVideoIDs(channelID string) (map[string]bool, error)
	ListLedgerEntries(channelID string, limit int) ([]storage.LedgerEntry, error)
}

// Options configures an Orchestrator.
type Options struct {
	// ShortThresholdSeconds marks videos at or under this duration as
	// shorts when exclusion is requested.
	ShortThresholdSeconds int
	Logger                *slog.Logger
}

// Orchestrator drives the indexing pipeline. One run at a time per
// process; per-video processing is deliberately sequential as backpressure
// against the metered catalog and caption providers.
type Orchestrator struct {
	catalog     Catalog
	transcripts TranscriptFetcher
	processor   *Processor
	index       VectorUpserter
	store       Bookkeeper
	shortSecs   int
	logger      *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   bool
	progress Progress
}

// New wires the pipeline stages together.
func New(cat Catalog, transcripts TranscriptFetcher, processor *Processor, index VectorUpserter, store Bookkeeper, opts Options) *Orchestrator {
	if opts.ShortThresholdSeconds <= 0 {
		opts.ShortThresholdSeconds = 60
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		catalog:     cat,
		transcripts: transcripts,
		processor:   processor,
		index:       index,
		store:       store,
		shortSecs:   opts.ShortThresholdSeconds,
		logger:      opts.Logger,
		progress:    Progress{State: StateIdle},
	}
}

// StartRun launches an indexing run in the background and returns its ID.
// Rejected with ErrAlreadyRunning while another run is active.
func (o *Orchestrator) StartRun(ctx context.Context, identifier string, opts RunOptions) (string, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	runID := uuid.New().String()
	o.running = true
	o.cancel = false
	o.progress = Progress{
		RunID:     runID,
		State:     StateStarting,
		IsRunning: true,
		StartedAt: time.Now().UTC(),
	}
	o.mu.Unlock()

	// Detach from the caller's context: an HTTP request that started the
	// run must not kill it on return. Cancellation goes through CancelRun.
	go o.run(context.WithoutCancel(ctx), runID, identifier, opts)
	return runID, nil
}

// RunSync runs one indexing run to completion and returns its ledger entry.
func (o *Orchestrator) RunSync(ctx context.Context, identifier string, opts RunOptions) (storage.LedgerEntry, error) {
	runID, err := o.StartRun(ctx, identifier, opts)
	if err != nil {
		return storage.LedgerEntry{}, err
	}
	for {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			o.CancelRun()
		}
		p := o.Progress()
		if p.RunID == runID && p.State.Terminal() {
			break
		}
	}
	entries, err := o.store.ListLedgerEntries("", 1)
	if err != nil || len(entries) == 0 {
		return storage.LedgerEntry{}, fmt.Errorf("run %s finished but ledger entry missing: %w", runID, err)
	}
	return entries[0], nil
}

// Progress returns a copy of the live run view.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// CancelRun requests cooperative cancellation. The run stops before the
// next video, never mid-video, and keeps what already succeeded.
func (o *Orchestrator) CancelRun() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return false
	}
	o.cancel = true
	o.progress.Cancelled = true
	return true
}

// Ledger lists past run entries, newest first. Empty channelID means all.
func (o *Orchestrator) Ledger(channelID string, limit int) ([]storage.LedgerEntry, error) {
	return o.store.ListLedgerEntries(channelID, limit)
}

func (o *Orchestrator) cancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel
}

func (o *Orchestrator) setProgress(update func(*Progress)) {
	o.mu.Lock()
	update(&o.progress)
	o.mu.Unlock()
}

// run executes the state machine. Catalog and upsert failures abort the
// whole run; per-video failures are recorded and never abort.
func (o *Orchestrator) run(ctx context.Context, runID, identifier string, opts RunOptions) {
	started := time.Now().UTC()
	var (
		successes []storage.VideoSuccess
		failures  []storage.VideoFailure
		records   []vectorindex.Record
	)

	channelID := o.catalog.ResolveChannel(ctx, identifier)
	o.setProgress(func(p *Progress) {
		p.State = StateFetchingCatalog
		p.ChannelID = channelID
	})

	info, err := o.catalog.ChannelInfo(ctx, channelID)
	if err != nil {
		o.finish(runID, channelID, "", started, StateFailed,
			fmt.Sprintf("fetching channel info: %v", err), successes, failures)
		return
	}
	o.setProgress(func(p *Progress) { p.ChannelName = info.Name })

	videos, err := o.catalog.ListVideos(ctx, channelID)
	if err != nil {
		o.finish(runID, channelID, info.Name, started, StateFailed, runAbortMessage("listing videos", err), successes, failures)
		return
	}

	filtered, diagnosis, err := o.filterVideos(ctx, channelID, videos, opts)
	if err != nil {
		o.finish(runID, channelID, info.Name, started, StateFailed, runAbortMessage("fetching video metadata", err), successes, failures)
		return
	}
	if len(filtered) == 0 {
		o.finish(runID, channelID, info.Name, started, StateFailed, diagnosis, successes, failures)
		return
	}

	o.setProgress(func(p *Progress) {
		p.State = StateProcessingVideos
		p.TotalVideos = len(filtered)
	})

	finalState := StateCompleted
	message := ""
	for _, video := range filtered {
		if o.cancelled() {
			finalState = StateCancelled
			message = fmt.Sprintf("cancelled after %d of %d videos", len(successes)+len(failures), len(filtered))
			break
		}
		o.setProgress(func(p *Progress) { p.CurrentVideoTitle = video.Title })

		result := o.transcripts.Fetch(ctx, video.VideoID)
		if !result.OK() {
			failures = append(failures, storage.VideoFailure{
				VideoID:        video.VideoID,
				ReasonCategory: string(result.Failure.Category),
				Details:        result.Failure.Details,
			})
			o.bumpProcessed()
			continue
		}

		recs, err := o.processor.ProcessVideo(ctx, video, result.Text)
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExhausted) {
				finalState = StateFailed
				message = fmt.Sprintf("quota exhausted after %d of %d videos", len(successes)+len(failures), len(filtered))
				break
			}
			failures = append(failures, storage.VideoFailure{
				VideoID:        video.VideoID,
				ReasonCategory: reasonEmbedding,
				Details:        err.Error(),
			})
			o.bumpProcessed()
			continue
		}

		records = append(records, recs...)
		successes = append(successes, storage.VideoSuccess{
			VideoID:       video.VideoID,
			ChunksCreated: len(recs),
		})
		o.bumpProcessed()
	}

	// Partial progress is preserved on cancellation and quota stops: what
	// succeeded gets upserted and recorded.
	if len(records) > 0 {
		o.setProgress(func(p *Progress) { p.State = StateUpserting })
		if err := o.index.UpsertBatch(ctx, records); err != nil {
			o.finish(runID, channelID, info.Name, started, StateFailed, runAbortMessage("upserting vectors", err), nil, failures)
			return
		}
	}

	if len(successes) > 0 {
		if err := o.store.MarkVideosIndexed(channelID, info.Name, successes); err != nil {
			o.logger.Error("updating channel bookkeeping", "channel_id", channelID, "error", err)
		}
	}
	if message == "" {
		message = fmt.Sprintf("%d succeeded, %d failed", len(successes), len(failures))
	}
	o.finish(runID, channelID, info.Name, started, finalState, message, successes, failures)
}

// filterVideos applies the filter order: skip already-indexed, then
// shorts (fail-open on unparseable durations), then the numeric cap.
// Returns a diagnosis message explaining a zero-video outcome.
func (o *Orchestrator) filterVideos(ctx context.Context, channelID string, videos []catalog.Video, opts RunOptions) ([]catalog.Video, string, error) {
	if len(videos) == 0 {
		return nil, "channel has no videos at all", nil
	}

	already, err := o.store.IndexedVideoIDs(channelID)
	if err != nil {
		return nil, "", fmt.Errorf("loading indexed video IDs: %w", err)
	}
	candidates := videos[:0:0]
	for _, v := range videos {
		if !already[v.VideoID] {
			candidates = append(candidates, v)
		}
	}
	skippedExisting := len(videos) - len(candidates)
	if len(candidates) == 0 {
		return nil, fmt.Sprintf("all %d videos are already indexed", len(videos)), nil
	}

	// Metadata is needed for durations when excluding shorts, and for the
	// capped list otherwise. Fetching it for every candidate (not just the
	// first MaxVideos) keeps a cap from being under-filled when some
	// candidates turn out to be shorts.
	need := candidates
	if !opts.ExcludeShorts && opts.MaxVideos > 0 && len(need) > opts.MaxVideos {
		need = need[:opts.MaxVideos]
	}
	ids := make([]string, len(need))
	for i, v := range need {
		ids[i] = v.VideoID
	}
	metas, err := o.catalog.MetadataBatch(ctx, ids)
	if err != nil {
		return nil, "", err
	}
	catalog.EnrichVideos(need, metas)

	removedShorts := 0
	if opts.ExcludeShorts {
		kept := candidates[:0]
		for _, v := range candidates {
			if o.isShort(v) {
				removedShorts++
				continue
			}
			kept = append(kept, v)
		}
		candidates = kept
	}
	if len(candidates) == 0 {
		return nil, zeroVideoDiagnosis(len(videos), skippedExisting, removedShorts), nil
	}

	if opts.MaxVideos > 0 && len(candidates) > opts.MaxVideos {
		candidates = candidates[:opts.MaxVideos]
	}
	return candidates, "", nil
}

// isShort reports whether the video falls under the short threshold.
// Unparseable or missing durations fail open: the video is kept.
func (o *Orchestrator) isShort(v catalog.Video) bool {
	if v.DurationSeconds > 0 {
		return v.DurationSeconds <= o.shortSecs
	}
	secs, err := catalog.ParseISODuration(v.RawDuration)
	if err != nil {
		return false
	}
	return secs <= o.shortSecs
}

// zeroVideoDiagnosis explains why filtering left nothing to index.
func zeroVideoDiagnosis(total, skippedExisting, removedShorts int) string {
	var parts []string
	if skippedExisting > 0 {
		parts = append(parts, fmt.Sprintf("%d already indexed", skippedExisting))
	}
	if removedShorts > 0 {
		parts = append(parts, fmt.Sprintf("%d filtered as shorts", removedShorts))
	}
	if len(parts) == 0 {
		return "no videos remained after filtering"
	}
	return fmt.Sprintf("no videos to index: of %d videos, %s", total, strings.Join(parts, ", "))
}

func runAbortMessage(stage string, err error) string {
	if errors.Is(err, quota.ErrQuotaExhausted) {
		return fmt.Sprintf("%s: daily quota exhausted", stage)
	}
	return fmt.Sprintf("%s: %v", stage, err)
}

func (o *Orchestrator) bumpProcessed() {
	o.setProgress(func(p *Progress) { p.ProcessedVideos++ })
}

// finish writes the ledger entry and settles the progress view.
func (o *Orchestrator) finish(runID, channelID, channelName string, started time.Time, state State, message string, successes []storage.VideoSuccess, failures []storage.VideoFailure) {
	entry := storage.LedgerEntry{
		ID:            runID,
		ChannelID:     channelID,
		StartedAt:     started,
		EndedAt:       time.Now().UTC(),
		Status:        string(state),
		Message:       message,
		SuccessVideos: successes,
		FailedVideos:  failures,
	}
	if err := o.store.AppendLedgerEntry(entry); err != nil {
		o.logger.Error("appending ledger entry", "run_id", runID, "error", err)
	}

	o.logger.Info("indexing run finished",
		"run_id", runID, "channel_id", channelID, "state", string(state),
		"succeeded", len(successes), "failed", len(failures), "message", message)

	o.mu.Lock()
	o.running = false
	o.progress.State = state
	o.progress.IsRunning = false
	o.progress.Message = message
	o.progress.CurrentVideoTitle = ""
	if channelName != "" {
		o.progress.ChannelName = channelName
	}
	o.mu.Unlock()
}
