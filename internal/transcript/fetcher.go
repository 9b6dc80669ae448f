package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Track is one caption track from a video's listing.
type Track struct {
	BaseURL      string
	LanguageCode string
	Kind         string // "asr" means auto-generated
}

// Listing is a video's caption-track inventory. Empty Tracks means the
// video has no captions at all.
type Listing struct {
	Tracks []Track
}

// CaptionProvider is the raw caption capability surface. Transcript returns
// an unparsed payload whose shape varies; ExtractText handles the variants.
type CaptionProvider interface {
	Listing(ctx context.Context, videoID string) (Listing, error)
	Transcript(ctx context.Context, track Track) ([]byte, error)
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	minTranscriptLen   = 10
)

// Fetcher materializes transcripts with selective retry: only failures
// classified TRANSIENT_ERROR are retried, with linear backoff.
type Fetcher struct {
	provider    CaptionProvider
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewFetcher wraps provider with the default retry policy.
func NewFetcher(provider CaptionProvider, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		provider:    provider,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      logger,
	}
}

// Fetch retrieves and normalizes one video's transcript. It never returns a
// Go error: every failure mode is expressed as a classified Result.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) Result {
	listing, err := f.provider.Listing(ctx, videoID)
	if err != nil {
		return failure(videoID, Classify(err.Error()), err.Error())
	}
	if len(listing.Tracks) == 0 {
		// Structural absence, not a transient condition: no retry.
		return failure(videoID, NoCaptions, "video has no caption tracks")
	}

	track := pickTrack(listing.Tracks)
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		raw, err := f.provider.Transcript(ctx, track)
		if err != nil {
			category := Classify(err.Error())
			if category != TransientError || attempt == f.maxAttempts {
				return failure(videoID, category, err.Error())
			}
			delay := time.Duration(attempt) * f.baseDelay
			f.logger.Debug("transient transcript failure, retrying",
				"video_id", videoID, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return failure(videoID, TransientError, ctx.Err().Error())
			}
			continue
		}

		text, segments, err := ExtractText(raw)
		if err != nil {
			return failure(videoID, StructureUnsupported, err.Error())
		}
		if len(text) < minTranscriptLen {
			return failure(videoID, TooShort,
				fmt.Sprintf("normalized transcript is %d chars, below minimum %d", len(text), minTranscriptLen))
		}
		return success(videoID, text, segments)
	}
	return failure(videoID, TransientError, "retry attempts exhausted")
}

// pickTrack prefers a manual English track, then any English track, then
// any manual track, then the first listed.
func pickTrack(tracks []Track) Track {
	var firstEnglish, firstManual *Track
	for i := range tracks {
		t := &tracks[i]
		english := len(t.LanguageCode) >= 2 && t.LanguageCode[:2] == "en"
		if english && t.Kind != "asr" {
			return *t
		}
		if english && firstEnglish == nil {
			firstEnglish = t
		}
		if t.Kind != "asr" && firstManual == nil {
			firstManual = t
		}
	}
	if firstEnglish != nil {
		return *firstEnglish
	}
	if firstManual != nil {
		return *firstManual
	}
	return tracks[0]
}
