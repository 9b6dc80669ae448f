package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Enumerator is the policy layer over a Provider: identifier cleanup and
// degrade-not-fail resolution, full-catalog pagination, and batch chunking.
type Enumerator struct {
	provider  Provider
	batchSize int
	logger    *slog.Logger
}

// NewEnumerator wraps provider. batchSize caps metadata calls; zero or
// negative means the provider limit of 50.
func NewEnumerator(provider Provider, batchSize int, logger *slog.Logger) *Enumerator {
	if batchSize <= 0 || batchSize > 50 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enumerator{provider: provider, batchSize: batchSize, logger: logger}
}

// ResolveChannel maps any identifier (canonical ID, @handle, URL, bare name)
// to a channel ID. Canonical IDs pass through without a provider call. A
// failed resolution degrades to a cleaned version of the input instead of
// failing: the subsequent Info call surfaces a real ChannelNotFound if the
// guess was wrong.
func (e *Enumerator) ResolveChannel(ctx context.Context, identifier string) string {
	cleaned := CleanIdentifier(identifier)
	if IsCanonicalID(cleaned) {
		return cleaned
	}
	id, err := e.provider.Resolve(ctx, cleaned)
	if err != nil {
		e.logger.Warn("channel resolution failed, using cleaned identifier",
			"identifier", identifier, "error", err)
		return cleaned
	}
	return id
}

// ChannelInfo fetches channel metadata; ErrChannelNotFound when absent.
func (e *Enumerator) ChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error) {
	return e.provider.Info(ctx, channelID)
}

// ListVideos paginates the channel's full upload list. The sequence is
// finite and restartable from scratch, not resumable mid-page.
func (e *Enumerator) ListVideos(ctx context.Context, channelID string) ([]Video, error) {
	info, err := e.provider.Info(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if info.UploadsPlaylistID == "" {
		return nil, fmt.Errorf("channel %s has no uploads playlist", channelID)
	}

	var videos []Video
	pageToken := ""
	for {
		page, err := e.provider.ListPage(ctx, info.UploadsPlaylistID, pageToken)
		if err != nil {
			return nil, fmt.Errorf("listing videos for %s: %w", channelID, err)
		}
		videos = append(videos, page.Videos...)
		if page.NextPageToken == "" {
			return videos, nil
		}
		pageToken = page.NextPageToken
	}
}

// MetadataBatch fetches per-video metadata, chunking IDs to the provider's
// batch limit. Missing IDs are simply absent from the returned map.
func (e *Enumerator) MetadataBatch(ctx context.Context, videoIDs []string) (map[string]VideoMeta, error) {
	metas := make(map[string]VideoMeta, len(videoIDs))
	for start := 0; start < len(videoIDs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		batch, err := e.provider.MetadataBatch(ctx, videoIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("metadata batch %d-%d: %w", start, end, err)
		}
		for id, meta := range batch {
			metas[id] = meta
		}
	}
	return metas, nil
}

// EnrichVideos merges batch metadata into the listed videos in place.
func EnrichVideos(videos []Video, metas map[string]VideoMeta) {
	for i := range videos {
		meta, ok := metas[videos[i].VideoID]
		if !ok {
			continue
		}
		videos[i].DurationSeconds = meta.DurationSeconds
		videos[i].RawDuration = meta.RawDuration
		if videos[i].Title == "" {
			videos[i].Title = meta.Title
		}
		if videos[i].PublishedAt == "" {
			videos[i].PublishedAt = meta.PublishedAt
		}
	}
}

// CleanIdentifier strips URL scaffolding and handle markers from a raw
// channel identifier.
func CleanIdentifier(identifier string) string {
	s := strings.TrimSpace(identifier)
	for _, prefix := range []string{
		"https://www.youtube.com/", "http://www.youtube.com/",
		"https://youtube.com/", "http://youtube.com/",
	} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "channel/")
	s = strings.TrimPrefix(s, "c/")
	s = strings.TrimPrefix(s, "user/")
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "?/"); i >= 0 {
		s = s[:i]
	}
	return s
}
