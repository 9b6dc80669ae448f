// Package catalog enumerates a channel's video catalog through a metered
// provider: identifier resolution, paginated listing, and batched metadata.
package catalog

import (
	"context"
	"errors"
	"regexp"
)

// ErrChannelNotFound signals that the provider returned no channel for an ID.
var ErrChannelNotFound = errors.New("channel not found")

// Video is one catalog entry. Immutable once fetched within a run.
type Video struct {
	VideoID         string `json:"video_id"`
	Title           string `json:"title"`
	PublishedAt     string `json:"published_at"`
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
	RawDuration     string `json:"-"`
}

// ChannelInfo describes a resolved channel. UploadsPlaylistID is the handle
// used to list its videos.
type ChannelInfo struct {
	ID                string
	Name              string
	Description       string
	UploadsPlaylistID string
}

// Page is one slice of a channel's video list. An empty NextPageToken
// terminates pagination.
type Page struct {
	Videos        []Video
	NextPageToken string
}

// VideoMeta is the per-video detail fetched in batches after listing.
type VideoMeta struct {
	DurationSeconds int
	RawDuration     string
	Title           string
	PublishedAt     string
}

// Provider is the raw catalog capability surface. Implementations meter
// their own calls; see YouTubeClient.
type Provider interface {
	Resolve(ctx context.Context, identifier string) (string, error)
	Info(ctx context.Context, channelID string) (ChannelInfo, error)
	ListPage(ctx context.Context, playlistID, pageToken string) (Page, error)
	MetadataBatch(ctx context.Context, videoIDs []string) (map[string]VideoMeta, error)
}

// canonicalChannelID matches the provider's canonical channel ID shape.
var canonicalChannelID = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// IsCanonicalID reports whether identifier is already a canonical channel ID.
func IsCanonicalID(identifier string) bool {
	return canonicalChannelID.MatchString(identifier)
}
