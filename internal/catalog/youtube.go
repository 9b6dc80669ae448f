package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/YallaPapi/ragmaker/internal/quota"
)

const ytDataAPIBase = "https://www.googleapis.com/youtube/v3"

// Unit costs per Data API v3 endpoint. Search is two orders of magnitude
// more expensive than the others, which is why identifier resolution
// short-circuits on canonical IDs.
const (
	costSearch        = 100
	costChannels      = 1
	costPlaylistItems = 1
	costVideos        = 1
)

// YouTubeClient implements Provider against the YouTube Data API v3.
// Every call goes through the quota scheduler.
type YouTubeClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	sched   *quota.Scheduler
}

var _ Provider = (*YouTubeClient)(nil)

// NewYouTubeClient builds a metered Data API client. httpClient may be nil.
func NewYouTubeClient(apiKey string, sched *quota.Scheduler, httpClient *http.Client) *YouTubeClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &YouTubeClient{
		apiKey:  apiKey,
		baseURL: ytDataAPIBase,
		http:    httpClient,
		sched:   sched,
	}
}

// --- Data API v3 response types ---

type ytSearchResp struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
	} `json:"items"`
}

type ytChannelsResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"snippet"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytPlaylistItemsResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytVideosResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Resolve finds the canonical channel ID for a handle or search term.
// One metered search call; the caller handles fallback on failure.
func (c *YouTubeClient) Resolve(ctx context.Context, identifier string) (string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", identifier)
	params.Set("type", "channel")
	params.Set("maxResults", "1")

	return quota.Submit(ctx, c.sched, "search", costSearch, quota.PriorityNormal,
		func(ctx context.Context) (string, error) {
			var result ytSearchResp
			if err := c.get(ctx, "/search", params, &result); err != nil {
				return "", err
			}
			if len(result.Items) == 0 || result.Items[0].ID.ChannelID == "" {
				return "", fmt.Errorf("no channel matches %q", identifier)
			}
			return result.Items[0].ID.ChannelID, nil
		})
}

// Info fetches channel metadata. Zero results means ErrChannelNotFound.
func (c *YouTubeClient) Info(ctx context.Context, channelID string) (ChannelInfo, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", channelID)

	return quota.Submit(ctx, c.sched, "channels", costChannels, quota.PriorityNormal,
		func(ctx context.Context) (ChannelInfo, error) {
			var result ytChannelsResp
			if err := c.get(ctx, "/channels", params, &result); err != nil {
				return ChannelInfo{}, err
			}
			if len(result.Items) == 0 {
				return ChannelInfo{}, fmt.Errorf("channel %s: %w", channelID, ErrChannelNotFound)
			}
			item := result.Items[0]
			return ChannelInfo{
				ID:                item.ID,
				Name:              item.Snippet.Title,
				Description:       item.Snippet.Description,
				UploadsPlaylistID: item.ContentDetails.RelatedPlaylists.Uploads,
			}, nil
		})
}

// ListPage fetches one page of a playlist. One metered call per page.
func (c *YouTubeClient) ListPage(ctx context.Context, playlistID, pageToken string) (Page, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", "50")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	return quota.Submit(ctx, c.sched, "playlistItems", costPlaylistItems, quota.PriorityNormal,
		func(ctx context.Context) (Page, error) {
			var result ytPlaylistItemsResp
			if err := c.get(ctx, "/playlistItems", params, &result); err != nil {
				return Page{}, err
			}
			page := Page{NextPageToken: result.NextPageToken}
			for _, item := range result.Items {
				id := item.ContentDetails.VideoID
				if id == "" {
					continue
				}
				page.Videos = append(page.Videos, Video{
					VideoID:     id,
					Title:       item.Snippet.Title,
					PublishedAt: item.Snippet.PublishedAt,
					URL:         "https://www.youtube.com/watch?v=" + id,
				})
			}
			return page, nil
		})
}

// MetadataBatch fetches durations for up to 50 videos in one metered call.
// Callers chunk larger sets; see Enumerator.MetadataBatch.
func (c *YouTubeClient) MetadataBatch(ctx context.Context, videoIDs []string) (map[string]VideoMeta, error) {
	if len(videoIDs) == 0 {
		return map[string]VideoMeta{}, nil
	}
	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", strings.Join(videoIDs, ","))

	return quota.Submit(ctx, c.sched, "videos", costVideos, quota.PriorityNormal,
		func(ctx context.Context) (map[string]VideoMeta, error) {
			var result ytVideosResp
			if err := c.get(ctx, "/videos", params, &result); err != nil {
				return nil, err
			}
			metas := make(map[string]VideoMeta, len(result.Items))
			for _, item := range result.Items {
				meta := VideoMeta{
					Title:       item.Snippet.Title,
					PublishedAt: item.Snippet.PublishedAt,
					RawDuration: item.ContentDetails.Duration,
				}
				if secs, err := ParseISODuration(item.ContentDetails.Duration); err == nil {
					meta.DurationSeconds = secs
				}
				metas[item.ID] = meta
			}
			return metas, nil
		})
}

// get issues one Data API GET and decodes the JSON body. Non-2xx responses
// become quota.StatusError so the scheduler can classify them.
func (c *YouTubeClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("youtube data API %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &quota.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
