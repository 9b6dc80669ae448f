package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Innertube caption access: the ANDROID /player endpoint lists caption
// tracks and a plain GET on a track's base URL returns the timedtext body.
// This path is unmetered by the catalog quota.

const (
	innertubePlayerURL = "https://www.youtube.com/youtubei/v1/player"
	androidVersion     = "20.10.38"
	androidUserAgent   = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"

	maxPlayerBody   = 3 * 1024 * 1024
	maxCaptionsBody = 512 * 1024
)

type playerRequest struct {
	VideoID        string        `json:"videoId"`
	Context        playerContext `json:"context"`
	RacyCheckOk    bool          `json:"racyCheckOk"`
	ContentCheckOk bool          `json:"contentCheckOk"`
}

type playerContext struct {
	Client playerClient `json:"client"`
}

type playerClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []struct {
				BaseURL      string `json:"baseUrl"`
				LanguageCode string `json:"languageCode"`
				Kind         string `json:"kind"`
			} `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

// InnertubeClient implements CaptionProvider against YouTube's Innertube API.
type InnertubeClient struct {
	playerURL string
	http      *http.Client
}

var _ CaptionProvider = (*InnertubeClient)(nil)

// NewInnertubeClient builds a caption provider. httpClient may be nil.
func NewInnertubeClient(httpClient *http.Client) *InnertubeClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &InnertubeClient{playerURL: innertubePlayerURL, http: httpClient}
}

// Listing fetches the video's caption-track inventory via the ANDROID
// player endpoint. A video without captions yields an empty listing, not
// an error; playability blocks surface as errors carrying the reason.
func (c *InnertubeClient) Listing(ctx context.Context, videoID string) (Listing, error) {
	body, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: playerContext{
			Client: playerClient{
				ClientName:        "ANDROID",
				ClientVersion:     androidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return Listing{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.playerURL+"?prettyPrint=false", bytes.NewReader(body))
	if err != nil {
		return Listing{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUserAgent)
	req.Header.Set("X-Youtube-Client-Name", "3")
	req.Header.Set("X-Youtube-Client-Version", androidVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return Listing{}, fmt.Errorf("player request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Listing{}, fmt.Errorf("player HTTP %d: %s", resp.StatusCode, snippet)
	}

	var player playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPlayerBody)).Decode(&player); err != nil {
		return Listing{}, fmt.Errorf("decode player response: %w", err)
	}

	if player.PlayabilityStatus != nil && player.PlayabilityStatus.Status != "OK" {
		reason := player.PlayabilityStatus.Reason
		if reason == "" {
			reason = player.PlayabilityStatus.Status
		}
		return Listing{}, fmt.Errorf("video not playable: %s", reason)
	}
	if player.Captions == nil {
		return Listing{}, nil
	}

	var listing Listing
	for _, t := range player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks {
		// Tracks flagged with exp=xpe need a browser-issued token; skip them.
		if strings.Contains(t.BaseURL, "&exp=xpe") {
			continue
		}
		listing.Tracks = append(listing.Tracks, Track{
			BaseURL:      t.BaseURL,
			LanguageCode: t.LanguageCode,
			Kind:         t.Kind,
		})
	}
	return listing, nil
}

// Transcript downloads one caption track's raw body.
func (c *InnertubeClient) Transcript(ctx context.Context, track Track) ([]byte, error) {
	if track.BaseURL == "" {
		return nil, errors.New("caption track has no base URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", androidUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captions HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCaptionsBody))
}
