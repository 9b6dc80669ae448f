// Package transcript retrieves and normalizes video caption tracks,
// classifying every failure into a fixed taxonomy that callers use for
// retry decisions and user-facing aggregation.
package transcript

import "strings"

// FailureCategory buckets a transcript failure. The set is closed: callers
// depend on these exact values for retry/no-retry decisions and for
// aggregating run results ("N failed: no captions, M failed: private").
type FailureCategory string

const (
	NoCaptions           FailureCategory = "NO_CAPTIONS"
	CaptionsDisabled     FailureCategory = "CAPTIONS_DISABLED"
	PrivateOrRestricted  FailureCategory = "PRIVATE_OR_RESTRICTED"
	StructureUnsupported FailureCategory = "STRUCTURE_UNSUPPORTED"
	RateLimit            FailureCategory = "RATE_LIMIT"
	TransientError       FailureCategory = "TRANSIENT_ERROR"
	TooShort             FailureCategory = "TOO_SHORT"
	Unknown              FailureCategory = "UNKNOWN"
)

// Failure explains why a transcript could not be produced.
type Failure struct {
	Category FailureCategory `json:"category"`
	Details  string          `json:"details"`
}

// Result is the outcome of fetching one video's transcript. Exactly one
// shape is populated: Text/SegmentCount on success, Failure otherwise.
type Result struct {
	VideoID      string   `json:"video_id"`
	Text         string   `json:"text,omitempty"`
	SegmentCount int      `json:"segment_count,omitempty"`
	Failure      *Failure `json:"failure,omitempty"`
}

// OK reports whether the transcript was materialized.
func (r Result) OK() bool { return r.Failure == nil }

func success(videoID, text string, segments int) Result {
	return Result{VideoID: videoID, Text: text, SegmentCount: segments}
}

func failure(videoID string, category FailureCategory, details string) Result {
	return Result{VideoID: videoID, Failure: &Failure{Category: category, Details: details}}
}

// keyword families checked in priority order; first hit wins.
var classifications = []struct {
	category FailureCategory
	keywords []string
}{
	{CaptionsDisabled, []string{"disabled", "subtitles are disabled", "captions disabled"}},
	{PrivateOrRestricted, []string{"private", "unavailable", "age-restricted", "age restricted", "login_required", "sign in", "members-only", "removed"}},
	{RateLimit, []string{"429", "too many requests", "rate limit"}},
	{TransientError, []string{"timeout", "timed out", "connection reset", "connection refused", "temporar", "network", "eof", "503", "502"}},
	{StructureUnsupported, []string{"unrecognized", "unsupported structure", "no segments", "parse"}},
}

// Classify maps a raw error message to a FailureCategory. Pure function;
// unmatched messages land in Unknown.
func Classify(message string) FailureCategory {
	lower := strings.ToLower(message)
	for _, c := range classifications {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return Unknown
}
