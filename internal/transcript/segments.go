package transcript

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"html"
	"strings"
)

// ErrUnrecognizedStructure means the raw payload matched none of the known
// caption shapes.
var ErrUnrecognizedStructure = errors.New("unrecognized caption structure")

// --- shape 1: timedtext XML ---

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Text string `xml:",chardata"`
}

// --- shape 2: json3 events ---

type json3Body struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// --- shape 3: transcript renderer JSON (engagement panel) ---

type rendererBody struct {
	Actions []struct {
		UpdateEngagementPanelAction *struct {
			Content struct {
				TranscriptRenderer struct {
					Content struct {
						TranscriptSearchPanelRenderer struct {
							Body struct {
								TranscriptSegmentListRenderer struct {
									InitialSegments []struct {
										TranscriptSegmentRenderer *struct {
											Snippet struct {
												Runs []struct {
													Text string `json:"text"`
												} `json:"runs"`
											} `json:"snippet"`
										} `json:"transcriptSegmentRenderer"`
									} `json:"initialSegments"`
								} `json:"transcriptSegmentListRenderer"`
							} `json:"body"`
						} `json:"transcriptSearchPanelRenderer"`
					} `json:"content"`
				} `json:"transcriptRenderer"`
			} `json:"content"`
		} `json:"updateEngagementPanelAction"`
	} `json:"actions"`
}

// ExtractText normalizes a raw caption payload to plain text plus a segment
// count. It tolerates three known shapes: timedtext XML, json3 events, and
// the engagement-panel transcript renderer. Anything else returns
// ErrUnrecognizedStructure.
func ExtractText(raw []byte) (string, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", 0, ErrUnrecognizedStructure
	}

	if trimmed[0] == '<' {
		return extractTimedText(trimmed)
	}

	if text, n, err := extractJSON3(trimmed); err == nil {
		return text, n, nil
	}
	if text, n, err := extractRenderer(trimmed); err == nil {
		return text, n, nil
	}
	return "", 0, ErrUnrecognizedStructure
}

func extractTimedText(raw []byte) (string, int, error) {
	var tt timedText
	if err := xml.Unmarshal(raw, &tt); err != nil {
		return "", 0, ErrUnrecognizedStructure
	}
	var sb strings.Builder
	segments := 0
	for _, line := range tt.Lines {
		appendSegment(&sb, line.Text, &segments)
	}
	if segments == 0 {
		return "", 0, ErrUnrecognizedStructure
	}
	return sb.String(), segments, nil
}

func extractJSON3(raw []byte) (string, int, error) {
	var body json3Body
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Events) == 0 {
		return "", 0, ErrUnrecognizedStructure
	}
	var sb strings.Builder
	segments := 0
	for _, ev := range body.Events {
		var seg strings.Builder
		for _, s := range ev.Segs {
			seg.WriteString(s.UTF8)
		}
		appendSegment(&sb, seg.String(), &segments)
	}
	if segments == 0 {
		return "", 0, ErrUnrecognizedStructure
	}
	return sb.String(), segments, nil
}

func extractRenderer(raw []byte) (string, int, error) {
	var body rendererBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", 0, ErrUnrecognizedStructure
	}
	var sb strings.Builder
	segments := 0
	for _, action := range body.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		segs := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, seg := range segs {
			if seg.TranscriptSegmentRenderer == nil {
				continue
			}
			var run strings.Builder
			for _, r := range seg.TranscriptSegmentRenderer.Snippet.Runs {
				run.WriteString(r.Text)
			}
			appendSegment(&sb, run.String(), &segments)
		}
	}
	if segments == 0 {
		return "", 0, ErrUnrecognizedStructure
	}
	return sb.String(), segments, nil
}

// appendSegment cleans one caption segment and appends it space-separated.
func appendSegment(sb *strings.Builder, text string, segments *int) {
	cleaned := strings.TrimSpace(html.UnescapeString(text))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteString(cleaned)
	*segments++
}
