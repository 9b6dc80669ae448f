package indexer

import "time"

// State is one phase of the indexing run state machine.
type State string

const (
	StateIdle             State = "idle"
	StateStarting         State = "starting"
	StateFetchingCatalog  State = "fetching_catalog"
	StateProcessingVideos State = "processing_videos"
	StateUpserting        State = "upserting"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress is the live view of the current (or most recent) run. Single
// writer: the orchestrator's run goroutine. Reset at run start and not
// persisted beyond the ledger.
type Progress struct {
	RunID             string    `json:"run_id"`
	State             State     `json:"state"`
	IsRunning         bool      `json:"is_running"`
	Cancelled         bool      `json:"cancelled"`
	ChannelID         string    `json:"channel_id"`
	ChannelName       string    `json:"channel_name"`
	TotalVideos       int       `json:"total_videos"`
	ProcessedVideos   int       `json:"processed_videos"`
	CurrentVideoTitle string    `json:"current_video_title"`
	Message           string    `json:"message"`
	StartedAt         time.Time `json:"started_at"`
}

// RunOptions controls filtering for one indexing run.
type RunOptions struct {
	// ExcludeShorts drops videos under the short threshold. Videos whose
	// duration cannot be parsed are kept (fail-open).
	ExcludeShorts bool
	// MaxVideos caps the filtered list; 0 means no cap.
	MaxVideos int
}
