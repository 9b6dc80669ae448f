package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// QuotaState is the persisted daily API budget. UnitsUsed never exceeds
// UnitsLimit between resets; ResetAt is the next wall-clock reset boundary.
type QuotaState struct {
	UnitsUsed  int
	UnitsLimit int
	ResetAt    time.Time
	UpdatedAt  time.Time
}

// LedgerEntry is one append-only record of a completed or aborted indexing run.
type LedgerEntry struct {
	ID            string
	ChannelID     string
	StartedAt     time.Time
	EndedAt       time.Time
	Status        string // "completed", "failed", "cancelled"
	Message       string
	SuccessVideos []VideoSuccess
	FailedVideos  []VideoFailure
}

// VideoSuccess records a video that produced indexed chunks.
type VideoSuccess struct {
	VideoID       string `json:"video_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// VideoFailure records a video that could not be indexed and why.
type VideoFailure struct {
	VideoID        string `json:"video_id"`
	ReasonCategory string `json:"reason_category"`
	Details        string `json:"details"`
}

// Channel is per-channel bookkeeping updated after each run.
type Channel struct {
	ID            string
	Name          string
	VideoCount    int
	ChunkCount    int
	LastIndexedAt time.Time
}
