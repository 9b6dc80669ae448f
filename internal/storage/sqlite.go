package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for quota state, the run ledger,
// and per-channel bookkeeping. The vectors table created by migrations is
// consumed by the vectorindex package via DB().
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ragmaker.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying connection for the vector backend.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Quota state ---

// SaveQuotaState persists the single quota row, overwriting any previous state.
func (s *Store) SaveQuotaState(q QuotaState) error {
	_, err := s.db.Exec(`
		INSERT INTO quota_state (id, units_used, units_limit, reset_at, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			units_used = excluded.units_used,
			units_limit = excluded.units_limit,
			reset_at = excluded.reset_at,
			updated_at = excluded.updated_at`,
		q.UnitsUsed, q.UnitsLimit,
		q.ResetAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LoadQuotaState returns the persisted quota row, or ErrNotFound on first run.
func (s *Store) LoadQuotaState() (QuotaState, error) {
	var q QuotaState
	var resetAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT units_used, units_limit, reset_at, updated_at FROM quota_state WHERE id = 1`,
	).Scan(&q.UnitsUsed, &q.UnitsLimit, &resetAt, &updatedAt)
	if err == sql.ErrNoRows {
		return QuotaState{}, ErrNotFound
	}
	if err != nil {
		return QuotaState{}, err
	}
	if q.ResetAt, err = time.Parse(time.RFC3339, resetAt); err != nil {
		return QuotaState{}, fmt.Errorf("parsing reset_at: %w", err)
	}
	if q.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return QuotaState{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return q, nil
}

// --- Ledger ---

// AppendLedgerEntry writes one run record. Entries are never updated or deleted.
func (s *Store) AppendLedgerEntry(e LedgerEntry) error {
	successJSON, err := json.Marshal(e.SuccessVideos)
	if err != nil {
		return fmt.Errorf("marshalling success videos: %w", err)
	}
	failedJSON, err := json.Marshal(e.FailedVideos)
	if err != nil {
		return fmt.Errorf("marshalling failed videos: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO ledger_entries (id, channel_id, started_at, ended_at, status, message, success_videos, failed_videos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChannelID,
		e.StartedAt.UTC().Format(time.RFC3339), e.EndedAt.UTC().Format(time.RFC3339),
		e.Status, e.Message, string(successJSON), string(failedJSON),
	)
	return err
}

// ListLedgerEntries returns the most recent entries, newest first. An empty
// channelID returns entries for all channels.
func (s *Store) ListLedgerEntries(channelID string, limit int) ([]LedgerEntry, error) {
	query := `SELECT id, channel_id, started_at, ended_at, status, message, success_videos, failed_videos
		FROM ledger_entries`
	args := []interface{}{}
	if channelID != "" {
		query += " WHERE channel_id = ?"
		args = append(args, channelID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var startedAt, endedAt, successJSON, failedJSON string
		if err := rows.Scan(&e.ID, &e.ChannelID, &startedAt, &endedAt, &e.Status, &e.Message, &successJSON, &failedJSON); err != nil {
			return nil, err
		}
		if e.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if e.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		if err := json.Unmarshal([]byte(successJSON), &e.SuccessVideos); err != nil {
			return nil, fmt.Errorf("parsing success videos for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &e.FailedVideos); err != nil {
			return nil, fmt.Errorf("parsing failed videos for %s: %w", e.ID, err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- Channel bookkeeping ---

// UpsertChannel creates or refreshes the bookkeeping row for a channel.
func (s *Store) UpsertChannel(c Channel) error {
	_, err := s.db.Exec(`
		INSERT INTO channels (id, name, video_count, chunk_count, last_indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			video_count = excluded.video_count,
			chunk_count = excluded.chunk_count,
			last_indexed_at = excluded.last_indexed_at`,
		c.ID, c.Name, c.VideoCount, c.ChunkCount,
		c.LastIndexedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetChannel returns the bookkeeping row for a channel.
func (s *Store) GetChannel(id string) (Channel, error) {
	var c Channel
	var lastIndexedAt string
	err := s.db.QueryRow(`
		SELECT id, name, video_count, chunk_count, last_indexed_at FROM channels WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.VideoCount, &c.ChunkCount, &lastIndexedAt)
	if err == sql.ErrNoRows {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, err
	}
	if lastIndexedAt != "" {
		if c.LastIndexedAt, err = time.Parse(time.RFC3339, lastIndexedAt); err != nil {
			return Channel{}, fmt.Errorf("parsing last_indexed_at: %w", err)
		}
	}
	return c, nil
}

// ListChannels returns all bookkeeping rows, most recently indexed first.
func (s *Store) ListChannels() ([]Channel, error) {
	rows, err := s.db.Query(`
		SELECT id, name, video_count, chunk_count, last_indexed_at
		FROM channels ORDER BY last_indexed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Channel
	for rows.Next() {
		var c Channel
		var lastIndexedAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.VideoCount, &c.ChunkCount, &lastIndexedAt); err != nil {
			return nil, err
		}
		if lastIndexedAt != "" {
			if c.LastIndexedAt, err = time.Parse(time.RFC3339, lastIndexedAt); err != nil {
				return nil, fmt.Errorf("parsing last_indexed_at for %s: %w", c.ID, err)
			}
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// MarkVideosIndexed records successfully indexed videos so future runs can
// skip them, and refreshes the channel's aggregate counts in one transaction.
func (s *Store) MarkVideosIndexed(channelID, channelName string, videos []VideoSuccess) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, v := range videos {
		if _, err := tx.Exec(`
			INSERT INTO indexed_videos (channel_id, video_id, chunk_count, indexed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(channel_id, video_id) DO UPDATE SET
				chunk_count = excluded.chunk_count,
				indexed_at = excluded.indexed_at`,
			channelID, v.VideoID, v.ChunksCreated, now,
		); err != nil {
			return fmt.Errorf("recording video %s: %w", v.VideoID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO channels (id, name, video_count, chunk_count, last_indexed_at)
		VALUES (?, ?, 0, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE channels.name END,
			last_indexed_at = excluded.last_indexed_at`,
		channelID, channelName, now,
	); err != nil {
		return fmt.Errorf("upserting channel %s: %w", channelID, err)
	}

	if _, err := tx.Exec(`
		UPDATE channels SET
			video_count = (SELECT COUNT(*) FROM indexed_videos WHERE channel_id = ?),
			chunk_count = (SELECT COALESCE(SUM(chunk_count), 0) FROM indexed_videos WHERE channel_id = ?)
		WHERE id = ?`,
		channelID, channelID, channelID,
	); err != nil {
		return fmt.Errorf("updating channel counts: %w", err)
	}

	return tx.Commit()
}

// IndexedVideoIDs returns the set of video IDs already indexed for a channel.
func (s *Store) IndexedVideoIDs(channelID string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT video_id FROM indexed_videos WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// ClearBookkeeping wipes channel and indexed-video records. Used alongside a
// vector index reset; the ledger is append-only and survives.
func (s *Store) ClearBookkeeping() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM indexed_videos`); err != nil {
		return fmt.Errorf("clearing indexed videos: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM channels`); err != nil {
		return fmt.Errorf("clearing channels: %w", err)
	}
	return tx.Commit()
}
