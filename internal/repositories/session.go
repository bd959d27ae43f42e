package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

const sessionColumns = `id, sequence, primary_label, secondary_label, queue_depth, bytes_done, bytes_total,
	end_reason, started_at, ended_at`

// SessionRepository implements [models.Repository] for [models.Session] and records the coordinator's
// Active periods for runtime budget accounting.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session. A session without an ID gets a generated one.
func (r *SessionRepository) Create(s *models.Session) error {
	sequence, err := NextSequence(r.db, "sessions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if s.ID() == "" {
		s.SetID(shared.GenerateID())
	}
	s.SetSequence(sequence)

	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sessions (id, sequence, primary_label, secondary_label, queue_depth, bytes_done, bytes_total,
			end_reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, s.ID(), sequence, s.Label.Primary, s.Label.Secondary, s.QueueDepth,
		s.Progress.Done, s.Progress.Total, string(s.EndReason), s.StartedAt.UTC(), utcPtr(s.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	row := r.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// Update writes the mutable fields of a session.
func (r *SessionRepository) Update(s *models.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE sessions
		SET primary_label = ?, secondary_label = ?, queue_depth = ?, bytes_done = ?, bytes_total = ?,
			end_reason = ?, ended_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, s.Label.Primary, s.Label.Secondary, s.QueueDepth, s.Progress.Done,
		s.Progress.Total, string(s.EndReason), utcPtr(s.EndedAt), s.ID())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return expectRow(result, s.ID())
}

// Delete removes a session and, through the foreign key, its items.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectRow(result, id)
}

// List retrieves sessions newest first. Supported criteria: "since" (time.Time), "reason" (models.EndReason or
// string), "open" (bool, only unfinished sessions) and "limit" (int).
func (r *SessionRepository) List(criteria map[string]any) ([]*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1 = 1"
	args := []any{}

	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, since.UTC())
	}
	switch reason := criteria["reason"].(type) {
	case models.EndReason:
		query += " AND end_reason = ?"
		args = append(args, string(reason))
	case string:
		if reason != "" {
			query += " AND end_reason = ?"
			args = append(args, reason)
		}
	}
	if open, ok := criteria["open"].(bool); ok && open {
		query += " AND ended_at IS NULL"
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return sessions, nil
}

// StartSession records the start of an Active period.
func (r *SessionRepository) StartSession(s *models.Session) error {
	return r.Create(s)
}

// FinishSession closes a session with its end time, reason and final progress.
func (r *SessionRepository) FinishSession(id string, endedAt time.Time, reason models.EndReason, progress models.Progress) error {
	query := `
		UPDATE sessions
		SET ended_at = ?, end_reason = ?, bytes_done = ?, bytes_total = ?
		WHERE id = ? AND ended_at IS NULL
	`

	result, err := r.db.Exec(query, endedAt.UTC(), string(reason), progress.Done, progress.Total, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return expectRow(result, id)
}

// RuntimeSince sums the Active time that falls inside [since, now]. Unfinished sessions count up to now.
func (r *SessionRepository) RuntimeSince(since, now time.Time) (time.Duration, error) {
	rows, err := r.db.Query(
		"SELECT started_at, ended_at FROM sessions WHERE ended_at IS NULL OR ended_at >= ?",
		since.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query runtime: %w", err)
	}
	defer rows.Close()

	var total time.Duration
	for rows.Next() {
		var (
			startedAt time.Time
			endedAt   sql.NullTime
		)
		if err := rows.Scan(&startedAt, &endedAt); err != nil {
			return 0, fmt.Errorf("failed to scan runtime: %w", err)
		}

		start, end := startedAt, now
		if endedAt.Valid {
			end = endedAt.Time
		}
		if start.Before(since) {
			start = since
		}
		if end.After(now) {
			end = now
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	return total, nil
}

// CloseStale ends sessions left open by a previous process as abandoned. The end time is capped at
// maxDuration after the start, since the wake lease could not have outlived it.
func (r *SessionRepository) CloseStale(now time.Time, maxDuration time.Duration) (int, error) {
	open, err := r.List(map[string]any{"open": true})
	if err != nil {
		return 0, err
	}

	for _, s := range open {
		end := now
		if maxDuration > 0 && s.StartedAt.Add(maxDuration).Before(end) {
			end = s.StartedAt.Add(maxDuration)
		}
		if err := r.FinishSession(s.ID(), end, models.EndAbandoned, s.Progress); err != nil {
			return 0, err
		}
	}
	return len(open), nil
}

// AddItem records the outcome of one queued download.
func (r *SessionRepository) AddItem(item *models.SessionItem) error {
	if item.ID == "" {
		item.ID = shared.GenerateID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO session_items (id, session_id, position, track_name, artist_name, isrc, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, item.ID, item.SessionID, item.Position, item.TrackName, item.ArtistName,
		item.ISRC, string(item.Status), item.Error, item.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session item: %w", err)
	}
	return nil
}

// Items lists the items of a session in queue order.
func (r *SessionRepository) Items(sessionID string) ([]models.SessionItem, error) {
	query := `
		SELECT id, session_id, position, track_name, artist_name, isrc, status, error, created_at
		FROM session_items
		WHERE session_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session items: %w", err)
	}
	defer rows.Close()

	var items []models.SessionItem
	for rows.Next() {
		var (
			item   models.SessionItem
			status string
		)
		err := rows.Scan(&item.ID, &item.SessionID, &item.Position, &item.TrackName, &item.ArtistName,
			&item.ISRC, &status, &item.Error, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session item: %w", err)
		}
		item.Status = models.ItemStatus(status)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		id        string
		sequence  int
		s         models.Session
		reason    string
		startedAt time.Time
		endedAt   sql.NullTime
	)

	err := row.Scan(&id, &sequence, &s.Label.Primary, &s.Label.Secondary, &s.QueueDepth,
		&s.Progress.Done, &s.Progress.Total, &reason, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	s.EndReason = models.EndReason(reason)
	s.StartedAt = startedAt
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return models.RestoreSession(id, sequence, s), nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	return nil
}
