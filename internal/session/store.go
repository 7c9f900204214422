package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/memloop/memloop/internal/db"
)

// ErrNotFound is returned when a session id does not resolve to a stored row.
var ErrNotFound = errors.New("session not found")

// Store provides read/write access to the session tables.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Conn exposes the underlying *sql.DB for low-level queries.
func (s *Store) Conn() *sql.DB {
	return s.db.Conn()
}

// ---- Sessions ----

// InsertSession persists a new session row.
func (s *Store) InsertSession(sess Session) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO sessions (id, project_name, created_at, last_used, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectName, sess.CreatedAt.UnixNano(), sess.LastUsed.UnixNano(),
		string(sess.Status), marshalMeta(sess.Metadata),
	)
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

// GetSession returns the session row for the given id, or ErrNotFound.
func (s *Store) GetSession(id string) (Session, error) {
	var sess Session
	var createdAt, lastUsed int64
	var status, metadata string
	err := s.db.Conn().QueryRow(
		`SELECT id, project_name, created_at, last_used, status, metadata FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ProjectName, &createdAt, &lastUsed, &status, &metadata)
	if err == sql.ErrNoRows {
		return sess, ErrNotFound
	}
	if err != nil {
		return sess, fmt.Errorf("store: get session: %w", err)
	}
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.LastUsed = time.Unix(0, lastUsed)
	sess.Status = Status(status)
	sess.Metadata = unmarshalMeta(metadata)
	return sess, nil
}

// TouchSession updates a session's last_used timestamp.
func (s *Store) TouchSession(id string, t time.Time) error {
	res, err := s.db.Conn().Exec(`UPDATE sessions SET last_used = ? WHERE id = ?`, t.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("store: touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSessionStatus updates a session's status and last_used timestamp.
func (s *Store) SetSessionStatus(id string, status Status, t time.Time) error {
	res, err := s.db.Conn().Exec(
		`UPDATE sessions SET status = ?, last_used = ? WHERE id = ?`,
		string(status), t.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("store: set session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestActiveSession returns the id of the most recently used active session
// for a project, or ErrNotFound. Equal last_used timestamps resolve to the
// later insert.
func (s *Store) LatestActiveSession(projectName string) (string, error) {
	var id string
	err := s.db.Conn().QueryRow(`
		SELECT id FROM sessions
		WHERE project_name = ? AND status = ?
		ORDER BY last_used DESC, rowid DESC
		LIMIT 1`,
		projectName, string(StatusActive),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: latest active session: %w", err)
	}
	return id, nil
}

// ListProjectSessions returns all sessions for a project, most recently used first.
func (s *Store) ListProjectSessions(projectName string) ([]SessionInfo, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, created_at, last_used, status FROM sessions
		WHERE project_name = ?
		ORDER BY last_used DESC, rowid DESC`,
		projectName,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list project sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var createdAt, lastUsed int64
		var status string
		if err := rows.Scan(&info.ID, &createdAt, &lastUsed, &status); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(0, createdAt)
		info.LastUsed = time.Unix(0, lastUsed)
		info.Status = Status(status)
		out = append(out, info)
	}
	return out, rows.Err()
}

// ArchiveIdleBefore marks active sessions idle since before cutoff as archived.
// Returns the number of sessions archived.
func (s *Store) ArchiveIdleBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Conn().Exec(
		`UPDATE sessions SET status = ? WHERE last_used < ? AND status = ?`,
		string(StatusArchived), cutoff.UnixNano(), string(StatusActive),
	)
	if err != nil {
		return 0, fmt.Errorf("store: archive idle sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteArchivedBefore permanently deletes archived sessions idle since before
// cutoff. Messages, key moments and compressed periods cascade.
// Returns the number of sessions deleted.
func (s *Store) DeleteArchivedBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Conn().Exec(
		`DELETE FROM sessions WHERE last_used < ? AND status = ?`,
		cutoff.UnixNano(), string(StatusArchived),
	)
	if err != nil {
		return 0, fmt.Errorf("store: delete archived sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats returns session counts by status, distinct projects and the total.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}

	rows, err := s.db.Conn().Query(`SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		stats.ByStatus[Status(status)] = n
		stats.TotalSessions += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = s.db.Conn().QueryRow(`SELECT COUNT(DISTINCT project_name) FROM sessions`).Scan(&stats.UniqueProjects)
	if err != nil {
		return stats, fmt.Errorf("store: stats projects: %w", err)
	}
	return stats, nil
}

// ---- Messages ----

// InsertMessage appends a message to a session.
func (s *Store) InsertMessage(m Message) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO messages (id, session_id, created_at, role, content, actions, files, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.CreatedAt.UnixNano(), m.Role, m.Content,
		marshalStrings(m.Actions), marshalStrings(m.FilesInvolved), marshalMeta(m.Metadata),
	)
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// DeleteMessage removes a single message by id. Used to roll back an insert
// when a later step of the same operation fails.
func (s *Store) DeleteMessage(id string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete message: %w", err)
	}
	return nil
}

// CountMessages returns the number of messages currently held for a session.
func (s *Store) CountMessages(sessionID string) (int, error) {
	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// ListMessages returns all messages for a session, oldest first. Ordering is
// (created_at, seq): stable under equal timestamps.
func (s *Store) ListMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, session_id, created_at, role, content, actions, files, metadata
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the n most recent messages, oldest first.
func (s *Store) RecentMessages(sessionID string, n int) ([]Message, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, session_id, created_at, role, content, actions, files, metadata
		FROM (
			SELECT * FROM messages WHERE session_id = ?
			ORDER BY created_at DESC, seq DESC LIMIT ?
		)
		ORDER BY created_at ASC, seq ASC`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// OldestMessages returns the n oldest messages for a session, oldest first.
func (s *Store) OldestMessages(sessionID string, n int) ([]Message, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, session_id, created_at, role, content, actions, files, metadata
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("store: oldest messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// EvictAndRecord deletes the given messages and inserts the compressed period
// that replaces them, atomically.
func (s *Store) EvictAndRecord(messageIDs []string, period CompressedPeriod) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("store: begin eviction: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.Prepare(`DELETE FROM messages WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare eviction: %w", err)
	}
	defer del.Close()
	for _, id := range messageIDs {
		if _, err := del.Exec(id); err != nil {
			return fmt.Errorf("store: evict message: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO compressed_periods (id, session_id, start_time, end_time, summary, achievements, files, message_count, key_moment_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		period.ID, period.SessionID, period.StartTime.UnixNano(), period.EndTime.UnixNano(),
		period.Summary, marshalStrings(period.KeyAchievements), marshalStrings(period.FilesInvolved),
		period.MessageCount, marshalStrings(period.KeyMomentIDs),
	)
	if err != nil {
		return fmt.Errorf("store: record compressed period: %w", err)
	}

	return tx.Commit()
}

// ---- Key moments ----

// InsertKeyMoment persists a new key moment.
func (s *Store) InsertKeyMoment(m KeyMoment) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO key_moments (id, session_id, created_at, moment_type, title, summary, importance, files, context, related_messages, file_snapshot_id, code_snippet_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.CreatedAt.UnixNano(), string(m.Type), m.Title, m.Summary,
		m.Importance, marshalStrings(m.FilesInvolved), m.Context, marshalStrings(m.RelatedMessages),
		nullable(m.FileSnapshotID), nullable(m.CodeSnippetID),
	)
	if err != nil {
		return fmt.Errorf("store: insert key moment: %w", err)
	}
	return nil
}

// ListKeyMoments returns all key moments for a session, ordered by
// (importance DESC, created_at DESC).
func (s *Store) ListKeyMoments(sessionID string) ([]KeyMoment, error) {
	return s.queryKeyMoments(sessionID, -1)
}

// TopKeyMoments returns the n highest-ranked key moments for a session.
func (s *Store) TopKeyMoments(sessionID string, n int) ([]KeyMoment, error) {
	return s.queryKeyMoments(sessionID, n)
}

// CountKeyMoments returns the number of key moments held for a session.
func (s *Store) CountKeyMoments(sessionID string) (int, error) {
	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM key_moments WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

func (s *Store) queryKeyMoments(sessionID string, limit int) ([]KeyMoment, error) {
	q := `
		SELECT id, session_id, created_at, moment_type, title, summary, importance, files, context, related_messages,
		       COALESCE(file_snapshot_id, ''), COALESCE(code_snippet_id, '')
		FROM key_moments WHERE session_id = ?
		ORDER BY importance DESC, created_at DESC, rowid DESC`
	args := []any{sessionID}
	if limit >= 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list key moments: %w", err)
	}
	defer rows.Close()

	var out []KeyMoment
	for rows.Next() {
		var m KeyMoment
		var createdAt int64
		var momentType, files, related string
		if err := rows.Scan(&m.ID, &m.SessionID, &createdAt, &momentType, &m.Title, &m.Summary,
			&m.Importance, &files, &m.Context, &related, &m.FileSnapshotID, &m.CodeSnippetID); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, createdAt)
		m.Type = MomentType(momentType)
		m.FilesInvolved = unmarshalStrings(files)
		m.RelatedMessages = unmarshalStrings(related)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- Compressed periods ----

// ListCompressedPeriods returns all compressed periods for a session, ordered
// by start_time ascending.
func (s *Store) ListCompressedPeriods(sessionID string) ([]CompressedPeriod, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, session_id, start_time, end_time, summary, achievements, files, message_count, key_moment_ids
		FROM compressed_periods WHERE session_id = ?
		ORDER BY start_time ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list compressed periods: %w", err)
	}
	defer rows.Close()

	var out []CompressedPeriod
	for rows.Next() {
		var p CompressedPeriod
		var startTime, endTime int64
		var achievements, files, momentIDs string
		if err := rows.Scan(&p.ID, &p.SessionID, &startTime, &endTime, &p.Summary,
			&achievements, &files, &p.MessageCount, &momentIDs); err != nil {
			return nil, err
		}
		p.StartTime = time.Unix(0, startTime)
		p.EndTime = time.Unix(0, endTime)
		p.KeyAchievements = unmarshalStrings(achievements)
		p.FilesInvolved = unmarshalStrings(files)
		p.KeyMomentIDs = unmarshalStrings(momentIDs)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountCompressedPeriods returns the number of compressed periods for a session.
func (s *Store) CountCompressedPeriods(sessionID string) (int, error) {
	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM compressed_periods WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// ---- Helpers ----

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var createdAt int64
		var actions, files, metadata string
		if err := rows.Scan(&m.ID, &m.SessionID, &createdAt, &m.Role, &m.Content,
			&actions, &files, &metadata); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, createdAt)
		m.Actions = unmarshalStrings(actions)
		m.FilesInvolved = unmarshalStrings(files)
		m.Metadata = unmarshalMeta(metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}

func marshalStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func marshalMeta(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMeta(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	out := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
