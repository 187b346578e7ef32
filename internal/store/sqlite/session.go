package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/pouncehq/onboard/internal/store"
	"github.com/pouncehq/onboard/pkg/models"
)

const timeLayout = time.RFC3339Nano

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	profileJSON, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	const query = `
		INSERT INTO sessions
		(session_id, user_id, status, profile, message_count, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.SessionID, sess.UserID, string(sess.Status), string(profileJSON),
		sess.MessageCount,
		sess.CreatedAt.UTC().Format(timeLayout),
		sess.UpdatedAt.UTC().Format(timeLayout),
		nullTime(sess.CompletedAt),
	)
	return err
}

// GetSession retrieves a session by ID. Returns store.ErrNotFound when the
// session does not exist.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	const query = `
		SELECT session_id, user_id, status, profile, message_count, created_at, updated_at, completed_at
		FROM sessions
		WHERE session_id = ?
		LIMIT 1
	`
	return scanSession(s.db.QueryRowContext(ctx, query, sessionID))
}

// UpdateSession rewrites the mutable session columns.
func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	return updateSessionTx(ctx, s.db, sess)
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateSessionTx(ctx context.Context, db execer, sess *models.Session) error {
	profileJSON, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	const query = `
		UPDATE sessions
		SET status = ?, profile = ?, message_count = ?, updated_at = ?, completed_at = ?
		WHERE session_id = ?
	`
	res, err := db.ExecContext(ctx, query,
		string(sess.Status), string(profileJSON), sess.MessageCount,
		sess.UpdatedAt.UTC().Format(timeLayout),
		nullTime(sess.CompletedAt),
		sess.SessionID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess        models.Session
		status      string
		profileJSON string
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(
		&sess.SessionID, &sess.UserID, &status, &profileJSON,
		&sess.MessageCount, &createdAt, &updatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.Status = models.SessionStatus(status)
	if err := json.Unmarshal([]byte(profileJSON), &sess.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if sess.Profile == nil {
		sess.Profile = models.Profile{}
	}
	if sess.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		sess.CompletedAt = &t
	}
	return &sess, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
