package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pouncehq/onboard/internal/store"
	"github.com/pouncehq/onboard/pkg/models"
)

// CreateProfileRecord inserts the denormalized completed profile. The unique
// constraint on session_id enforces exactly-once creation; a duplicate
// surfaces as store.ErrConflict.
func (s *Store) CreateProfileRecord(ctx context.Context, rec *models.ProfileRecord) error {
	return createProfileRecordTx(ctx, s.db, rec)
}

func createProfileRecordTx(ctx context.Context, db execer, rec *models.ProfileRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	const query = `
		INSERT INTO profile_records (record_id, session_id, user_id, fields, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		rec.RecordID, rec.SessionID, rec.UserID, string(fieldsJSON),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

// GetProfileRecord fetches the completed profile for a session, if one has
// been materialized. Backend-specific read; not part of the store contract.
func (s *Store) GetProfileRecord(ctx context.Context, sessionID string) (*models.ProfileRecord, error) {
	const query = `
		SELECT record_id, session_id, user_id, fields, created_at
		FROM profile_records
		WHERE session_id = ?
		LIMIT 1
	`
	var (
		rec        models.ProfileRecord
		fieldsJSON string
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&rec.RecordID, &rec.SessionID, &rec.UserID, &fieldsJSON, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &rec, nil
}

// RecordExchange applies one conversation step atomically: session update,
// message appends, and (on completion) the profile record.
func (s *Store) RecordExchange(ctx context.Context, sess *models.Session, msgs []*models.Message, rec *models.ProfileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateSessionTx(ctx, tx, sess); err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := appendMessageTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	if rec != nil {
		if err := createProfileRecordTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	// modernc/sqlite reports SQLITE_CONSTRAINT_UNIQUE in the error text.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
