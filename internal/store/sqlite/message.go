package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/pouncehq/onboard/pkg/models"
)

// AppendMessage inserts a conversation message. Messages are append-only;
// there is no update or delete path.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	return appendMessageTx(ctx, s.db, msg)
}

func appendMessageTx(ctx context.Context, db execer, msg *models.Message) error {
	extracted, err := nullJSON(msg.ExtractedFields)
	if err != nil {
		return fmt.Errorf("marshal extracted_fields: %w", err)
	}
	meta, err := nullJSONAny(msg.ProviderMeta)
	if err != nil {
		return fmt.Errorf("marshal provider_meta: %w", err)
	}

	const query = `
		INSERT INTO messages
		(message_id, session_id, role, content, created_at, extracted_fields, provider_meta)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		msg.MessageID, msg.SessionID, string(msg.Role), msg.Content,
		msg.CreatedAt.UTC().Format(timeLayout), extracted, meta,
	)
	return err
}

// ListMessages returns a session's messages in append order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	const query = `
		SELECT message_id, session_id, role, content, created_at, extracted_fields, provider_meta
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var (
			msg       models.Message
			role      string
			createdAt string
			extracted sql.NullString
			meta      sql.NullString
		)
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &role, &msg.Content, &createdAt, &extracted, &meta); err != nil {
			return nil, err
		}
		msg.Role = models.MessageRole(role)
		if msg.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if extracted.Valid {
			if err := json.Unmarshal([]byte(extracted.String), &msg.ExtractedFields); err != nil {
				return nil, fmt.Errorf("unmarshal extracted_fields: %w", err)
			}
		}
		if meta.Valid {
			msg.ProviderMeta = &models.ProviderMetadata{}
			if err := json.Unmarshal([]byte(meta.String), msg.ProviderMeta); err != nil {
				return nil, fmt.Errorf("unmarshal provider_meta: %w", err)
			}
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func nullJSON(p models.Profile) (sql.NullString, error) {
	if len(p) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullJSONAny(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if meta, ok := v.(*models.ProviderMetadata); ok && meta == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
