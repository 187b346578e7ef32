package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/goccy/go-json"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pouncehq/onboard/internal/store"
	"github.com/pouncehq/onboard/pkg/models"
)

// Store wraps the GORM connection.
type Store struct {
	db *gorm.DB
}

// Config holds PostgreSQL configuration.
type Config struct {
	DSN      string
	LogLevel logger.LogLevel // logger.Silent for production
}

// Open connects to PostgreSQL and runs migrations.
func Open(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_onboarding_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&sessionRow{}, &messageRow{}, &profileRecordRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions", "messages", "profile_records")
			},
		},
	})
	return m.Migrate()
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	row, err := toSessionRow(sess)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// GetSession retrieves a session by ID. Returns store.ErrNotFound when the
// session does not exist.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromSessionRow(&row)
}

// UpdateSession rewrites the mutable session columns.
func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	return updateSessionTx(s.db.WithContext(ctx), sess)
}

func updateSessionTx(tx *gorm.DB, sess *models.Session) error {
	row, err := toSessionRow(sess)
	if err != nil {
		return err
	}
	res := tx.Model(&sessionRow{}).Where("session_id = ?", sess.SessionID).
		Select("Status", "Profile", "MessageCount", "UpdatedAt", "CompletedAt").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendMessage inserts a conversation message.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	return appendMessageTx(s.db.WithContext(ctx), msg)
}

func appendMessageTx(tx *gorm.DB, msg *models.Message) error {
	row, err := toMessageRow(msg)
	if err != nil {
		return err
	}
	return tx.Create(row).Error
}

// ListMessages returns a session's messages in append order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	msgs := make([]*models.Message, 0, len(rows))
	for i := range rows {
		msg, err := fromMessageRow(&rows[i])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// CreateProfileRecord inserts the denormalized completed profile. A second
// record for the same session surfaces as store.ErrConflict.
func (s *Store) CreateProfileRecord(ctx context.Context, rec *models.ProfileRecord) error {
	return createProfileRecordTx(s.db.WithContext(ctx), rec)
}

func createProfileRecordTx(tx *gorm.DB, rec *models.ProfileRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	row := &profileRecordRow{
		RecordID:  rec.RecordID,
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		Fields:    string(fields),
		CreatedAt: rec.CreatedAt,
	}
	err = tx.Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrConflict
	}
	return err
}

// RecordExchange applies one conversation step atomically.
func (s *Store) RecordExchange(ctx context.Context, sess *models.Session, msgs []*models.Message, rec *models.ProfileRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateSessionTx(tx, sess); err != nil {
			return err
		}
		for _, msg := range msgs {
			if err := appendMessageTx(tx, msg); err != nil {
				return err
			}
		}
		if rec != nil {
			return createProfileRecordTx(tx, rec)
		}
		return nil
	})
}

func toSessionRow(sess *models.Session) (*sessionRow, error) {
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	return &sessionRow{
		SessionID:    sess.SessionID,
		UserID:       sess.UserID,
		Status:       string(sess.Status),
		Profile:      string(profile),
		MessageCount: sess.MessageCount,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		CompletedAt:  sess.CompletedAt,
	}, nil
}

func fromSessionRow(row *sessionRow) (*models.Session, error) {
	sess := &models.Session{
		SessionID:    row.SessionID,
		UserID:       row.UserID,
		Status:       models.SessionStatus(row.Status),
		MessageCount: row.MessageCount,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		CompletedAt:  row.CompletedAt,
	}
	if err := json.Unmarshal([]byte(row.Profile), &sess.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if sess.Profile == nil {
		sess.Profile = models.Profile{}
	}
	return sess, nil
}

func toMessageRow(msg *models.Message) (*messageRow, error) {
	row := &messageRow{
		MessageID: msg.MessageID,
		SessionID: msg.SessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if len(msg.ExtractedFields) > 0 {
		b, err := json.Marshal(msg.ExtractedFields)
		if err != nil {
			return nil, fmt.Errorf("marshal extracted_fields: %w", err)
		}
		str := string(b)
		row.ExtractedFields = &str
	}
	if msg.ProviderMeta != nil {
		b, err := json.Marshal(msg.ProviderMeta)
		if err != nil {
			return nil, fmt.Errorf("marshal provider_meta: %w", err)
		}
		str := string(b)
		row.ProviderMeta = &str
	}
	return row, nil
}

func fromMessageRow(row *messageRow) (*models.Message, error) {
	msg := &models.Message{
		MessageID: row.MessageID,
		SessionID: row.SessionID,
		Role:      models.MessageRole(row.Role),
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}
	if row.ExtractedFields != nil {
		if err := json.Unmarshal([]byte(*row.ExtractedFields), &msg.ExtractedFields); err != nil {
			return nil, fmt.Errorf("unmarshal extracted_fields: %w", err)
		}
	}
	if row.ProviderMeta != nil {
		msg.ProviderMeta = &models.ProviderMetadata{}
		if err := json.Unmarshal([]byte(*row.ProviderMeta), msg.ProviderMeta); err != nil {
			return nil, fmt.Errorf("unmarshal provider_meta: %w", err)
		}
	}
	return msg, nil
}
