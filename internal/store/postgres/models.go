// Package postgres implements the store contract on PostgreSQL via GORM.
// Schema evolution is handled by gormigrate.
package postgres

import (
	"time"

	"gorm.io/gorm"
)

// sessionRow mirrors models.Session. Profile is kept as a jsonb column.
type sessionRow struct {
	SessionID    string `gorm:"primaryKey;type:uuid"`
	UserID       string `gorm:"index;not null"`
	Status       string `gorm:"type:text;not null;check:status IN ('in_progress', 'completed', 'abandoned')"`
	Profile      string `gorm:"type:jsonb;not null;default:'{}'"`
	MessageCount int    `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func (sessionRow) TableName() string { return "sessions" }

// messageRow mirrors models.Message. Seq gives the append order within a
// session independent of clock resolution.
type messageRow struct {
	Seq             int64  `gorm:"primaryKey;autoIncrement"`
	MessageID       string `gorm:"uniqueIndex;type:uuid;not null"`
	SessionID       string `gorm:"index:idx_messages_session;type:uuid;not null"`
	Role            string `gorm:"type:text;not null;check:role IN ('user', 'assistant')"`
	Content         string `gorm:"type:text;not null"`
	CreatedAt       time.Time
	ExtractedFields *string `gorm:"type:jsonb"`
	ProviderMeta    *string `gorm:"type:jsonb"`
}

func (messageRow) TableName() string { return "messages" }

// profileRecordRow mirrors models.ProfileRecord. The unique index on
// session_id enforces exactly-once materialization.
type profileRecordRow struct {
	RecordID  string `gorm:"primaryKey;type:uuid"`
	SessionID string `gorm:"uniqueIndex;type:uuid;not null"`
	UserID    string `gorm:"index;not null"`
	Fields    string `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (profileRecordRow) TableName() string { return "profile_records" }

// BeforeCreate keeps created_at stable when the caller supplied one.
func (r *profileRecordRow) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}
