// Package store defines the persistence contract consumed by the session
// engine. Backends live in subpackages; the engine never touches a database
// directly.
package store

import (
	"context"
	"errors"

	"github.com/pouncehq/onboard/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: session not found")

// ErrConflict is returned when a write races a conflicting write, e.g. a
// second profile record for the same session.
var ErrConflict = errors.New("store: conflicting write")

// Store is the durable home of sessions, messages, and completed profiles.
//
// RecordExchange exists because one conversation step mutates the session and
// appends messages (and, on completion, creates the profile record) as a
// single unit: a partially recorded exchange would desynchronize the profile
// from the transcript.
type Store interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSession(ctx context.Context, sess *models.Session) error

	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error)

	CreateProfileRecord(ctx context.Context, rec *models.ProfileRecord) error

	// RecordExchange atomically updates the session, appends msgs in order,
	// and creates rec when non-nil.
	RecordExchange(ctx context.Context, sess *models.Session, msgs []*models.Message, rec *models.ProfileRecord) error

	Close() error
}
