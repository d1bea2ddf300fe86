package repository

import (
	"context"
	"errors"
	"time"

	"leadflow/internal/model"
)

var (
	// ErrVersionConflict means another writer updated the session first
	ErrVersionConflict = errors.New("session version conflict")
)

// FormRepo reads the question catalog. GetByID returns nil, nil when the form does not exist.
type FormRepo interface {
	GetByID(ctx context.Context, id string) (*model.Form, error)
	Upsert(ctx context.Context, form *model.Form) error
	List(ctx context.Context) ([]*model.Form, error)
}

// SessionRepo stores one record per session, updated in place until terminal.
// Update succeeds only when session.Version matches the stored version, and bumps it.
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	Update(ctx context.Context, session *model.Session) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Session, error)
}

// ResponseRepo stores one append-only record per answered question.
// Save is idempotent on (session id, question id).
type ResponseRepo interface {
	Save(ctx context.Context, response *model.Response) error
	GetBySessionID(ctx context.Context, sessionID string) ([]*model.Response, error)
}

// OutcomeRepo stores the completion record, written at most once per session
type OutcomeRepo interface {
	CreateOnce(ctx context.Context, outcome *model.Outcome) (bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Outcome, error)
}

// Store bundles the repositories of one backend
type Store struct {
	Forms     FormRepo
	Sessions  SessionRepo
	Responses ResponseRepo
	Outcomes  OutcomeRepo
	Close     func(ctx context.Context) error
}
