package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/Nekit-S/drowsiness-detection/internal/database"
)

// SessionTxRunner runs fn against a session repository bound to a single
// transaction, so a multi-step session transition commits or rolls back as one.
type SessionTxRunner interface {
	RunInTx(ctx context.Context, fn func(sessions SessionRepository) error) error
}

type sessionTxRunner struct {
	db       *database.DB
	sessions SessionRepository
}

func NewSessionTxRunner(db *database.DB, sessions SessionRepository) SessionTxRunner {
	return &sessionTxRunner{db: db, sessions: sessions}
}

func (r *sessionTxRunner) RunInTx(ctx context.Context, fn func(sessions SessionRepository) error) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(r.sessions.WithTx(tx))
	})
}
