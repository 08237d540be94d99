package ports

import (
	"context"

	"github.com/bnema/tasktracker-cli/internal/domain"
)

// SessionRepository persists the single process session across restarts.
// Load returns domain.ErrSessionNotFound when nothing has been saved.
type SessionRepository interface {
	Load(ctx context.Context) (domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context) error
}
