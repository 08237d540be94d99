// Package sqlite provides a SQLite-backed session repository. The single
// session row holds both identity and tokens; the database file is kept
// readable by the owner only.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

const (
	dbFileMode = 0o600
	dbDirMode  = 0o700
	sessionRow = 1
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	user_id TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	is_authenticated INTEGER NOT NULL DEFAULT 0,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	saved_at TEXT NOT NULL
);
`

const upsertSQL = `
INSERT INTO session (id, user_id, username, email, is_authenticated, access_token, refresh_token, saved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	username = excluded.username,
	email = excluded.email,
	is_authenticated = excluded.is_authenticated,
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	saved_at = excluded.saved_at
`

// Repository implements ports.SessionRepository on a SQLite database.
type Repository struct {
	db    *sql.DB
	clock ports.Clock
}

var _ ports.SessionRepository = (*Repository)(nil)

// NewRepository opens (creating if needed) the session database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite session: db path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dbDirMode); err != nil {
		return nil, fmt.Errorf("sqlite session: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite session: open db: %w", err)
	}

	repo := &Repository{db: db, clock: ports.SystemClock{}}
	if err := repo.init(dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	return repo, nil
}

// Close closes the underlying SQLite connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) init(dbPath string) error {
	if _, err := r.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("sqlite session: set busy timeout: %w", err)
	}

	if _, err := r.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite session: create schema: %w", err)
	}

	if err := os.Chmod(dbPath, dbFileMode); err != nil {
		return fmt.Errorf("sqlite session: chmod db: %w", err)
	}

	return nil
}

func (r *Repository) Load(ctx context.Context) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, username, email, is_authenticated, access_token, refresh_token FROM session WHERE id = ?`,
		sessionRow,
	)

	var (
		session       domain.Session
		userID        string
		authenticated int
	)
	err := row.Scan(&userID, &session.User.Username, &session.User.Email, &authenticated, &session.AccessToken, &session.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlite session: load: %w", err)
	}

	session.User.ID = domain.UserID(userID)
	session.IsAuthenticated = authenticated != 0

	return session, nil
}

func (r *Repository) Save(ctx context.Context, session domain.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("sqlite session: %w", err)
	}

	authenticated := 0
	if session.IsAuthenticated {
		authenticated = 1
	}

	_, err := r.db.ExecContext(ctx, upsertSQL,
		sessionRow,
		string(session.User.ID),
		session.User.Username,
		session.User.Email,
		authenticated,
		session.AccessToken,
		session.RefreshToken,
		r.clock.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite session: save: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, sessionRow)
	if err != nil {
		return fmt.Errorf("sqlite session: delete: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite session: delete: %w", err)
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}

	return nil
}
