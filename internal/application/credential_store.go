package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

// CredentialStore holds the single in-process session and mirrors it to a
// SessionRepository. Its generation counter advances whenever the identity
// behind the session changes (set, clear, restore), never on token rotation.
type CredentialStore struct {
	mu      sync.RWMutex
	repo    ports.SessionRepository
	session domain.Session
	present bool
	gen     uint64
}

func NewCredentialStore(repo ports.SessionRepository) *CredentialStore {
	return &CredentialStore{repo: repo}
}

// Load restores the persisted session. A missing session is not an error,
// and a persisted session that is not authenticated counts as missing: it is
// never placed in memory, so its tokens cannot be sent or renewed.
func (s *CredentialStore) Load(ctx context.Context) (domain.Session, bool, error) {
	session, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	if !session.Restorable() {
		return domain.Session{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = session
	s.present = true
	s.gen++

	return session, true, nil
}

func (s *CredentialStore) SetSession(ctx context.Context, session domain.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validate session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.session = session
	s.present = true
	s.gen++

	return nil
}

// Session returns a copy of the active session.
func (s *CredentialStore) Session() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session, s.present
}

// Snapshot returns the session together with its generation.
func (s *CredentialStore) Snapshot() (domain.Session, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session, s.gen, s.present
}

func (s *CredentialStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.gen
}

// SetTokens rotates the token pair, keeping identity and the authenticated
// flag. An empty refresh token in tokens keeps the stored one.
func (s *CredentialStore) SetTokens(ctx context.Context, tokens domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setTokensLocked(ctx, tokens)
}

// SetTokensIfCurrent applies tokens only while the session generation still
// equals gen; otherwise it returns domain.ErrSessionChanged and leaves the
// store untouched.
func (s *CredentialStore) SetTokensIfCurrent(ctx context.Context, gen uint64, tokens domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present || s.gen != gen {
		return domain.ErrSessionChanged
	}

	return s.setTokensLocked(ctx, tokens)
}

func (s *CredentialStore) setTokensLocked(ctx context.Context, tokens domain.TokenPair) error {
	if !s.present {
		return domain.ErrNotAuthenticated
	}
	if !tokens.HasRefreshToken() {
		tokens.RefreshToken = s.session.RefreshToken
	}

	// Memory holds the rotated pair even when persisting it fails.
	s.session = s.session.WithTokens(tokens)
	if err := s.repo.Save(ctx, s.session); err != nil {
		return fmt.Errorf("save rotated tokens: %w", err)
	}

	return nil
}

// SetUser replaces the profile part of the session. The user id must match.
func (s *CredentialStore) SetUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present {
		return domain.ErrNotAuthenticated
	}
	if user.ID != s.session.User.ID {
		return fmt.Errorf("set user %q: session belongs to %q", user.ID, s.session.User.ID)
	}

	updated := s.session
	updated.User = user
	if err := s.repo.Save(ctx, updated); err != nil {
		return fmt.Errorf("save session user: %w", err)
	}
	s.session = updated

	return nil
}

// Clear drops the in-memory session first so no caller can use it, then
// removes the persisted copy.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = domain.Session{}
	s.present = false
	s.gen++

	if err := s.repo.Delete(ctx); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}
