package toml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

const (
	sessionPathKey  = "session.path"
	sessionFileMode = 0o600
	sessionDirMode  = 0o700
	tempFilePattern = ".session-*.toml.tmp"
	secretKeyPrefix = "tasktracker"
)

// Repository persists the session identity as TOML and its tokens in a
// SecretStore.
type Repository struct {
	path    string
	secrets ports.SecretStore
	clock   ports.Clock
	encode  func(v any) ([]byte, error)
	mu      *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SessionRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper, secrets ports.SecretStore) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if secrets == nil {
		return nil, errors.New("secret store is nil")
	}

	path := cfg.GetString(sessionPathKey)
	if path == "" {
		return nil, errors.New("session path is empty")
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &Repository{
		path:    path,
		secrets: secrets,
		clock:   ports.SystemClock{},
		encode:  toml.Marshal,
		mu:      lockForPath(path),
	}, nil
}

func SecretKey(userID domain.UserID) string {
	return secretKeyPrefix + "/" + string(userID) + "/tokens"
}

func (r *Repository) Load(ctx context.Context) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Session{}, err
	}
	if file.Session == nil || file.Session.UserID == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	raw, err := r.secrets.Get(ctx, file.Session.SecretRef)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return domain.Session{}, fmt.Errorf("%w: token secret missing", domain.ErrSessionNotFound)
		}
		return domain.Session{}, fmt.Errorf("read session tokens: %w", err)
	}

	var tokens tokenSecret
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return domain.Session{}, fmt.Errorf("decode session tokens: %w", err)
	}

	return fromSchema(*file.Session, tokens), nil
}

// Save writes the tokens first and the session file second. A failed file
// write removes the freshly stored tokens; a replaced user's tokens are
// deleted once the new session is on disk.
func (r *Repository) Save(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session.UserID() == "" {
		return errors.New("session user id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	var previousRef string
	if file.Session != nil {
		previousRef = file.Session.SecretRef
	}

	secretRef := SecretKey(session.UserID())
	encodedTokens, err := json.Marshal(tokenSecret{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("encode session tokens: %w", err)
	}
	if err := r.secrets.Put(ctx, secretRef, string(encodedTokens)); err != nil {
		return fmt.Errorf("store session tokens: %w", err)
	}

	encoded := toSchema(session, secretRef, r.clock.Now())
	file.Session = &encoded
	if err := r.writeSchema(file); err != nil {
		if previousRef == secretRef {
			return fmt.Errorf("save session: %w", err)
		}
		if rollbackErr := r.secrets.Delete(ctx, secretRef); rollbackErr != nil {
			return fmt.Errorf("save session and rollback stored tokens: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save session: %w", err)
	}

	if previousRef != "" && previousRef != secretRef {
		if err := r.secrets.Delete(ctx, previousRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			return fmt.Errorf("delete previous session tokens: %w", err)
		}
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	if file.Session == nil {
		return domain.ErrSessionNotFound
	}

	secretRef := file.Session.SecretRef
	file.Session = nil
	if err := r.writeSchema(file); err != nil {
		return fmt.Errorf("clear session file: %w", err)
	}
	if secretRef == "" {
		return nil
	}
	if err := r.secrets.Delete(ctx, secretRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		return fmt.Errorf("delete session tokens: %w", err)
	}

	return nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read session file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode session file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve session path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), sessionDirMode); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	data, err := r.encode(file)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}

	if err := tempFile.Chmod(sessionFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}

	cleanup = false

	return nil
}

func toSchema(session domain.Session, secretRef string, savedAt time.Time) sessionSchema {
	return sessionSchema{
		UserID:          string(session.User.ID),
		Username:        session.User.Username,
		Email:           session.User.Email,
		IsAuthenticated: session.IsAuthenticated,
		SecretRef:       secretRef,
		SavedAt:         formatTime(savedAt),
	}
}

func fromSchema(entry sessionSchema, tokens tokenSecret) domain.Session {
	return domain.Session{
		User: domain.User{
			ID:       domain.UserID(entry.UserID),
			Username: entry.Username,
			Email:    entry.Email,
		},
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		IsAuthenticated: entry.IsAuthenticated,
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339)
}
