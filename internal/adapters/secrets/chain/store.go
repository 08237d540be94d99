// Package chain combines two secret stores: writes and reads go to the primary
// and fall back to the secondary when the primary cannot serve them.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/tasktracker-cli/internal/adapters/secrets/file"
	passstore "github.com/bnema/tasktracker-cli/internal/adapters/secrets/pass"
	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

type Store struct {
	primary  ports.SecretStore
	fallback ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary secret store is nil")
	errNilFallbackStore = errors.New("fallback secret store is nil")
)

func NewStore(primary ports.SecretStore, fallback ports.SecretStore) *Store {
	store, err := NewStoreChecked(primary, fallback)
	if err != nil {
		panic(err)
	}

	return store
}

func NewStoreChecked(primary ports.SecretStore, fallback ports.SecretStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStoreChecked(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := withFallback(s, "put", func(store ports.SecretStore) (struct{}, error) {
		return struct{}{}, store.Put(ctx, key, value)
	})
	return err
}

// Get prefers the primary backend; a value written while pass was unavailable
// is still found in the fallback.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	return withFallback(s, "get", func(store ports.SecretStore) (string, error) {
		return store.Get(ctx, key)
	})
}

// Delete removes key from both backends, since Put may have landed in either.
// A backend that never held the key does not fail the call.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if err != nil && shouldSkipFallback(err) {
		return err
	}

	primaryErr := ignoreAbsent(err)
	fallbackErr := ignoreAbsent(s.fallback.Delete(ctx, key))
	switch {
	case primaryErr == nil && fallbackErr == nil:
		return nil
	case primaryErr == nil:
		return fmt.Errorf("fallback backend delete failed: %w", fallbackErr)
	case fallbackErr == nil:
		return fmt.Errorf("primary backend delete failed: %w", primaryErr)
	default:
		return fmt.Errorf("primary backend delete failed: %w; fallback backend delete failed: %w", primaryErr, fallbackErr)
	}
}

func withFallback[T any](s *Store, op string, call func(ports.SecretStore) (T, error)) (T, error) {
	value, err := call(s.primary)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		var zero T
		return zero, err
	}

	fallbackValue, fallbackErr := call(s.fallback)
	if fallbackErr == nil {
		return fallbackValue, nil
	}

	var zero T
	return zero, fmt.Errorf("primary backend %s failed: %w; fallback backend %s failed: %w", op, err, op, fallbackErr)
}

func ignoreAbsent(err error) error {
	if errors.Is(err, passstore.ErrUnavailable) || errors.Is(err, domain.ErrSecretNotFound) {
		return nil
	}
	return err
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
