package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/logging"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

const (
	DefaultRenewalTimeout = 15 * time.Second

	renewalKey = "renew"
)

// RenewalTicket describes the renewal currently in flight.
type RenewalTicket struct {
	StartedAt time.Time
}

// InvalidateFunc tears the session down after the credential was found to be
// unusable. It runs at most once per failed renewal and only while the
// session that started the renewal is still the active one.
type InvalidateFunc func(ctx context.Context, cause error)

// RenewalCoordinator serializes token renewal: concurrent callers share a
// single exchange with the auth boundary and receive the same result.
type RenewalCoordinator struct {
	store      *CredentialStore
	refresher  ports.TokenRefresher
	clock      ports.Clock
	logger     logging.Logger
	timeout    time.Duration
	invalidate InvalidateFunc

	group singleflight.Group

	mu     sync.Mutex
	ticket *RenewalTicket
}

type RenewalOption func(*RenewalCoordinator)

func WithRenewalTimeout(timeout time.Duration) RenewalOption {
	return func(c *RenewalCoordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithRenewalClock(clock ports.Clock) RenewalOption {
	return func(c *RenewalCoordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithRenewalLogger(logger logging.Logger) RenewalOption {
	return func(c *RenewalCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewRenewalCoordinator(store *CredentialStore, refresher ports.TokenRefresher, invalidate InvalidateFunc, opts ...RenewalOption) *RenewalCoordinator {
	c := &RenewalCoordinator{
		store:      store,
		refresher:  refresher,
		clock:      ports.SystemClock{},
		logger:     logging.Nop(),
		timeout:    DefaultRenewalTimeout,
		invalidate: invalidate,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// InFlight reports the pending renewal, if any.
func (c *RenewalCoordinator) InFlight() (RenewalTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticket == nil {
		return RenewalTicket{}, false
	}
	return *c.ticket, true
}

// Renew returns a fresh token pair, joining a renewal already in flight when
// there is one. ctx only bounds how long this caller waits: the shared
// exchange keeps running and its result is still applied to the store.
func (c *RenewalCoordinator) Renew(ctx context.Context) (domain.TokenPair, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(renewalKey, func() (any, error) {
		return c.renew(detached)
	})

	select {
	case <-ctx.Done():
		return domain.TokenPair{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.TokenPair{}, res.Err
		}
		return res.Val.(domain.TokenPair), nil
	}
}

func (c *RenewalCoordinator) renew(ctx context.Context) (domain.TokenPair, error) {
	c.mu.Lock()
	c.ticket = &RenewalTicket{StartedAt: c.clock.Now()}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ticket = nil
		c.mu.Unlock()
	}()

	session, gen, ok := c.store.Snapshot()
	if !ok {
		return domain.TokenPair{}, domain.ErrNotAuthenticated
	}
	log := c.logger.With("user_id", session.UserID())

	if !session.Tokens().HasRefreshToken() {
		log.Warn("token renewal impossible: no refresh token")
		c.invalidateIfCurrent(ctx, gen, domain.ErrCredentialMissing)
		return domain.TokenPair{}, domain.ErrCredentialMissing
	}

	refreshCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tokens, err := c.refresher.Refresh(refreshCtx, session.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrRenewalRejected) {
			log.Warn("refresh token rejected", "error", err)
			c.invalidateIfCurrent(ctx, gen, err)
			return domain.TokenPair{}, err
		}

		var transportErr *domain.RenewalTransportError
		if !errors.As(err, &transportErr) {
			err = &domain.RenewalTransportError{Err: err}
		}
		log.Warn("token renewal failed, session kept", "error", err)
		return domain.TokenPair{}, err
	}

	if err := c.store.SetTokensIfCurrent(ctx, gen, tokens); err != nil {
		if errors.Is(err, domain.ErrSessionChanged) {
			log.Info("discarding renewal result for a replaced session")
			return domain.TokenPair{}, err
		}
		log.Error("persist rotated tokens", "error", err)
	}

	current, ok := c.store.Session()
	if !ok {
		return domain.TokenPair{}, domain.ErrSessionChanged
	}
	log.Debug("tokens renewed")

	return current.Tokens(), nil
}

func (c *RenewalCoordinator) invalidateIfCurrent(ctx context.Context, gen uint64, cause error) {
	if c.store.Generation() != gen {
		return
	}
	if c.invalidate == nil {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Error("clear invalidated session", "error", fmt.Errorf("%w: %w", cause, err))
		}
		return
	}
	c.invalidate(ctx, cause)
}
