package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/logging"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

var ErrInvalidCredentials = errors.New("identifier and password are required")

type ServiceDeps struct {
	Sessions ports.SessionRepository
	Auth     ports.Authenticator
	Dialer   ports.RealtimeDialer

	HTTPClient *http.Client
	BaseURL    string

	Channel        ChannelConfig
	LedgerCapacity int
	RenewalTimeout time.Duration

	Clock  ports.Clock
	Logger logging.Logger
}

// Service is the session and notification core. One instance owns the
// process session, its realtime channel and its notification ledger.
type Service struct {
	store    *CredentialStore
	renewal  *RenewalCoordinator
	executor *Executor
	channel  *ChannelManager
	ledger   *Ledger
	auth     ports.Authenticator
	logger   logging.Logger

	unsubscribe func()
}

func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	s := &Service{
		store:   NewCredentialStore(deps.Sessions),
		channel: NewChannelManager(deps.Dialer, deps.Channel, logger.With("component", "channel")),
		ledger:  NewLedger(deps.LedgerCapacity),
		auth:    deps.Auth,
		logger:  logger,
	}
	s.renewal = NewRenewalCoordinator(s.store, deps.Auth, s.invalidate,
		WithRenewalTimeout(deps.RenewalTimeout),
		WithRenewalClock(clock),
		WithRenewalLogger(logger.With("component", "renewal")),
	)
	s.executor = NewExecutor(deps.HTTPClient, deps.BaseURL, s.store, s.renewal, logger.With("component", "executor"))
	s.unsubscribe = s.channel.Subscribe(s.ledger.Apply)

	return s
}

// Restore loads the persisted session into memory without touching the
// channel. The boolean reports whether an authenticated session was restored;
// anything else leaves the process logged out.
func (s *Service) Restore(ctx context.Context) (domain.Session, bool, error) {
	return s.store.Load(ctx)
}

// Start restores the persisted session and reconnects the channel when the
// session is authenticated. It performs no HTTP call.
func (s *Service) Start(ctx context.Context) (domain.Session, bool, error) {
	session, ok, err := s.Restore(ctx)
	if err != nil || !ok {
		return session, false, err
	}

	if err := s.channel.Open(session.UserID()); err != nil {
		return session, true, fmt.Errorf("open realtime channel: %w", err)
	}
	s.logger.Info("session restored", "user_id", session.UserID())

	return session, true, nil
}

func (s *Service) Login(ctx context.Context, user domain.User, tokens domain.TokenPair) error {
	previous, hadSession := s.store.Session()

	if err := s.store.SetSession(ctx, domain.NewSession(user, tokens)); err != nil {
		return err
	}
	if !hadSession || previous.UserID() != user.ID {
		// The previous identity's channel must be gone before the ledger is
		// emptied, or its in-flight events land in the new user's view.
		s.channel.Close()
		s.ledger.Reset()
	}
	if err := s.channel.Open(user.ID); err != nil {
		return fmt.Errorf("open realtime channel: %w", err)
	}
	s.logger.Info("logged in", "user_id", user.ID)

	return nil
}

// LoginWithPassword authenticates against the auth boundary and then logs in
// with the issued tokens.
func (s *Service) LoginWithPassword(ctx context.Context, cmd PasswordLoginCommand) (domain.User, error) {
	if !cmd.Valid() {
		return domain.User{}, ErrInvalidCredentials
	}

	result, err := s.auth.Login(ctx, cmd.Credentials)
	if err != nil {
		return domain.User{}, fmt.Errorf("login: %w", err)
	}
	if err := s.Login(ctx, result.User, result.Tokens); err != nil {
		return domain.User{}, err
	}

	return result.User, nil
}

// Logout clears the session, closes the channel and resets the ledger. A
// renewal still in flight is left to finish and its result is discarded.
func (s *Service) Logout(ctx context.Context) error {
	err := s.store.Clear(ctx)
	s.channel.Close()
	s.ledger.Reset()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Info("logged out")

	return nil
}

func (s *Service) invalidate(ctx context.Context, cause error) {
	s.logger.Warn("session invalidated", "cause", cause)
	if err := s.Logout(ctx); err != nil {
		s.logger.Error("logout after invalid credential", "error", err)
	}
}

func (s *Service) SetUser(ctx context.Context, user domain.User) error {
	return s.store.SetUser(ctx, user)
}

func (s *Service) ExecuteAuthenticated(ctx context.Context, req Request) (Response, error) {
	return s.executor.Execute(ctx, req)
}

func (s *Service) Session() (domain.Session, bool) {
	return s.store.Session()
}

func (s *Service) Notifications() []domain.Notification {
	return s.ledger.Notifications()
}

func (s *Service) RecentNotifications(n int) []domain.Notification {
	return s.ledger.Recent(n)
}

func (s *Service) UnreadCount() int {
	return s.ledger.UnreadCount()
}

func (s *Service) ClearNotifications() {
	s.ledger.Clear()
}

// Subscribe registers fn for inbound channel events. Events reach the ledger
// before any subscriber registered here.
func (s *Service) Subscribe(fn func(domain.Event)) func() {
	return s.channel.Subscribe(fn)
}

func (s *Service) SubscribeChannelState(fn func(domain.ChannelStatus)) func() {
	return s.channel.SubscribeState(fn)
}

func (s *Service) ChannelStatus() domain.ChannelStatus {
	return s.channel.Status()
}

func (s *Service) Status() Status {
	session, ok := s.store.Session()
	status := Status{
		Authenticated: ok && session.IsAuthenticated,
		User:          session.User,
		HasRefresh:    session.Tokens().HasRefreshToken(),
		Channel:       s.channel.Status(),
		UnreadCount:   s.ledger.UnreadCount(),
		Retained:      len(s.ledger.Notifications()),
	}
	if ticket, inFlight := s.renewal.InFlight(); inFlight {
		startedAt := ticket.StartedAt
		status.RenewalSince = &startedAt
	}

	return status
}

// Close stops the channel without touching the persisted session.
func (s *Service) Close() error {
	s.channel.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return nil
}
