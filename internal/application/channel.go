package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/logging"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

var ErrEmptyUserID = errors.New("user id is required to open the realtime channel")

type ChannelConfig struct {
	// MaxAttempts bounds consecutive reconnect attempts after a failed dial
	// or a dropped connection.
	MaxAttempts int
	Backoff     Backoff
}

func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		MaxAttempts: DefaultReconnectAttempts,
		Backoff:     DefaultBackoff(),
	}
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// subscribers keeps callbacks in registration order.
type subscribers[T any] struct {
	mu     sync.Mutex
	nextID int
	items  []subscription[T]
}

func (s *subscribers[T]) add(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.items = append(s.items, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, item := range s.items {
				if item.id == id {
					s.items = append(s.items[:i:i], s.items[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *subscribers[T]) publish(v T) {
	s.mu.Lock()
	items := make([]subscription[T], len(s.items))
	copy(items, s.items)
	s.mu.Unlock()

	for _, item := range items {
		item.fn(v)
	}
}

// ChannelManager owns the single realtime connection of the process and keeps
// it alive for one user at a time.
type ChannelManager struct {
	dialer ports.RealtimeDialer
	cfg    ChannelConfig
	logger logging.Logger
	sample func() float64

	opMu sync.Mutex

	mu     sync.Mutex
	status domain.ChannelStatus
	userID domain.UserID
	cancel context.CancelFunc
	done   chan struct{}

	events subscribers[domain.Event]
	states subscribers[domain.ChannelStatus]
}

func NewChannelManager(dialer ports.RealtimeDialer, cfg ChannelConfig, logger logging.Logger) *ChannelManager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultReconnectAttempts
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &ChannelManager{
		dialer: dialer,
		cfg:    cfg,
		logger: logger,
		sample: rand.Float64,
	}
}

// Open connects the channel for userID. It is a no-op while the channel is
// already running for the same user and replaces the connection otherwise.
func (m *ChannelManager) Open(userID domain.UserID) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	running := m.cancel != nil
	sameUser := m.userID == userID
	m.mu.Unlock()

	if running && sameUser {
		return nil
	}
	if running {
		m.stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.userID = userID
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(ctx, userID, done)

	return nil
}

// Close tears the channel down, cancelling any pending reconnect, and waits
// for the connection loop to exit. Closing a closed channel is a no-op.
func (m *ChannelManager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.stop()
}

func (m *ChannelManager) stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	userID := m.userID
	m.cancel = nil
	m.done = nil
	m.userID = ""
	wasDisconnected := m.status.State == domain.ChannelDisconnected
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if cancel == nil && wasDisconnected {
		return
	}
	m.setStatus(domain.ChannelStatus{State: domain.ChannelDisconnected, UserID: userID})
}

func (m *ChannelManager) Status() domain.ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

func (m *ChannelManager) State() domain.ChannelState {
	return m.Status().State
}

// Subscribe registers fn for every inbound event. Callbacks run on the
// connection goroutine in transport order.
func (m *ChannelManager) Subscribe(fn func(domain.Event)) func() {
	return m.events.add(fn)
}

// SubscribeState registers fn for state transitions.
func (m *ChannelManager) SubscribeState(fn func(domain.ChannelStatus)) func() {
	return m.states.add(fn)
}

func (m *ChannelManager) setStatus(status domain.ChannelStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	m.states.publish(status)
}

func (m *ChannelManager) run(ctx context.Context, userID domain.UserID, done chan struct{}) {
	defer close(done)

	log := m.logger.With("user_id", userID)
	attempt := 0
	m.setStatus(domain.ChannelStatus{State: domain.ChannelConnecting, UserID: userID})

	for {
		connected, err := m.connect(ctx, userID)
		if ctx.Err() != nil {
			return
		}
		if connected {
			// An established connection that later dropped starts a fresh
			// retry budget.
			attempt = 0
		}

		attempt++
		if attempt > m.cfg.MaxAttempts {
			log.Warn("realtime channel unreachable", "attempts", attempt-1, "error", err)
			m.exhausted(done, domain.ChannelStatus{
				State:   domain.ChannelDisconnected,
				UserID:  userID,
				Attempt: attempt - 1,
				Err:     fmt.Errorf("%w: %w", domain.ErrChannelUnreachable, err),
			})
			return
		}

		delay := m.cfg.Backoff.Delay(attempt, m.sample())
		log.Info("realtime channel reconnecting", "attempt", attempt, "delay", delay, "error", err)
		m.setStatus(domain.ChannelStatus{State: domain.ChannelReconnecting, UserID: userID, Attempt: attempt, Err: err})

		if err := waitWithContext(ctx, delay); err != nil {
			return
		}
	}
}

// connect dials once and pumps events until the connection ends. connected
// reports whether the dial succeeded.
func (m *ChannelManager) connect(ctx context.Context, userID domain.UserID) (bool, error) {
	conn, err := m.dialer.Dial(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	m.setStatus(domain.ChannelStatus{State: domain.ChannelConnected, UserID: userID})
	m.logger.Debug("realtime channel connected", "user_id", userID)

	for {
		ev, err := conn.Next(ctx)
		if err != nil {
			if errors.Is(err, ports.ErrConnectionClosed) {
				return true, err
			}
			return true, fmt.Errorf("connection lost: %w", err)
		}
		m.events.publish(ev)
	}
}

// exhausted publishes the terminal status and marks the loop as stopped so
// a later Open for the same user dials again.
func (m *ChannelManager) exhausted(done chan struct{}, status domain.ChannelStatus) {
	m.mu.Lock()
	if m.done == done {
		m.cancel()
		m.cancel = nil
		m.done = nil
	}
	m.mu.Unlock()

	m.setStatus(status)
}
