package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

func mockAnyContext() interface{} {
	return mock.Anything
}

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}

type inMemorySessionRepo struct {
	mu      sync.Mutex
	session *domain.Session
	saves   int
}

func (r *inMemorySessionRepo) Load(context.Context) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *r.session, nil
}

func (r *inMemorySessionRepo) Save(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session = &session
	r.saves++
	return nil
}

func (r *inMemorySessionRepo) Delete(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return domain.ErrSessionNotFound
	}
	r.session = nil
	return nil
}

func (r *inMemorySessionRepo) stored() (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return domain.Session{}, false
	}
	return *r.session, true
}

// fakeConn replays queued events and then blocks until closed.
type fakeConn struct {
	events chan domain.Event
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan domain.Event, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Next(ctx context.Context) (domain.Event, error) {
	select {
	case <-ctx.Done():
		return domain.Event{}, ctx.Err()
	case <-c.closed:
		return domain.Event{}, ports.ErrConnectionClosed
	case ev := <-c.events:
		return ev, nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out queued connections; once the queue is empty every
// dial fails with err.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	users []domain.UserID
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, userID domain.UserID) (ports.RealtimeConn, error) {
	d.dials.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = append(d.users, userID)
	if len(d.conns) == 0 {
		return nil, d.err
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialedUsers() []domain.UserID {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]domain.UserID(nil), d.users...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ChannelStatus
}

func (r *stateRecorder) record(status domain.ChannelStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, status)
}

func (r *stateRecorder) snapshot() []domain.ChannelStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.ChannelStatus(nil), r.states...)
}

func (r *stateRecorder) kinds() []domain.ChannelState {
	out := []domain.ChannelState{}
	for _, s := range r.snapshot() {
		out = append(out, s.State)
	}
	return out
}

func fastChannelConfig(attempts int) ChannelConfig {
	return ChannelConfig{
		MaxAttempts: attempts,
		Backoff:     Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond},
	}
}

func notification(id string) domain.Notification {
	return domain.Notification{
		ID:        domain.NotificationID(id),
		Type:      "task_created",
		Title:     "Task " + id,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testUser() domain.User {
	return domain.User{ID: "u1", Username: "ada", Email: "ada@example.com"}
}
