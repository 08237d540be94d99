package application

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

type fakeAuth struct {
	countingRefresher
	login ports.LoginResult
	creds []ports.Credentials
}

func (a *fakeAuth) Login(_ context.Context, creds ports.Credentials) (ports.LoginResult, error) {
	a.creds = append(a.creds, creds)
	return a.login, nil
}

type serviceFixture struct {
	service *Service
	repo    *inMemorySessionRepo
	dialer  *fakeDialer
	auth    *fakeAuth
	conn    *fakeConn
}

func newServiceFixture(t *testing.T, baseURL string) serviceFixture {
	t.Helper()

	conn := newFakeConn()
	f := serviceFixture{
		repo:   &inMemorySessionRepo{},
		dialer: &fakeDialer{conns: []*fakeConn{conn}},
		auth:   &fakeAuth{},
		conn:   conn,
	}
	f.service = NewService(ServiceDeps{
		Sessions: f.repo,
		Auth:     f.auth,
		Dialer:   f.dialer,
		BaseURL:  baseURL,
		Channel:  fastChannelConfig(2),
		Clock:    fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	})
	t.Cleanup(func() { _ = f.service.Close() })
	return f
}

func (f serviceFixture) push(ev domain.Event) {
	f.conn.events <- ev
}

func TestServiceLoginReplayLiveClearScenario(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")
	var states stateRecorder
	f.service.SubscribeChannelState(states.record)

	require.NoError(t, f.service.Login(context.Background(), testUser(), domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.Eventually(t, func() bool {
		return f.service.ChannelStatus().State == domain.ChannelConnected
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, []domain.ChannelState{domain.ChannelConnecting, domain.ChannelConnected}, states.kinds())
	assert.Equal(t, []domain.UserID{"u1"}, f.dialer.dialedUsers())

	n1, n2, n3 := notification("n1"), notification("n2"), notification("n3")
	f.push(domain.Event{
		Kind:   domain.EventHistoryReplay,
		Replay: &domain.HistoryReplay{Notifications: []domain.Notification{n1, n2}, Count: 2},
	})
	require.Eventually(t, func() bool { return f.service.UnreadCount() == 2 }, time.Second, 2*time.Millisecond)
	assert.Len(t, f.service.Notifications(), 2)

	f.push(domain.Event{Kind: domain.EventTaskCreated, Notification: &n3})
	require.Eventually(t, func() bool { return f.service.UnreadCount() == 3 }, time.Second, 2*time.Millisecond)
	items := f.service.Notifications()
	require.Len(t, items, 3)
	assert.Equal(t, domain.NotificationID("n3"), items[0].ID)

	f.service.ClearNotifications()
	assert.Empty(t, f.service.Notifications())
	assert.Zero(t, f.service.UnreadCount())
}

func TestServiceRenewalRejectionLogsOutScenario(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	f := newServiceFixture(t, server.URL)
	f.auth.err = domain.ErrRenewalRejected

	ctx := context.Background()
	require.NoError(t, f.service.Login(ctx, testUser(), domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.Eventually(t, func() bool {
		return f.service.ChannelStatus().State == domain.ChannelConnected
	}, 2*time.Second, 2*time.Millisecond)
	n := notification("n1")
	f.push(domain.Event{Kind: domain.EventTaskUpdated, Notification: &n})
	require.Eventually(t, func() bool { return f.service.UnreadCount() == 1 }, time.Second, 2*time.Millisecond)

	_, err := f.service.ExecuteAuthenticated(ctx, Request{Path: "/tasks"})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.ErrorIs(t, err, domain.ErrRenewalRejected)

	_, present := f.service.Session()
	assert.False(t, present)
	_, stored := f.repo.stored()
	assert.False(t, stored)
	assert.Equal(t, domain.ChannelDisconnected, f.service.ChannelStatus().State)
	assert.Zero(t, f.service.UnreadCount())
	assert.Empty(t, f.service.Notifications())

	_, err = f.service.ExecuteAuthenticated(ctx, Request{Path: "/tasks"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, int32(1), f.auth.calls.Load())
}

func TestServiceStartRestoresPersistedSession(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")
	persisted := domain.NewSession(testUser(), domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	f.repo.session = &persisted

	session, restored, err := f.service.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, persisted, session)

	require.Eventually(t, func() bool {
		return f.service.ChannelStatus().State == domain.ChannelConnected
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, []domain.UserID{"u1"}, f.dialer.dialedUsers())
}

func TestServiceStartWithoutSessionStaysDisconnected(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")

	_, restored, err := f.service.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Zero(t, f.dialer.dials.Load())
}

func TestServiceStartSkipsUnauthenticatedSession(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	f := newServiceFixture(t, server.URL)
	f.repo.session = &domain.Session{User: testUser(), AccessToken: "stale", RefreshToken: "r1"}
	ctx := context.Background()

	session, restored, err := f.service.Start(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, domain.Session{}, session)
	assert.Zero(t, f.dialer.dials.Load())

	_, present := f.service.Session()
	assert.False(t, present)

	_, err = f.service.ExecuteAuthenticated(ctx, Request{Path: "/tasks"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Zero(t, requests.Load())
	assert.Zero(t, f.auth.calls.Load())
}

func TestServiceRestoreLoadsSessionWithoutDialing(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")
	persisted := domain.NewSession(testUser(), domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	f.repo.session = &persisted

	session, restored, err := f.service.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, persisted, session)
	assert.Zero(t, f.dialer.dials.Load())
	assert.Equal(t, domain.ChannelDisconnected, f.service.ChannelStatus().State)

	current, ok := f.service.Session()
	require.True(t, ok)
	assert.Equal(t, "a1", current.AccessToken)
}

func TestServiceLoginAsDifferentUserDropsPreviousUsersEvents(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")
	first, second := newFakeConn(), newFakeConn()
	f.dialer.conns = []*fakeConn{first, second}
	ctx := context.Background()

	require.NoError(t, f.service.Login(ctx, testUser(), domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	stop := make(chan struct{})
	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		for i := 0; ; i++ {
			n := notification(fmt.Sprintf("u1-%d", i))
			select {
			case <-stop:
				return
			case <-first.closed:
				return
			case first.events <- domain.Event{Kind: domain.EventTaskCreated, Notification: &n}:
			}
		}
	}()
	require.Eventually(t, func() bool { return f.service.UnreadCount() > 0 }, 2*time.Second, time.Millisecond)

	grace := domain.User{ID: "u2", Username: "grace"}
	require.NoError(t, f.service.Login(ctx, grace, domain.TokenPair{AccessToken: "b1", RefreshToken: "s1"}))
	close(stop)
	<-streamed

	assert.Empty(t, f.service.Notifications())
	assert.Zero(t, f.service.UnreadCount())
	assert.Equal(t, []domain.UserID{"u1", "u2"}, f.dialer.dialedUsers())

	n := notification("u2-1")
	second.events <- domain.Event{Kind: domain.EventTaskCreated, Notification: &n}
	require.Eventually(t, func() bool { return f.service.UnreadCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []domain.NotificationID{"u2-1"}, ids(f.service.Notifications()))
}

func TestServiceLogoutTearsDownEverything(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")
	ctx := context.Background()

	require.NoError(t, f.service.Login(ctx, testUser(), domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	require.Eventually(t, func() bool {
		return f.service.ChannelStatus().State == domain.ChannelConnected
	}, 2*time.Second, 2*time.Millisecond)

	require.NoError(t, f.service.Logout(ctx))

	_, present := f.service.Session()
	assert.False(t, present)
	assert.Equal(t, domain.ChannelDisconnected, f.service.ChannelStatus().State)
	_, err := f.service.ExecuteAuthenticated(ctx, Request{Path: "/tasks"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)

	require.NoError(t, f.service.Logout(ctx))
}

func TestServiceLoginWithPassword(t *testing.T) {
	f := newServiceFixture(t, "http://unused.invalid")
	f.auth.login = ports.LoginResult{User: testUser(), Tokens: domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"}}

	_, err := f.service.LoginWithPassword(context.Background(), PasswordLoginCommand{})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := f.service.LoginWithPassword(context.Background(), PasswordLoginCommand{
		Credentials: ports.Credentials{Identifier: "ada", Password: "pw"},
	})
	require.NoError(t, err)
	assert.Equal(t, testUser(), user)

	status := f.service.Status()
	assert.True(t, status.Authenticated)
	assert.True(t, status.HasRefresh)
	assert.Nil(t, status.RenewalSince)
	assert.Equal(t, []ports.Credentials{{Identifier: "ada", Password: "pw"}}, f.auth.creds)
}
