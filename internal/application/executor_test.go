package application

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports/mocks"
)

// tokenServer accepts only the listed bearer tokens on non-auth paths.
type tokenServer struct {
	valid    map[string]bool
	requests atomic.Int32
	mu       sync.Mutex
	seen     []string
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	s.seen = append(s.seen, token)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(r.URL.Path, "/api/auth/") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
		return
	}
	if !s.valid[token] {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"token_expired","message":"Token expired"}`))
		return
	}
	_, _ = w.Write([]byte(`{"tasks":[{"id":"t1"}]}`))
}

func (s *tokenServer) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

type countingRefresher struct {
	calls  atomic.Int32
	delay  time.Duration
	tokens domain.TokenPair
	err    error
}

func (r *countingRefresher) Refresh(context.Context, string) (domain.TokenPair, error) {
	r.calls.Add(1)
	time.Sleep(r.delay)
	return r.tokens, r.err
}

func newTestExecutor(t *testing.T, handler http.Handler, store *CredentialStore, renewer Renewer) *Executor {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewExecutor(server.Client(), server.URL+"/api", store, renewer, nil)
}

// unusedRenewer fails the test if any renewal reaches the auth boundary.
func unusedRenewer(t *testing.T, store *CredentialStore) *RenewalCoordinator {
	return NewRenewalCoordinator(store, mocks.NewMockTokenRefresher(t), nil)
}

func TestExecutorAttachesBearerAndCorrelationID(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	var gotAuth, gotCorrelation, gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get(CorrelationHeader)
		gotPath = r.URL.RequestURI()
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	executor := newTestExecutor(t, handler, store, unusedRenewer(t, store))

	resp, err := executor.Execute(context.Background(), Request{Method: "get", Path: "tasks", Query: map[string][]string{"page": {"2"}}})
	require.NoError(t, err)

	assert.Equal(t, "Bearer a1", gotAuth)
	assert.NotEmpty(t, gotCorrelation)
	assert.Equal(t, "/api/tasks?page=2", gotPath)

	var body struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, resp.DecodeJSON(&body))
	assert.True(t, body.OK)
}

func TestExecutorRenewsOnceAndRetries(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	server := &tokenServer{valid: map[string]bool{"a2": true}}
	refresher := &countingRefresher{tokens: domain.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	coordinator := NewRenewalCoordinator(store, refresher, nil)
	executor := newTestExecutor(t, server, store, coordinator)

	resp, err := executor.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/tasks"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, []string{"a1", "a2"}, server.tokens())
}

func TestExecutorConcurrentUnauthorizedShareOneRenewal(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	server := &tokenServer{valid: map[string]bool{"a2": true}}
	refresher := &countingRefresher{
		delay:  30 * time.Millisecond,
		tokens: domain.TokenPair{AccessToken: "a2", RefreshToken: "r2"},
	}
	coordinator := NewRenewalCoordinator(store, refresher, nil)
	executor := newTestExecutor(t, server, store, coordinator)

	const requests = 3
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := executor.Execute(context.Background(), Request{Path: "/tasks"})
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(2*requests), server.requests.Load())
}

func TestExecutorUnauthorizedAfterRetryIsNotRenewedAgain(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	server := &tokenServer{valid: map[string]bool{}}
	refresher := &countingRefresher{tokens: domain.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	coordinator := NewRenewalCoordinator(store, refresher, nil)
	executor := newTestExecutor(t, server, store, coordinator)

	_, err := executor.Execute(context.Background(), Request{Path: "/tasks"})
	require.ErrorIs(t, err, domain.ErrRequestUnauthorizedAfterRetry)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, "token_expired", httpErr.Code)

	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(2), server.requests.Load())
}

func TestExecutorSurfacesUnauthorizedWhenRenewalFails(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	server := &tokenServer{valid: map[string]bool{}}
	refresher := &countingRefresher{err: domain.ErrRenewalRejected}
	var seen invalidations
	coordinator := NewRenewalCoordinator(store, refresher, seen.record(store))
	executor := newTestExecutor(t, server, store, coordinator)

	_, err := executor.Execute(context.Background(), Request{Path: "/tasks"})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.ErrorIs(t, err, domain.ErrRenewalRejected)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "Token expired", httpErr.Message)

	assert.Equal(t, int32(1), server.requests.Load())
	assert.Len(t, seen.all(), 1)

	_, err = executor.Execute(context.Background(), Request{Path: "/tasks"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, int32(1), server.requests.Load())
}

func TestExecutorUsesTokenRotatedByConcurrentRenewal(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	rotated := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer a1" {
			if !rotated {
				rotated = true
				assert.NoError(t, store.SetTokens(r.Context(), domain.TokenPair{AccessToken: "a2"}))
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	executor := newTestExecutor(t, handler, store, unusedRenewer(t, store))

	resp, err := executor.Execute(context.Background(), Request{Path: "/tasks"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExecutorWithoutSessionMakesNoNetworkCall(t *testing.T) {
	store := NewCredentialStore(&inMemorySessionRepo{})
	server := &tokenServer{valid: map[string]bool{}}
	executor := newTestExecutor(t, server, store, unusedRenewer(t, store))

	_, err := executor.Execute(context.Background(), Request{Path: "/tasks"})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Zero(t, server.requests.Load())
}

func TestExecutorAuthBoundaryUnauthorizedIsNotRenewed(t *testing.T) {
	store := NewCredentialStore(&inMemorySessionRepo{})
	server := &tokenServer{valid: map[string]bool{}}
	executor := newTestExecutor(t, server, store, unusedRenewer(t, store))

	_, err := executor.Execute(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Body: []byte(`{}`)})
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "Invalid credentials", httpErr.Message)
	assert.False(t, errors.Is(err, domain.ErrRequestUnauthorizedAfterRetry))
	assert.Equal(t, int32(1), server.requests.Load())
}

func TestExecutorNonUnauthorizedErrorIsReturnedAsIs(t *testing.T) {
	store := newLoggedInStore(t, domain.TokenPair{AccessToken: "a1", RefreshToken: "r1"})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Task not found"}`))
	})
	executor := newTestExecutor(t, handler, store, unusedRenewer(t, store))

	resp, err := executor.Execute(context.Background(), Request{Path: "/tasks/42"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "request failed with status 404: Task not found", httpErr.Error())
}
