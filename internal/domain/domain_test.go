package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionIsAuthenticated(t *testing.T) {
	s := NewSession(User{ID: "u1", Username: "ada"}, TokenPair{AccessToken: "a1", RefreshToken: "r1"})

	assert.True(t, s.IsAuthenticated)
	assert.True(t, s.Restorable())
	assert.Equal(t, UserID("u1"), s.UserID())
	assert.Equal(t, TokenPair{AccessToken: "a1", RefreshToken: "r1"}, s.Tokens())
	require.NoError(t, s.Validate())
}

func TestSessionWithTokensKeepsIdentity(t *testing.T) {
	s := NewSession(User{ID: "u1", Username: "ada", Email: "ada@example.com"}, TokenPair{AccessToken: "a1", RefreshToken: "r1"})

	rotated := s.WithTokens(TokenPair{AccessToken: "a2", RefreshToken: "r2"})

	assert.Equal(t, s.User, rotated.User)
	assert.True(t, rotated.IsAuthenticated)
	assert.Equal(t, "a2", rotated.AccessToken)
	assert.Equal(t, "r2", rotated.RefreshToken)
	assert.Equal(t, "a1", s.AccessToken)
}

func TestSessionValidate(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		want    string
	}{
		{name: "missing user", session: Session{AccessToken: "a1"}, want: "user id is required"},
		{name: "blank access token", session: Session{User: User{ID: "u1"}, AccessToken: "  "}, want: "access token is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.session.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSessionRestorable(t *testing.T) {
	assert.False(t, Session{User: User{ID: "u1"}, AccessToken: "a1"}.Restorable())
	assert.False(t, Session{IsAuthenticated: true}.Restorable())
	assert.True(t, Session{User: User{ID: "u1"}, IsAuthenticated: true}.Restorable())
}

func TestTokenPairHasRefreshToken(t *testing.T) {
	assert.True(t, TokenPair{RefreshToken: "r1"}.HasRefreshToken())
	assert.False(t, TokenPair{RefreshToken: " "}.HasRefreshToken())
}

func TestRenewalTransportErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("renew: %w", &RenewalTransportError{Err: cause})

	assert.ErrorIs(t, err, ErrRenewalTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRenewalRejected)
	assert.Equal(t, "renew: token renewal transport failure: dial tcp: connection refused", err.Error())
	assert.Equal(t, ErrRenewalTransport.Error(), (&RenewalTransportError{}).Error())
}

func TestEventKindValid(t *testing.T) {
	for _, kind := range []EventKind{EventTaskCreated, EventTaskUpdated, EventCommentCreated, EventHistoryReplay} {
		assert.True(t, kind.Valid(), kind)
	}
	assert.False(t, EventKind("task:created").Valid())
}

func TestChannelStateString(t *testing.T) {
	assert.Equal(t, "disconnected", ChannelDisconnected.String())
	assert.Equal(t, "connecting", ChannelConnecting.String())
	assert.Equal(t, "connected", ChannelConnected.String())
	assert.Equal(t, "reconnecting", ChannelReconnecting.String())
	assert.Equal(t, "unknown", ChannelState(42).String())
}
