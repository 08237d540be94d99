package domain

import (
	"fmt"
	"strings"
)

// Session is the single active credential state of the process.
type Session struct {
	User            User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
}

func NewSession(user User, tokens TokenPair) Session {
	return Session{
		User:            user,
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		IsAuthenticated: true,
	}
}

func (s Session) UserID() UserID {
	return s.User.ID
}

func (s Session) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// WithTokens returns a copy with rotated tokens; identity and the
// authenticated flag are preserved.
func (s Session) WithTokens(tokens TokenPair) Session {
	s.AccessToken = tokens.AccessToken
	s.RefreshToken = tokens.RefreshToken
	return s
}

func (s Session) Validate() error {
	if strings.TrimSpace(string(s.User.ID)) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return fmt.Errorf("access token is required")
	}

	return nil
}

// Restorable reports whether a persisted session may be restored on process
// start. Only authenticated sessions are.
func (s Session) Restorable() bool {
	return s.IsAuthenticated && strings.TrimSpace(string(s.User.ID)) != ""
}
