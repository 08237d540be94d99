package domain

import "strings"

type UserID string

type User struct {
	ID       UserID
	Username string
	Email    string
}

// TokenPair is the credential pair issued by the auth boundary. Both values
// are opaque; nothing in this module inspects their structure.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (p TokenPair) HasRefreshToken() bool {
	return strings.TrimSpace(p.RefreshToken) != ""
}
