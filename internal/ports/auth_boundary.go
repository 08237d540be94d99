package ports

import (
	"context"

	"github.com/bnema/tasktracker-cli/internal/domain"
)

type Credentials struct {
	Identifier string
	Password   string
}

type LoginResult struct {
	User   domain.User
	Tokens domain.TokenPair
}

// TokenRefresher exchanges a refresh token for a new pair. Implementations
// return domain.ErrRenewalRejected when the boundary invalidates the token and
// a *domain.RenewalTransportError for network or server failures.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
}

type Authenticator interface {
	TokenRefresher
	Login(ctx context.Context, credentials Credentials) (LoginResult, error)
}
