package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSecretNotFound  = errors.New("secret not found")

	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrCredentialMissing: renewal needed but no refresh token is stored.
	ErrCredentialMissing = errors.New("refresh token missing")

	// ErrRenewalRejected: the auth boundary invalidated the refresh token.
	ErrRenewalRejected = errors.New("session expired: refresh token rejected")

	ErrRenewalTransport = errors.New("token renewal transport failure")

	// ErrSessionChanged: a renewal resolved after logout or re-login and its
	// result was discarded.
	ErrSessionChanged = errors.New("session changed during token renewal")

	ErrRequestUnauthorizedAfterRetry = errors.New("request unauthorized after token renewal")
	ErrChannelUnreachable            = errors.New("realtime channel unreachable")
)

// RenewalTransportError is retryable; the session is left untouched.
type RenewalTransportError struct {
	Err error
}

func (e *RenewalTransportError) Error() string {
	if e.Err == nil {
		return ErrRenewalTransport.Error()
	}
	return fmt.Sprintf("%s: %v", ErrRenewalTransport, e.Err)
}

func (e *RenewalTransportError) Unwrap() error {
	return e.Err
}

func (e *RenewalTransportError) Is(target error) bool {
	return target == ErrRenewalTransport
}
