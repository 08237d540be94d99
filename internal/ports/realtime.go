package ports

import (
	"context"
	"errors"

	"github.com/bnema/tasktracker-cli/internal/domain"
)

// RealtimeDialer opens one connection addressed by user id.
type RealtimeDialer interface {
	Dial(ctx context.Context, userID domain.UserID) (RealtimeConn, error)
}

// RealtimeConn yields events in the order the transport received them. Next
// blocks until an event arrives, the context ends, or the connection drops.
type RealtimeConn interface {
	Next(ctx context.Context) (domain.Event, error)
	Close() error
}

// ErrConnectionClosed is returned by RealtimeConn.Next when the peer closed
// the connection normally.
var ErrConnectionClosed = errors.New("realtime connection closed")
