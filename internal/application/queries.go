package application

import (
	"time"

	"github.com/bnema/tasktracker-cli/internal/domain"
)

// Status is a point-in-time view of the session core.
type Status struct {
	Authenticated bool
	User          domain.User
	HasRefresh    bool
	Channel       domain.ChannelStatus
	UnreadCount   int
	Retained      int
	RenewalSince  *time.Time
}
