package status

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/tasktracker-cli/internal/adapters/render/oneshot"
	"github.com/bnema/tasktracker-cli/internal/application"
	"github.com/bnema/tasktracker-cli/internal/domain"
)

type RenderOptions struct {
	Now time.Time
}

// Render draws the session status once and returns it as a string.
func Render(status application.Status, opts RenderOptions) (string, error) {
	s := newStyles()
	return oneshot.Render(func() string {
		return renderView(status, opts, s)
	})
}

func renderView(status application.Status, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Task Tracker Session")}

	if !status.Authenticated {
		lines = append(lines, s.empty.Render("Not logged in."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines,
		s.user.Render(userTitle(status.User)),
		s.section.Render(lipgloss.JoinVertical(lipgloss.Left,
			field(s, "refresh token", refreshLabel(status.HasRefresh)),
			field(s, "channel", channelLine(status.Channel, s)),
			field(s, "unread", fmt.Sprintf("%d (%d retained)", status.UnreadCount, status.Retained)),
		)),
	)

	if status.RenewalSince != nil {
		lines = append(lines, s.warning.Render("renewal in flight "+formatSince(*status.RenewalSince, opts.Now)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func field(s styles, key, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.key.Render(key+":"), " ", s.detail.Render(value))
}

func userTitle(user domain.User) string {
	name := strings.TrimSpace(user.Username)
	if name == "" {
		name = string(user.ID)
	}
	if email := strings.TrimSpace(user.Email); email != "" {
		return fmt.Sprintf("%s <%s> (%s)", name, email, user.ID)
	}
	return fmt.Sprintf("%s (%s)", name, user.ID)
}

func refreshLabel(has bool) string {
	if has {
		return "present"
	}
	return "missing"
}

func channelLine(ch domain.ChannelStatus, s styles) string {
	switch {
	case errors.Is(ch.Err, domain.ErrChannelUnreachable):
		return s.warning.Render("unreachable")
	case ch.State == domain.ChannelConnected:
		return s.good.Render(ch.State.String())
	case ch.State == domain.ChannelReconnecting:
		return fmt.Sprintf("%s (attempt %d)", ch.State, ch.Attempt)
	default:
		return ch.State.String()
	}
}

func formatSince(startedAt, now time.Time) string {
	if now.IsZero() {
		return "since " + startedAt.Format(time.RFC3339)
	}

	elapsed := now.Sub(startedAt).Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return fmt.Sprintf("for %s", elapsed)
}
