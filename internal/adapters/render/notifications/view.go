// Package notifications renders the notification bell: an unread badge and
// the most recent ledger entries with relative timestamps.
package notifications

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/tasktracker-cli/internal/adapters/render/oneshot"
	"github.com/bnema/tasktracker-cli/internal/domain"
)

const (
	DefaultLimit    = 10
	badgeCap        = 9
	messageMaxLines = 2
)

// Bell is the ledger state to draw. Notifications are newest first.
type Bell struct {
	Notifications []domain.Notification
	UnreadCount   int
}

type RenderOptions struct {
	Now   time.Time
	Limit int
}

// Badge returns the unread counter label, empty when nothing is unread.
func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > badgeCap:
		return strconv.Itoa(badgeCap) + "+"
	default:
		return strconv.Itoa(unread)
	}
}

// Render draws the bell view once and returns it as a string.
func Render(bell Bell, opts RenderOptions) (string, error) {
	s := newStyles()
	return oneshot.Render(func() string {
		return renderView(bell, opts, s)
	})
}

func renderView(bell Bell, opts RenderOptions, s styles) string {
	title := s.title.Render("Notifications")
	if badge := Badge(bell.UnreadCount); badge != "" {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", s.badge.Render(badge))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	items := bell.Notifications
	if len(items) > limit {
		items = items[:limit]
	}

	lines := []string{
		title,
		s.header.Render(fmt.Sprintf("showing %d of %d", len(items), len(bell.Notifications))),
	}

	if len(items) == 0 {
		lines = append(lines, s.empty.Render("No notifications."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, n := range items {
		lines = append(lines, s.item.Render(renderItem(n, opts.Now, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderItem(n domain.Notification, now time.Time, s styles) string {
	parts := []string{s.heading.Render(itemTitle(n))}

	if msg := clampLines(strings.TrimSpace(n.Message), messageMaxLines); msg != "" {
		parts = append(parts, s.message.Render(msg))
	}

	meta := s.meta.Render(formatRelative(n.CreatedAt, now))
	if n.Metadata.TaskID != "" {
		meta = lipgloss.JoinHorizontal(lipgloss.Top, meta, " ", s.link.Render("task "+n.Metadata.TaskID))
	}
	parts = append(parts, meta)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func itemTitle(n domain.Notification) string {
	if title := strings.TrimSpace(n.Title); title != "" {
		return title
	}
	if n.Type != "" {
		return n.Type
	}
	return string(n.ID)
}

func clampLines(text string, max int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= max {
		return text
	}
	return strings.Join(lines[:max], "\n") + "…"
}

func formatRelative(at, now time.Time) string {
	if at.IsZero() {
		return "unknown time"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	elapsed := now.Sub(at)
	if elapsed < 0 {
		return "just now"
	}

	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed/time.Minute), "minute") + " ago"
	case elapsed < 24*time.Hour:
		return plural(int(elapsed/time.Hour), "hour") + " ago"
	case elapsed < 30*24*time.Hour:
		return plural(int(elapsed/(24*time.Hour)), "day") + " ago"
	default:
		return "on " + at.Format("02 Jan 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
