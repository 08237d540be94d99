package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	bellrender "github.com/bnema/tasktracker-cli/internal/adapters/render/notifications"
	"github.com/bnema/tasktracker-cli/internal/domain"
)

const defaultReplayWait = 3 * time.Second

func newWatchCmd(app *app) *cobra.Command {
	var (
		limit   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live notifications",
		Long:  "Connect the realtime channel for the stored session and print notifications as they arrive. Stops on interrupt, after --limit notifications, or after --timeout.",
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withOptionalTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			seen := 0
			return follow(ctx, app, cmd.ErrOrStderr(), func(ev domain.Event) bool {
				seen += writeEvent(out, ev, app.now())
				return limit > 0 && seen >= limit
			})
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many notifications (0 means no limit)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this long (0 means until interrupted)")

	return cmd
}

func newNotificationsCmd(app *app) *cobra.Command {
	var (
		limit int
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show missed and recent notifications",
		Long:  "Connect once, wait for the history replay of missed notifications, and render the notification bell.",
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withOptionalTimeout(cmd.Context(), wait)
			defer cancel()

			err := follow(ctx, app, io.Discard, func(ev domain.Event) bool {
				return ev.Kind == domain.EventHistoryReplay
			})
			if err != nil {
				return err
			}

			rendered, err := app.bellRenderer(bellrender.Bell{
				Notifications: app.service.Notifications(),
				UnreadCount:   app.service.UnreadCount(),
			}, bellrender.RenderOptions{Now: app.now(), Limit: limit})
			if err != nil {
				return fmt.Errorf("render notifications: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", bellrender.DefaultLimit, "Maximum notifications to show")
	cmd.Flags().DurationVar(&wait, "wait", defaultReplayWait, "How long to wait for the history replay")

	return cmd
}

// follow restores the session, opens the channel and hands events to onEvent
// until it returns true or ctx ends. An exhausted channel is an error.
func follow(ctx context.Context, app *app, status io.Writer, onEvent func(domain.Event) bool) error {
	done := make(chan struct{})
	defer close(done)

	events := make(chan domain.Event, 16)
	states := make(chan domain.ChannelStatus, 16)

	unsubscribeEvents := app.service.Subscribe(func(ev domain.Event) {
		select {
		case events <- ev:
		case <-done:
		}
	})
	defer unsubscribeEvents()

	unsubscribeStates := app.service.SubscribeChannelState(func(st domain.ChannelStatus) {
		select {
		case states <- st:
		case <-done:
		}
	})
	defer unsubscribeStates()

	_, restored, err := app.service.Start(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !restored {
		return fmt.Errorf("%w: run 'tt login' first", domain.ErrNotAuthenticated)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-states:
			writeState(status, st)
			if errors.Is(st.Err, domain.ErrChannelUnreachable) {
				return st.Err
			}
		case ev := <-events:
			if onEvent(ev) {
				return nil
			}
		}
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func writeState(w io.Writer, st domain.ChannelStatus) {
	line := "channel " + st.State.String()
	if st.State == domain.ChannelReconnecting {
		line += fmt.Sprintf(" (attempt %d)", st.Attempt)
	}
	if st.Err != nil {
		line += ": " + st.Err.Error()
	}
	_, _ = fmt.Fprintln(w, line)
}

// writeEvent prints ev and returns how many notifications it carried.
func writeEvent(w io.Writer, ev domain.Event, now time.Time) int {
	switch {
	case ev.Replay != nil:
		_, _ = fmt.Fprintf(w, "history: %d missed notification(s)\n", ev.Replay.Count)
		for _, n := range ev.Replay.Notifications {
			writeNotification(w, ev.Kind, n, now)
		}
		return len(ev.Replay.Notifications)
	case ev.Notification != nil:
		writeNotification(w, ev.Kind, *ev.Notification, now)
		return 1
	default:
		return 0
	}
}

func writeNotification(w io.Writer, kind domain.EventKind, n domain.Notification, now time.Time) {
	parts := []string{fmt.Sprintf("[%s]", kind)}
	if title := strings.TrimSpace(n.Title); title != "" {
		parts = append(parts, title)
	}
	if msg := strings.TrimSpace(n.Message); msg != "" {
		parts = append(parts, "- "+msg)
	}
	if n.Metadata.TaskID != "" {
		parts = append(parts, "(task "+n.Metadata.TaskID+")")
	}
	if !n.CreatedAt.IsZero() && !now.IsZero() {
		parts = append(parts, now.Sub(n.CreatedAt).Round(time.Second).String()+" ago")
	}
	_, _ = fmt.Fprintln(w, strings.Join(parts, " "))
}
