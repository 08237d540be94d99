package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/tasktracker-cli/internal/adapters/render/status"
	"github.com/bnema/tasktracker-cli/internal/application"
)

type statusOutput struct {
	Authenticated   bool        `json:"authenticated"`
	User            *userOutput `json:"user,omitempty"`
	HasRefreshToken bool        `json:"hasRefreshToken"`
	Channel         string      `json:"channel"`
	ChannelError    string      `json:"channelError,omitempty"`
	UnreadCount     int         `json:"unreadCount"`
	Retained        int         `json:"retained"`
	RenewalSince    *time.Time  `json:"renewalSince,omitempty"`
}

type userOutput struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			if _, _, err := app.service.Restore(cmd.Context()); err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			return writeStatusOutput(cmd, app, app.service.Status(), asJSON)
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func writeStatusOutput(cmd *cobra.Command, app *app, status application.Status, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(newStatusOutput(status))
	}

	rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func newStatusOutput(status application.Status) statusOutput {
	out := statusOutput{
		Authenticated:   status.Authenticated,
		HasRefreshToken: status.HasRefresh,
		Channel:         status.Channel.State.String(),
		UnreadCount:     status.UnreadCount,
		Retained:        status.Retained,
		RenewalSince:    status.RenewalSince,
	}
	if status.Authenticated {
		out.User = &userOutput{
			ID:       string(status.User.ID),
			Username: status.User.Username,
			Email:    status.User.Email,
		}
	}
	if status.Channel.Err != nil {
		out.ChannelError = status.Channel.Err.Error()
	}

	return out
}
