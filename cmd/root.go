package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tt",
		Short:         "Task tracker CLI (tt): session and live notifications",
		Long:          "tt signs in to the task tracker, keeps the session and its tokens on disk, calls the API with automatic token renewal, and follows live task notifications from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newStatusCmd(app),
		newRequestCmd(app),
		newWatchCmd(app),
		newNotificationsCmd(app),
	)

	return rootCmd
}
