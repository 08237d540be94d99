package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bnema/tasktracker-cli/internal/application"
	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

func newLoginCmd(app *app) *cobra.Command {
	var (
		identifier    string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long:  "Sign in with an email or username and a password. The password is read from the terminal without echo, or from the first line of stdin with --password-stdin.",
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

			if strings.TrimSpace(identifier) == "" {
				line, err := p.readLine("Email or username: ")
				if err != nil {
					return fmt.Errorf("read identifier: %w", err)
				}
				identifier = line
			}

			password, err := p.readPassword("Password: ", passwordStdin)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			var user domain.User
			err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Signing in...", func(ctx context.Context) error {
				var loginErr error
				user, loginErr = app.service.LoginWithPassword(ctx, application.PasswordLoginCommand{
					Credentials: ports.Credentials{
						Identifier: strings.TrimSpace(identifier),
						Password:   password,
					},
				})
				return loginErr
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayUser(user))
			return err
		}),
	}

	cmd.Flags().StringVar(&identifier, "identifier", "", "Email or username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			_, restored, err := app.service.Restore(cmd.Context())
			if err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			if err := app.service.Logout(cmd.Context()); err != nil {
				return err
			}

			msg := "Logged out"
			if !restored {
				msg = "No active session"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		}),
	}
}

type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, reader: bufio.NewReader(in), out: out}
}

func (p *prompter) readLine(prompt string) (string, error) {
	if prompt != "" {
		_, _ = fmt.Fprint(p.out, prompt)
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword disables echo when the input is a terminal.
func (p *prompter) readPassword(prompt string, fromStdin bool) (string, error) {
	if fromStdin {
		return p.readLine("")
	}

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(p.out, prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	return p.readLine(prompt)
}

func displayUser(user domain.User) string {
	name := strings.TrimSpace(user.Username)
	if name == "" {
		return string(user.ID)
	}
	return fmt.Sprintf("%s (%s)", name, user.ID)
}
