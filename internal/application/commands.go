package application

import "github.com/bnema/tasktracker-cli/internal/ports"

type PasswordLoginCommand struct {
	Credentials ports.Credentials
}

func (c PasswordLoginCommand) Valid() bool {
	return c.Credentials.Identifier != "" && c.Credentials.Password != ""
}
