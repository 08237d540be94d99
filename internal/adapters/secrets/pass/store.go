// Package pass keeps session tokens in pass(1), the standard unix password
// manager.
package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

// ErrUnavailable means pass cannot serve requests on this machine: the binary
// is missing or the password store was never initialised.
var ErrUnavailable = errors.New("pass command unavailable")

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// stderr fragments printed by pass, mapped to sentinel errors.
var knownFailures = []struct {
	fragment string
	err      error
}{
	{fragment: "is not in the password store", err: domain.ErrSecretNotFound},
	{fragment: "password store is empty", err: ErrUnavailable},
	{fragment: `try "pass init"`, err: ErrUnavailable},
}

type Store struct {
	run runFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPassCommand}
}

// Put inserts value as a multiline entry so JSON payloads are kept verbatim.
func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := s.do(ctx, "put", key, value+"\n", "insert", "--multiline", "--force", key)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	stdout, err := s.do(ctx, "get", key, "", "show", key)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(stdout, "\r\n"), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.do(ctx, "delete", key, "", "rm", "--force", key)
	return err
}

func (s *Store) do(ctx context.Context, op, key, input string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("pass %s: empty key", op)
	}

	stdout, stderr, err := s.run(ctx, input, args...)
	if err != nil {
		return "", classify(op, key, err, stderr)
	}

	return stdout, nil
}

func classify(op, key string, err error, stderr string) error {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}

	lowered := strings.ToLower(stderr)
	for _, failure := range knownFailures {
		if strings.Contains(lowered, strings.ToLower(failure.fragment)) {
			return fmt.Errorf("pass %s %q: %w", op, key, failure.err)
		}
	}
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}

	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}

func runPassCommand(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
