package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	authadapter "github.com/bnema/tasktracker-cli/internal/adapters/auth"
	"github.com/bnema/tasktracker-cli/internal/adapters/realtime"
	bellrender "github.com/bnema/tasktracker-cli/internal/adapters/render/notifications"
	statusadapter "github.com/bnema/tasktracker-cli/internal/adapters/render/status"
	sqliterepo "github.com/bnema/tasktracker-cli/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/tasktracker-cli/internal/adapters/repo/toml"
	chainstore "github.com/bnema/tasktracker-cli/internal/adapters/secrets/chain"
	filestore "github.com/bnema/tasktracker-cli/internal/adapters/secrets/file"
	"github.com/bnema/tasktracker-cli/internal/application"
	"github.com/bnema/tasktracker-cli/internal/config"
	"github.com/bnema/tasktracker-cli/internal/logging"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

type app struct {
	cfg            config.Config
	service        *application.Service
	logger         logging.Logger
	closers        []io.Closer
	statusRenderer func(application.Status, statusadapter.RenderOptions) (string, error)
	bellRenderer   func(bellrender.Bell, bellrender.RenderOptions) (string, error)
	now            func() time.Time
}

func wireApp() (*app, error) {
	v := viper.New()
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Enabled: cfg.Logging.Enabled,
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
	}, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	sessions, closer, err := newSessionRepository(v, cfg)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	service := application.NewService(application.ServiceDeps{
		Sessions: sessions,
		Auth: authadapter.Client{
			API:            authadapter.API{BaseURL: cfg.API.BaseURL},
			HTTPClient:     httpClient,
			RequestTimeout: cfg.API.Timeout,
		},
		Dialer: realtime.Dialer{
			URL:              cfg.Realtime.URL,
			HandshakeTimeout: cfg.API.Timeout,
			Logger:           logger.With("component", "realtime"),
		},
		HTTPClient: httpClient,
		BaseURL:    cfg.API.BaseURL,
		Channel: application.ChannelConfig{
			MaxAttempts: cfg.Realtime.MaxAttempts,
			Backoff: application.Backoff{
				Base:   cfg.Realtime.BaseDelay,
				Max:    cfg.Realtime.MaxDelay,
				Jitter: cfg.Realtime.Jitter,
			},
		},
		LedgerCapacity: cfg.Ledger.Capacity,
		Clock:          ports.SystemClock{},
		Logger:         logger,
	})

	closers := []io.Closer{logger}
	if closer != nil {
		closers = append([]io.Closer{closer}, closers...)
	}

	return &app{
		cfg:            cfg,
		service:        service,
		logger:         logger,
		closers:        closers,
		statusRenderer: statusadapter.Render,
		bellRenderer:   bellrender.Render,
		now:            time.Now,
	}, nil
}

func newSessionRepository(v *viper.Viper, cfg config.Config) (ports.SessionRepository, io.Closer, error) {
	switch cfg.Session.Backend {
	case config.BackendSQLite:
		repo, err := sqliterepo.NewRepository(cfg.Session.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("wire sqlite session repository: %w", err)
		}
		return repo, repo, nil
	default:
		secrets, err := newSecretStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		repo, err := tomlrepo.NewRepository(v, secrets)
		if err != nil {
			return nil, nil, fmt.Errorf("wire session repository: %w", err)
		}
		return repo, nil, nil
	}
}

func newSecretStore(cfg config.Config) (ports.SecretStore, error) {
	if cfg.Session.SecretsBackend == config.SecretsFile {
		return filestore.NewStore(cfg.Session.SecretsDir), nil
	}

	store, err := chainstore.NewPassFirstWithFileFallback(cfg.Session.SecretsDir)
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}
	return store, nil
}

// run wraps a command body so the channel and storage are released once the
// command returns.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		return errors.Join(err, a.shutdown())
	}
}

func (a *app) shutdown() error {
	errs := []error{a.service.Close()}
	for _, closer := range a.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
