package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

const (
	DefaultLoginPath   = "auth/login"
	DefaultRefreshPath = "auth/refresh"

	maxAuthResponseBytes = 1 << 20
	correlationHeader    = "X-Correlation-Id"
)

var ErrLoginRejected = errors.New("invalid credentials")

type API struct {
	BaseURL     string
	LoginPath   string
	RefreshPath string
}

// Client talks to the auth boundary of the task tracker API.
type Client struct {
	API            API
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.Authenticator = Client{}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type sessionResponse struct {
	User         userPayload `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c Client) Login(ctx context.Context, credentials ports.Credentials) (ports.LoginResult, error) {
	body := map[string]string{
		"identifier": strings.TrimSpace(credentials.Identifier),
		"password":   credentials.Password,
	}

	var payload sessionResponse
	status, message, err := c.post(ctx, c.path(c.API.LoginPath, DefaultLoginPath), body, &payload)
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("login: %w", err)
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
		return ports.LoginResult{}, fmt.Errorf("%w: %s", ErrLoginRejected, message)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ports.LoginResult{}, fmt.Errorf("login: status %d: %s", status, message)
	}
	if payload.User.ID == "" || payload.AccessToken == "" {
		return ports.LoginResult{}, errors.New("login response missing user id or access token")
	}

	return ports.LoginResult{
		User: domain.User{
			ID:       domain.UserID(payload.User.ID),
			Username: payload.User.Username,
			Email:    payload.User.Email,
		},
		Tokens: domain.TokenPair{
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
		},
	}, nil
}

// Refresh exchanges refreshToken for a new pair. 400, 401 and 403 mean the
// token is no longer valid; anything else is treated as transient.
func (c Client) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	var payload sessionResponse
	status, message, err := c.post(ctx, c.path(c.API.RefreshPath, DefaultRefreshPath), map[string]string{"refreshToken": refreshToken}, &payload)
	if err != nil {
		return domain.TokenPair{}, &domain.RenewalTransportError{Err: err}
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.TokenPair{}, fmt.Errorf("%w: %s", domain.ErrRenewalRejected, message)
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return domain.TokenPair{}, &domain.RenewalTransportError{Err: fmt.Errorf("refresh: status %d: %s", status, message)}
	case payload.AccessToken == "":
		return domain.TokenPair{}, &domain.RenewalTransportError{Err: errors.New("refresh response missing access token")}
	}

	return domain.TokenPair{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

func (c Client) path(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// post sends body as JSON. A non-2xx status is not an error: it is returned
// together with the server message so callers can classify it.
func (c Client) post(ctx context.Context, path string, body any, out any) (int, string, error) {
	endpoint, err := buildAPIURL(c.API.BaseURL, path)
	if err != nil {
		return 0, "", err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("encode request: %w", err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(correlationHeader, uuid.NewString())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthResponseBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, errorMessage(resp.StatusCode, data), nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, "", fmt.Errorf("decode response: %w", err)
	}

	return resp.StatusCode, "", nil
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func errorMessage(status int, data []byte) string {
	var payload errorResponse
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}

// buildAPIURL resolves path against baseURL, keeping any path prefix of the
// base such as "/api".
func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	endpoint, err := parsed.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
