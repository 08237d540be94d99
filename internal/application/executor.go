package application

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
	"github.com/bnema/tasktracker-cli/internal/logging"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	CorrelationHeader     = "X-Correlation-Id"

	authBoundaryPrefix = "/auth/"
	maxResponseBytes   = 4 << 20
)

type Request struct {
	Method string
	// Path is relative to the API base URL, e.g. "/tasks".
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// HTTPError is a non-2xx response. Code and Message come from the JSON error
// envelope when the server sends one.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func newHTTPError(resp Response) *HTTPError {
	httpErr := &HTTPError{StatusCode: resp.StatusCode}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err == nil {
		httpErr.Code = envelope.Code
		httpErr.Message = envelope.Message
		if httpErr.Message == "" {
			httpErr.Message = envelope.Error
		}
	}
	return httpErr
}

// Renewer yields a fresh token pair on demand.
type Renewer interface {
	Renew(ctx context.Context) (domain.TokenPair, error)
}

// Executor sends requests with the session's bearer token and recovers from
// one expired access token per request by renewing and retrying once.
type Executor struct {
	client  *http.Client
	baseURL string
	store   *CredentialStore
	renewer Renewer
	logger  logging.Logger
}

func NewExecutor(client *http.Client, baseURL string, store *CredentialStore, renewer Renewer, logger logging.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Executor{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		renewer: renewer,
		logger:  logger,
	}
}

func (e *Executor) Execute(ctx context.Context, req Request) (Response, error) {
	authBoundary := isAuthBoundary(req.Path)

	session, ok := e.store.Session()
	if !ok && !authBoundary {
		return Response{}, domain.ErrNotAuthenticated
	}

	resp, err := e.send(ctx, req, session.AccessToken)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode != http.StatusUnauthorized || authBoundary {
		return result(resp)
	}

	unauthorized := newHTTPError(resp)
	token, err := e.retryToken(ctx, session.AccessToken)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", unauthorized, err)
	}

	resp, err = e.send(ctx, req, token)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return Response{}, fmt.Errorf("%w: %w", domain.ErrRequestUnauthorizedAfterRetry, newHTTPError(resp))
	}

	return result(resp)
}

// retryToken picks the token for the single retry. A token that already
// differs from the rejected one was rotated by a concurrent renewal and is
// used as is.
func (e *Executor) retryToken(ctx context.Context, rejected string) (string, error) {
	current, ok := e.store.Session()
	if !ok {
		return "", domain.ErrNotAuthenticated
	}
	if current.AccessToken != "" && current.AccessToken != rejected {
		return current.AccessToken, nil
	}

	tokens, err := e.renewer.Renew(ctx)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

func (e *Executor) send(ctx context.Context, req Request, token string) (Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target := e.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	correlationID := uuid.NewString()
	httpReq.Header.Set(CorrelationHeader, correlationID)

	e.logger.Debug("sending request", "method", method, "path", req.Path, "correlation_id", correlationID)

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}

	return Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func result(resp Response) (Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, newHTTPError(resp)
	}
	return resp, nil
}

func isAuthBoundary(path string) bool {
	return strings.HasPrefix("/"+strings.TrimLeft(path, "/"), authBoundaryPrefix)
}

// IsUnauthorized reports whether err carries a 401 response.
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}
