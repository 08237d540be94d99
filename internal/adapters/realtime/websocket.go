// Package realtime implements the notification channel transport over a
// websocket carrying JSON envelopes of the form {"event": name, "data": payload}.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/bnema/tasktracker-cli/internal/domain"
	"github.com/bnema/tasktracker-cli/internal/logging"
	"github.com/bnema/tasktracker-cli/internal/ports"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second

	userIDQueryParam = "userId"
	maxFrameBytes    = 1 << 20
)

// Wire event names accepted on the channel. Both the colon form used by the
// notifications service and the hyphenated form are recognised.
var wireEvents = map[string]domain.EventKind{
	"task:created":          domain.EventTaskCreated,
	"task:updated":          domain.EventTaskUpdated,
	"comment:new":           domain.EventCommentCreated,
	"comment:created":       domain.EventCommentCreated,
	"notifications:history": domain.EventHistoryReplay,
	"task-created":          domain.EventTaskCreated,
	"task-updated":          domain.EventTaskUpdated,
	"comment-created":       domain.EventCommentCreated,
	"history-replay":        domain.EventHistoryReplay,
}

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Dialer connects to the notifications service, addressing the user by query
// parameter.
type Dialer struct {
	URL              string
	HTTPClient       *http.Client
	HandshakeTimeout time.Duration
	Logger           logging.Logger
}

var _ ports.RealtimeDialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, userID domain.UserID) (ports.RealtimeConn, error) {
	endpoint, err := channelURL(d.URL, userID)
	if err != nil {
		return nil, err
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", redactQuery(endpoint), err)
	}
	conn.SetReadLimit(maxFrameBytes)

	logger := d.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Conn{conn: conn, logger: logger}, nil
}

// Conn decodes envelopes into domain events.
type Conn struct {
	conn   *websocket.Conn
	logger logging.Logger
}

// Next returns the next recognised event. Frames with an unknown event name or
// an undecodable payload are logged and skipped.
func (c *Conn) Next(ctx context.Context) (domain.Event, error) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if isNormalClosure(err) {
				return domain.Event{}, ports.ErrConnectionClosed
			}
			return domain.Event{}, err
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Warn("skipping malformed realtime frame", "error", err)
			continue
		}

		ev, err := DecodeEnvelope(envelope)
		if err != nil {
			c.logger.Warn("skipping realtime frame", "event", envelope.Event, "error", err)
			continue
		}
		return ev, nil
	}
}

func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && isNormalClosure(err) {
		return nil
	}
	return err
}

// DecodeEnvelope maps a wire envelope to a domain event.
func DecodeEnvelope(envelope Envelope) (domain.Event, error) {
	kind, ok := wireEvents[strings.TrimSpace(envelope.Event)]
	if !ok {
		return domain.Event{}, fmt.Errorf("unknown event %q", envelope.Event)
	}

	if kind == domain.EventHistoryReplay {
		var replay domain.HistoryReplay
		if err := json.Unmarshal(envelope.Data, &replay); err != nil {
			return domain.Event{}, fmt.Errorf("decode history replay: %w", err)
		}
		return domain.Event{Kind: kind, Replay: &replay}, nil
	}

	var n domain.Notification
	if err := json.Unmarshal(envelope.Data, &n); err != nil {
		return domain.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		return domain.Event{}, errors.New("notification without id")
	}
	return domain.Event{Kind: kind, Notification: &n}, nil
}

func channelURL(raw string, userID domain.UserID) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("realtime url is required")
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("realtime url must use ws or wss, got %q", parsed.Scheme)
	}

	query := parsed.Query()
	query.Set(userIDQueryParam, string(userID))
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func isNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
