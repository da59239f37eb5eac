package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alekspetrov/taskboard/internal/logging"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2
)

// Keepalive defaults. A connection that produces neither a frame nor a pong
// within PongWait is treated as dead.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 60 * time.Second
)

// ConnectionObserver is told about the Socket Mode connection lifecycle.
type ConnectionObserver interface {
	MarkConnected()
	MarkDegraded(err error)
	Heartbeat()
}

type noopObserver struct{}

func (noopObserver) MarkConnected()     {}
func (noopObserver) MarkDegraded(error) {}
func (noopObserver) Heartbeat()         {}

// SocketModeClient streams events from Slack Socket Mode. The app-level
// token (xapp-...) opens connections; the WebSocket is kept alive with pings
// and redialed with backoff when it drops.
type SocketModeClient struct {
	api      *Client
	observer ConnectionObserver
	log      *slog.Logger

	PingInterval time.Duration
	PongWait     time.Duration
}

// NewSocketModeClient creates a Socket Mode client for an app-level token.
func NewSocketModeClient(appToken string) *SocketModeClient {
	return NewSocketModeClientWithBaseURL(appToken, slackAPIURL)
}

// NewSocketModeClientWithBaseURL points the client at another Web API base.
func NewSocketModeClientWithBaseURL(appToken, baseURL string) *SocketModeClient {
	return &SocketModeClient{
		api:          NewClientWithBaseURL(appToken, baseURL),
		observer:     noopObserver{},
		log:          logging.WithComponent("slack.socketmode"),
		PingInterval: defaultPingInterval,
		PongWait:     defaultPongWait,
	}
}

// SetObserver registers a lifecycle observer. Nil restores the no-op one.
func (s *SocketModeClient) SetObserver(o ConnectionObserver) {
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
}

var (
	// ErrAuthFailure means Slack rejected the app-level token.
	ErrAuthFailure = errors.New("slack socket mode: authentication failed")
	// ErrConnectionOpen covers every other apps.connections.open failure.
	ErrConnectionOpen = errors.New("slack socket mode: failed to open connection")
)

var authErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
}

// OpenConnection asks apps.connections.open for a fresh WebSocket URL.
func (s *SocketModeClient) OpenConnection(ctx context.Context) (string, error) {
	var result struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := s.api.post(ctx, s.api.baseURL+"/apps.connections.open", nil, &result); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionOpen, err)
	}
	switch {
	case !result.OK && authErrors[result.Error]:
		return "", fmt.Errorf("%w: %s", ErrAuthFailure, result.Error)
	case !result.OK:
		return "", fmt.Errorf("%w: %s", ErrConnectionOpen, result.Error)
	case result.URL == "":
		return "", fmt.Errorf("%w: no WebSocket URL returned", ErrConnectionOpen)
	}
	return result.URL, nil
}

// Listen opens the first connection synchronously, so a bad token fails
// fast, then streams events on the returned channel until ctx is done. The
// channel is closed when the client gives up.
func (s *SocketModeClient) Listen(ctx context.Context) (<-chan *Event, error) {
	url, err := s.OpenConnection(ctx)
	if err != nil {
		s.observer.MarkDegraded(err)
		return nil, fmt.Errorf("initial connection: %w", err)
	}

	ch := make(chan *Event, 64)
	go func() {
		defer close(ch)
		s.run(ctx, url, ch)
	}()
	return ch, nil
}

// run keeps one session alive at a time. Each lost session is followed by a
// backoff sleep and a fresh URL, since Slack URLs are single use.
func (s *SocketModeClient) run(ctx context.Context, url string, ch chan<- *Event) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		if url != "" {
			connected, err := s.session(ctx, url, ch)
			if ctx.Err() != nil {
				return
			}
			if connected {
				backoff = initialBackoff
			}
			if err != nil {
				s.observer.MarkDegraded(err)
				s.log.Warn("socket mode connection lost",
					slog.Any("error", err),
					slog.Duration("backoff", backoff))
			} else {
				s.log.Info("socket mode reconnecting", slog.Duration("backoff", backoff))
			}
		}

		if !wait(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)

		next, err := s.OpenConnection(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.observer.MarkDegraded(err)
			s.log.Warn("failed to reopen socket mode connection",
				slog.Any("error", err),
				slog.Duration("backoff", backoff))
		}
		url = next
	}
}

// session dials url and reads until the connection ends. connected reports
// whether the dial itself succeeded.
func (s *SocketModeClient) session(ctx context.Context, url string, ch chan<- *Event) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	s.log.Info("socket mode connected")
	return true, s.readLoop(ctx, conn, ch)
}

// readLoop reads envelopes, acknowledges them and emits parsed events. A nil
// return means Slack asked for a reconnect.
func (s *SocketModeClient) readLoop(ctx context.Context, conn *websocket.Conn, ch chan<- *Event) error {
	done := make(chan struct{})
	defer close(done)

	// Close the connection when ctx is cancelled to unblock ReadMessage.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.PongWait))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error {
		s.observer.Heartbeat()
		return extend()
	})
	conn.SetPingHandler(func(appData string) error {
		s.observer.Heartbeat()
		_ = extend()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	go s.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		_ = extend()
		s.observer.Heartbeat()

		envelopeID, envelopeType, evt, parseErr := parseEnvelope(data)
		if parseErr != nil {
			s.log.Error("failed to parse envelope", slog.Any("error", parseErr))
		}

		// Slack redelivers anything not acknowledged within 3 seconds.
		if envelopeID != "" {
			if ackErr := acknowledge(conn, envelopeID); ackErr != nil {
				s.log.Error("failed to acknowledge envelope",
					slog.String("envelope_id", envelopeID),
					slog.Any("error", ackErr))
			}
		}

		switch envelopeType {
		case EnvelopeTypeHello:
			s.observer.MarkConnected()
			continue
		case EnvelopeTypeDisconnect:
			s.log.Info("disconnect envelope received, will reconnect")
			return nil
		}

		if evt != nil {
			select {
			case ch <- evt:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *SocketModeClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.log.Debug("ping write failed", slog.Any("error", err))
				return
			}
		}
	}
}

func acknowledge(conn *websocket.Conn, envelopeID string) error {
	return conn.WriteJSON(struct {
		EnvelopeID string `json:"envelope_id"`
	}{envelopeID})
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffFactor
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
