package slack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alekspetrov/taskboard/internal/logging"
)

// rateLimitedReply is sent instead of handling a message once a channel runs
// out of tokens.
const rateLimitedReply = ":hourglass: You're sending messages faster than I can keep up. Please wait a moment and try again."

// MessageHandler answers one inbound event. The returned text is posted back
// to where the event came from; an empty string posts nothing.
type MessageHandler func(ctx context.Context, evt *Event) string

// Transport wires Socket Mode events to a MessageHandler and posts replies.
// Events are handled concurrently, one goroutine each.
type Transport struct {
	socket          *SocketModeClient
	client          *Client
	allowedChannels map[string]bool
	allowedUsers    map[string]bool
	limiter         *RateLimiter
	handler         MessageHandler
	wg              sync.WaitGroup
	log             *slog.Logger
}

// NewTransport creates a new Slack transport.
func NewTransport(socket *SocketModeClient, client *Client, cfg *Config) *Transport {
	allowedCh := make(map[string]bool)
	for _, id := range cfg.AllowedChannels {
		allowedCh[id] = true
	}
	allowedUs := make(map[string]bool)
	for _, id := range cfg.AllowedUsers {
		allowedUs[id] = true
	}

	return &Transport{
		socket:          socket,
		client:          client,
		allowedChannels: allowedCh,
		allowedUsers:    allowedUs,
		limiter:         NewRateLimiter(cfg.RateLimit),
		log:             logging.WithComponent("slack.transport"),
	}
}

// SetMessageHandler sets the callback for incoming events.
func (t *Transport) SetMessageHandler(fn MessageHandler) {
	t.handler = fn
}

// Run listens for events until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (t *Transport) Run(ctx context.Context) error {
	if t.handler == nil {
		return fmt.Errorf("slack transport: no message handler set")
	}

	events, err := t.socket.Listen(ctx)
	if err != nil {
		return fmt.Errorf("failed to start Socket Mode listener: %w", err)
	}
	defer t.wg.Wait()

	t.log.Info("Slack Socket Mode listener started")

	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Slack listener stopping")
			return nil
		case <-cleanup.C:
			t.limiter.Cleanup(time.Hour)
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.processEvent(ctx, evt)
			}()
		}
	}
}

func (t *Transport) processEvent(ctx context.Context, evt *Event) {
	log := t.log.With(
		slog.String("kind", evt.Kind),
		slog.String("channel_id", evt.ChannelID),
		slog.String("user_id", evt.UserID))

	if !t.IsAllowed(evt.ChannelID, evt.UserID) {
		log.Debug("Ignoring message from unauthorized channel/user")
		return
	}

	var reply string
	if t.limiter.Allow(evt.ChannelID) {
		reply = t.handler(ctx, evt)
	} else {
		log.Warn("Slack message rate limited")
		reply = rateLimitedReply
	}
	if reply == "" {
		return
	}

	if err := t.Reply(ctx, evt, reply); err != nil {
		log.Warn("Failed to send Slack reply", slog.Any("error", err))
	}
}

// Reply answers an event: slash commands through response_url, mentions in
// their thread, direct messages inline.
func (t *Transport) Reply(ctx context.Context, evt *Event, text string) error {
	if evt.IsSlashCommand() && evt.ResponseURL != "" {
		return t.client.Respond(ctx, evt.ResponseURL, text)
	}
	_, err := t.client.PostMessage(ctx, &Message{
		Channel:  evt.ChannelID,
		Text:     text,
		ThreadTS: evt.ReplyThread(),
	})
	return err
}

// IsAllowed checks if a channel/user is authorized.
func (t *Transport) IsAllowed(channelID, userID string) bool {
	// If no restrictions configured, allow all
	if len(t.allowedChannels) == 0 && len(t.allowedUsers) == 0 {
		return true
	}
	if t.allowedChannels[channelID] {
		return true
	}
	return t.allowedUsers[userID]
}
