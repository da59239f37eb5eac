package slack

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Event kinds emitted by the Socket Mode client.
const (
	EventAppMention   = "app_mention"
	EventDirect       = "message"
	EventSlashCommand = "slash_command"
)

// Envelope types sent by Slack over Socket Mode.
const (
	EnvelopeTypeHello      = "hello"
	EnvelopeTypeDisconnect = "disconnect"
	EnvelopeTypeEventsAPI  = "events_api"
	EnvelopeTypeSlashCmd   = "slash_commands"
)

// Event is a parsed inbound message the bot should answer.
type Event struct {
	Kind        string // EventAppMention, EventDirect or EventSlashCommand
	ChannelID   string
	UserID      string
	Text        string // mentions stripped and trimmed
	TS          string // message timestamp; replies to mentions thread under it
	ThreadTS    string
	Command     string // "/task" for slash commands
	ResponseURL string // slash command reply endpoint
}

// IsSlashCommand reports whether the event came from a slash command.
func (e *Event) IsSlashCommand() bool {
	return e.Kind == EventSlashCommand
}

// ReplyThread returns the thread a reply should go to. Mentions in channels
// are answered in-thread, direct messages inline.
func (e *Event) ReplyThread() string {
	if e.Kind != EventAppMention {
		return ""
	}
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// socketEnvelope is the outer Socket Mode envelope.
type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Reason     string          `json:"reason,omitempty"` // for disconnect
}

// eventsAPIPayload is the events_api wrapper inside the envelope.
type eventsAPIPayload struct {
	Type  string          `json:"type"` // "event_callback"
	Event json.RawMessage `json:"event"`
}

// innerEvent is the actual event inside the events_api payload.
type innerEvent struct {
	Type        string `json:"type"` // "message", "app_mention"
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type,omitempty"`
	User        string `json:"user"`
	Text        string `json:"text"`
	TS          string `json:"ts"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
}

// slashCommandPayload is the payload of a slash_commands envelope.
type slashCommandPayload struct {
	Command     string `json:"command"`
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ResponseURL string `json:"response_url"`
}

// mentionRegex matches Slack user mentions like <@U12345678>.
var mentionRegex = regexp.MustCompile(`<@[A-Z0-9]+>`)

// parseEnvelope parses a raw Socket Mode envelope. The envelope ID and type
// are returned for acknowledgement even when the event is ignored (nil).
func parseEnvelope(data []byte) (envelopeID, envelopeType string, event *Event, err error) {
	var env socketEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	envelopeID = env.EnvelopeID
	envelopeType = env.Type

	switch env.Type {
	case EnvelopeTypeEventsAPI:
		evt, err := parseEventsAPI(env.Payload)
		if err != nil {
			return envelopeID, envelopeType, nil, fmt.Errorf("parse events_api: %w", err)
		}
		return envelopeID, envelopeType, evt, nil
	case EnvelopeTypeSlashCmd:
		evt, err := parseSlashCommand(env.Payload)
		if err != nil {
			return envelopeID, envelopeType, nil, fmt.Errorf("parse slash command: %w", err)
		}
		return envelopeID, envelopeType, evt, nil
	default:
		return envelopeID, envelopeType, nil, nil
	}
}

// parseEventsAPI extracts an Event from an events_api payload. Only
// app_mention events and direct messages are kept.
func parseEventsAPI(data json.RawMessage) (*Event, error) {
	var payload eventsAPIPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal events_api payload: %w", err)
	}

	if payload.Type != "event_callback" {
		return nil, nil
	}

	var inner innerEvent
	if err := json.Unmarshal(payload.Event, &inner); err != nil {
		return nil, fmt.Errorf("unmarshal inner event: %w", err)
	}

	// Bot messages and subtypes (message_changed, bot_message, ...) are noise.
	if inner.BotID != "" || inner.Subtype != "" {
		return nil, nil
	}

	evt := &Event{
		ChannelID: inner.Channel,
		UserID:    inner.User,
		TS:        inner.TS,
		ThreadTS:  inner.ThreadTS,
	}

	switch inner.Type {
	case "app_mention":
		evt.Kind = EventAppMention
		evt.Text = stripMentions(inner.Text)
	case "message":
		if inner.ChannelType != "im" {
			return nil, nil
		}
		evt.Kind = EventDirect
		evt.Text = strings.TrimSpace(inner.Text)
		if evt.Text == "" {
			return nil, nil
		}
	default:
		return nil, nil
	}
	return evt, nil
}

func parseSlashCommand(data json.RawMessage) (*Event, error) {
	var cmd slashCommandPayload
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("unmarshal slash command: %w", err)
	}
	return &Event{
		Kind:        EventSlashCommand,
		ChannelID:   cmd.ChannelID,
		UserID:      cmd.UserID,
		Text:        strings.TrimSpace(cmd.Text),
		Command:     cmd.Command,
		ResponseURL: cmd.ResponseURL,
	}, nil
}

// stripMentions removes all <@USERID> mention patterns and trims whitespace.
func stripMentions(text string) string {
	cleaned := mentionRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(cleaned)
}
