package slack

import (
	"context"
	"fmt"

	"github.com/alekspetrov/taskboard/internal/reminders"
)

// Notifier posts task reminders to Slack. It implements reminders.Notifier.
type Notifier struct {
	client *Client
}

// NewNotifier creates a new Slack notifier
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Notify posts one reminder to channel.
func (n *Notifier) Notify(ctx context.Context, channel string, r *reminders.Notification) error {
	msg := &Message{
		Channel: channel,
		Text:    r.Text(),
		Blocks:  ReminderBlocks(r),
	}
	if _, err := n.client.PostMessage(ctx, msg); err != nil {
		return fmt.Errorf("post reminder: %w", err)
	}
	return nil
}

// ReminderBlocks renders a reminder as a header, the title, client and
// priority fields, the due line and a "View Task" button.
func ReminderBlocks(r *reminders.Notification) []Block {
	return []Block{
		{
			Type: "header",
			Text: plainText(":bell: Task Reminder"),
		},
		{
			Type: "section",
			Text: mrkdwn(fmt.Sprintf("*%s*", r.Title)),
		},
		{
			Type: "section",
			Fields: []*TextObject{
				mrkdwn(fmt.Sprintf("*Client:*\n%s", r.ClientLabel())),
				mrkdwn(fmt.Sprintf("*Priority:*\n%s %s", r.Priority.Emoji(), r.Priority)),
			},
		},
		{
			Type: "section",
			Text: mrkdwn(fmt.Sprintf(":clock1: *Due %s*%s", r.Relative, r.Absolute)),
		},
		{
			Type: "actions",
			Elements: []Element{
				{
					Type:     "button",
					Text:     plainText("View Task"),
					URL:      r.URL,
					ActionID: "view_task",
				},
			},
		},
	}
}
