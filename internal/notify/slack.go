package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
)

// SlackPoster is the subset of *slack.Client the relay uses.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackRelay posts SLA warnings and breaches to a channel. Other notification
// types are ignored.
type SlackRelay struct {
	api     SlackPoster
	channel string
}

func NewSlackRelay(api SlackPoster, channel string) *SlackRelay {
	return &SlackRelay{api: api, channel: channel}
}

func (r *SlackRelay) Relay(ctx context.Context, n domain.Notification, payload Payload) error {
	var (
		color  string
		fields []slack.AttachmentField
	)
	switch p := payload.(type) {
	case SLAWarningPayload:
		color = "warning"
		fields = []slack.AttachmentField{
			{Title: "Deadline", Value: p.Deadline.UTC().Format("2006-01-02 15:04 MST"), Short: true},
			{Title: "Remaining", Value: fmt.Sprintf("%d min", p.MinutesRemaining), Short: true},
		}
	case SLABreachPayload:
		color = "danger"
		fields = []slack.AttachmentField{
			{Title: "Deadline", Value: p.Deadline.UTC().Format("2006-01-02 15:04 MST"), Short: true},
			{Title: "Overdue", Value: fmt.Sprintf("%d min", p.MinutesOverdue), Short: true},
		}
	default:
		return nil
	}

	summary := payload.Summary()
	attachment := slack.Attachment{
		Color:  color,
		Title:  fmt.Sprintf("%s %s", summary.TicketNumber, summary.TicketTitle),
		Text:   summary.Content,
		Fields: fields,
	}
	_, _, err := r.api.PostMessageContext(ctx, r.channel,
		slack.MsgOptionText(summary.Title, false),
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return fmt.Errorf("post %s to slack: %w", n.Type, err)
	}
	return nil
}
