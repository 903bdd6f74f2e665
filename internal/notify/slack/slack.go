// Package slack delivers fleet alerts to a Slack channel.
package slack

import (
	"context"
	"fmt"
	"sort"

	"github.com/halverson/gamefleet/internal/notify"
	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sink posts alerts to one Slack channel as colored attachments.
type Sink struct {
	client  slackClient
	channel string
}

// Opts holds parameters for creating a Slack Sink.
type Opts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string // channel ID to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Sink.
func New(opts Opts) (*Sink, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}

	s := &Sink{channel: opts.Channel, client: opts.Client}
	if s.client == nil {
		s.client = slackapi.New(opts.BotToken)
	}
	return s, nil
}

// Send posts the alert as a single attachment colored by severity.
func (s *Sink) Send(ctx context.Context, a notify.Alert) error {
	att := slackapi.Attachment{
		Color: colorFor(a.Severity),
		Title: a.Title,
		Text:  a.Body,
	}
	for _, k := range sortedKeys(a.Fields) {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: k,
			Value: a.Fields[k],
			Short: true,
		})
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slackapi.MsgOptionAttachments(att))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close is a no-op; the Slack client holds no connection.
func (s *Sink) Close() error { return nil }

func colorFor(severity string) string {
	switch severity {
	case notify.SeverityCritical:
		return "danger"
	case notify.SeverityWarn:
		return "warning"
	default:
		return "good"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
