package slack

import (
	"context"
	"errors"
	"testing"

	"github.com/halverson/gamefleet/internal/notify"
	slackapi "github.com/slack-go/slack"
)

type mockClient struct {
	channel string
	options []slackapi.MsgOption
	err     error
	calls   int
}

func (m *mockClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	m.options = options
	return "", "", m.err
}

func TestNew_Validations(t *testing.T) {
	if _, err := New(Opts{Channel: "C123"}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := New(Opts{BotToken: "xoxb-test"}); err == nil {
		t.Error("expected error for missing channel")
	}
}

func TestSend(t *testing.T) {
	client := &mockClient{}
	s, err := New(Opts{Channel: "C123", Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.Send(context.Background(), notify.Alert{
		Title:    "Instance 3 queued for replacement",
		Body:     "worker-3 unreachable",
		Severity: notify.SeverityCritical,
		Fields:   map[string]string{"index": "3"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.calls != 1 || client.channel != "C123" {
		t.Errorf("calls = %d, channel = %q", client.calls, client.channel)
	}
}

func TestSend_APIError(t *testing.T) {
	client := &mockClient{err: errors.New("channel_not_found")}
	s, _ := New(Opts{Channel: "C123", Client: client})

	if err := s.Send(context.Background(), notify.Alert{Title: "t"}); err == nil {
		t.Fatal("expected error from failed post")
	}
}

func TestColorFor(t *testing.T) {
	if colorFor(notify.SeverityCritical) != "danger" {
		t.Error("critical should map to danger")
	}
	if colorFor(notify.SeverityWarn) != "warning" {
		t.Error("warn should map to warning")
	}
	if colorFor(notify.SeverityInfo) != "good" {
		t.Error("info should map to good")
	}
}
