package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/halverson/gamefleet/internal/notify"
)

type mockSession struct {
	channel string
	embed   *discordgo.MessageEmbed
	err     error
	calls   int
	closed  bool
}

func (m *mockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.calls++
	m.channel = channelID
	m.embed = embed
	return nil, m.err
}

func (m *mockSession) Close() error {
	m.closed = true
	return nil
}

func TestNew_Validations(t *testing.T) {
	if _, err := New(Opts{Channel: "123"}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := New(Opts{BotToken: "token"}); err == nil {
		t.Error("expected error for missing channel")
	}
}

func TestSend(t *testing.T) {
	sess := &mockSession{}
	s, err := New(Opts{Channel: "123", Session: sess})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.Send(context.Background(), notify.Alert{
		Title:    "Instance 3 queued for replacement",
		Body:     "worker-3 unreachable",
		Severity: notify.SeverityCritical,
		Fields:   map[string]string{"index": "3", "retries": "4"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sess.calls != 1 || sess.channel != "123" {
		t.Errorf("calls = %d, channel = %q", sess.calls, sess.channel)
	}
	if sess.embed == nil || sess.embed.Color != colorCritical {
		t.Errorf("embed = %+v", sess.embed)
	}
	if len(sess.embed.Fields) != 2 {
		t.Errorf("fields = %d, want 2", len(sess.embed.Fields))
	}
}

func TestSend_APIError(t *testing.T) {
	sess := &mockSession{err: errors.New("missing access")}
	s, _ := New(Opts{Channel: "123", Session: sess})

	if err := s.Send(context.Background(), notify.Alert{Title: "t"}); err == nil {
		t.Fatal("expected error from failed send")
	}
}

func TestClose(t *testing.T) {
	sess := &mockSession{}
	s, _ := New(Opts{Channel: "123", Session: sess})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sess.closed {
		t.Error("Close should close the session")
	}
}
