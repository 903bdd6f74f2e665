// Package discord delivers fleet alerts to a Discord channel.
package discord

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
	"github.com/halverson/gamefleet/internal/notify"
)

// Embed colors per severity.
const (
	colorInfo     = 0x57f287
	colorWarn     = 0xfee75c
	colorCritical = 0xed4245
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Sink posts alerts to one Discord channel as embeds. It uses the REST API
// only; no Gateway connection is opened.
type Sink struct {
	sess    session
	channel string
}

// Opts holds parameters for creating a Discord Sink.
type Opts struct {
	BotToken string
	Channel  string
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Sink.
func New(opts Opts) (*Sink, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}

	s := &Sink{channel: opts.Channel, sess: opts.Session}
	if s.sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		s.sess = dg
	}
	return s, nil
}

// Send posts the alert as a single embed colored by severity.
func (s *Sink) Send(ctx context.Context, a notify.Alert) error {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Body,
		Color:       colorFor(a.Severity),
	}
	for _, k := range sortedKeys(a.Fields) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   k,
			Value:  a.Fields[k],
			Inline: true,
		})
	}

	_, err := s.sess.ChannelMessageSendEmbed(s.channel, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send embed: %w", err)
	}
	return nil
}

// Close closes the underlying session.
func (s *Sink) Close() error { return s.sess.Close() }

func colorFor(severity string) int {
	switch severity {
	case notify.SeverityCritical:
		return colorCritical
	case notify.SeverityWarn:
		return colorWarn
	default:
		return colorInfo
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
