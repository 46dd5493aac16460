package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo methods Discord uses, enabling
// test mocks.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts events as embeds to one Discord channel. Post is called
// concurrently from request handlers and the sweeper; mu guards the
// open-once gateway state.
type Discord struct {
	sess      discordSession
	channelID string

	mu     sync.Mutex
	opened bool
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel id is required")
	}
	d := &Discord{sess: opts.Session, channelID: opts.ChannelID}
	if d.sess == nil {
		if opts.BotToken == "" {
			return nil, fmt.Errorf("notify: discord bot token is required")
		}
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		d.sess = dg
	}
	return d, nil
}

// Post sends the event as an embed, opening the gateway on first use. A
// failed open leaves the notifier closed so the next post retries it.
func (d *Discord) Post(ctx context.Context, ev Event) error {
	if err := d.open(); err != nil {
		return err
	}
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       hexToInt(severityColor(ev.Severity)),
	}
	for _, f := range ev.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}
	if _, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}

func (d *Discord) open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil
	}
	if err := d.sess.Open(); err != nil {
		return fmt.Errorf("notify: discord open: %w", err)
	}
	d.opened = true
	return nil
}

// Close shuts down the gateway connection.
func (d *Discord) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	d.opened = false
	return d.sess.Close()
}

// hexToInt converts a "#rrggbb" color to the int Discord expects.
func hexToInt(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}
