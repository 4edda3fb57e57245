package notify

import (
	"context"
	"net/http"
	"time"
)

// Embed colour per event.
var discordColors = map[string]int{
	EventTrade:     0x2ecc71,
	EventBreaker:   0xe74c3c,
	EventError:     0xe67e22,
	EventLifecycle: 0x3498db,
}

// discordMaxDescription is the embed description limit.
const discordMaxDescription = 4096

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Footer      discordFooter `json:"footer"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts alerts to a channel webhook as one embed each.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: &http.Client{Timeout: senderTimeout}}
}

func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	desc := []rune(msg.Body)
	if len(desc) > discordMaxDescription {
		desc = append(desc[:discordMaxDescription-1], '…')
	}
	embed := discordEmbed{
		Title:       msg.Title,
		Description: string(desc),
		Color:       discordColors[msg.Event],
		Footer:      discordFooter{Text: msg.Event},
	}
	if !msg.At.IsZero() {
		embed.Timestamp = msg.At.UTC().Format(time.RFC3339)
	}
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, discordPayload{
		Username: "futuresbot",
		Embeds:   []discordEmbed{embed},
	})
}

func (d *DiscordSender) Name() string { return "discord" }
