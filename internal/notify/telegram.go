package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// telegramMaxText is the sendMessage text limit.
const telegramMaxText = 4096

var telegramIcons = map[string]string{
	EventTrade:     "\U0001F4C8",
	EventBreaker:   "\U0001F6D1",
	EventError:     "⚠️",
	EventLifecycle: "ℹ️",
}

// TelegramSender posts alerts to one chat through the Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: senderTimeout},
	}
}

// Send uses HTML parse mode with the title in bold. Both parts are escaped
// because symbols and exit reasons carry underscores that break Markdown.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	if icon, ok := telegramIcons[msg.Event]; ok {
		b.WriteString(icon + " ")
	}
	fmt.Fprintf(&b, "<b>%s</b>\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body))
	text := b.String()
	if len(text) > telegramMaxText {
		text = strings.ToValidUTF8(text[:telegramMaxText-1], "") + "…"
	}

	return postJSON(ctx, t.client, t.Name(), t.baseURL+"/bot"+t.token+"/sendMessage", map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

func (t *TelegramSender) Name() string { return "telegram" }
