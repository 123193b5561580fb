package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender posts messages to one Telegram chat through the Bot API.
type TelegramSender struct {
	bot    *tele.Bot
	chatID tele.ChatID
}

// NewTelegram builds an offline bot: no getMe call is made until the first send.
// apiURL overrides the Bot API base URL and may be empty. Every Bot API request
// is bounded by timeout; a non-positive timeout selects DefaultSendTimeout.
func NewTelegram(token string, chatID int64, apiURL string, timeout time.Duration) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram: chat_id is required")
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b, chatID: tele.ChatID(chatID)}, nil
}

// Send honors ctx by abandoning the in-flight call; telebot has no context API.
// An abandoned call still ends once the client timeout expires.
func (t *TelegramSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return &SendError{Provider: ProviderTelegram, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chatID, text)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return &SendError{Provider: ProviderTelegram, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return &SendError{Provider: ProviderTelegram, Err: err}
		}
		return nil
	}
}
