package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// telegramMessage is the Bot API sendMessage request body.
type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	ParseMode             string `json:"parse_mode"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// TelegramTarget sends the rendered HTML summary to one or more chats
// through a bot.
type TelegramTarget struct {
	name     string
	endpoint string
	chatIDs  []string
	client   *http.Client
}

// NewTelegramTarget creates a TelegramTarget. apiBase defaults to
// DefaultTelegramAPI and client may be nil.
func NewTelegramTarget(name, apiBase, token string, chatIDs []string, client *http.Client) *TelegramTarget {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	ids := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &TelegramTarget{
		name:     name,
		endpoint: strings.TrimRight(apiBase, "/") + "/bot" + token + "/sendMessage",
		chatIDs:  ids,
		client:   client,
	}
}

// Name returns the target name.
func (t *TelegramTarget) Name() string {
	return t.name
}

// Notify sends n to every chat concurrently. A failing chat does not stop
// the others; all failures are joined.
func (t *TelegramTarget) Notify(ctx context.Context, n Notification) error {
	errs := make([]error, len(t.chatIDs))
	var g errgroup.Group
	for i, id := range t.chatIDs {
		i, id := i, id
		g.Go(func() error {
			msg := telegramMessage{
				ChatID:                id,
				ParseMode:             "HTML",
				Text:                  n.Rendered.HTML,
				DisableWebPagePreview: true,
			}
			if err := postJSON(ctx, t.client, t.endpoint, nil, msg); err != nil {
				errs[i] = fmt.Errorf("telegram chat %s: %w", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
