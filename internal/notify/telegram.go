package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramURL = "https://api.telegram.org"

// Telegram sends messages to one chat through the Bot API.
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  defaultTelegramURL,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Attempts: 3,
		Backoff:  time.Second,
	}
}

// Send posts text to sendMessage, retrying transport errors and non-2xx
// responses up to Attempts times.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return errors.New("telegram: bot token or chat id missing")
	}
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = defaultTelegramURL
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	body, err := json.Marshal(map[string]any{"chat_id": t.ChatID, "text": text})
	if err != nil {
		return fmt.Errorf("telegram: encode: %w", err)
	}

	attempts := t.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * t.Backoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return lastErr
}
