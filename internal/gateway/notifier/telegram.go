package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	telegramAttempts   = 3
)

// Telegram 通知器：成交发生时将摘要推送至指定群/频道。
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

func NewTelegram(botToken, chatID, baseURL string) *Telegram {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultTelegramAPI
	}
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  baseURL,
		Client:   &http.Client{Timeout: 15 * time.Second},
		sleep:    sleepCtx,
	}
}

// SendText 发送文本消息（最多 3 次，间隔递增）。
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram bot_token and chat_id are required")
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < telegramAttempts; i++ {
		if i > 0 {
			if err := t.sleep(ctx, time.Duration(i)*time.Second); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
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
		if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
