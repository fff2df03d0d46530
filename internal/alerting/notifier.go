// Package alerting pushes hot-deal notifications to Telegram.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dealscout/internal/storage"
)

// Notifier delivers opportunity alerts.
type Notifier interface {
	NotifyOpportunity(ctx context.Context, opp storage.Opportunity) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// NotifyOpportunity sends one deal alert via the sendMessage API.
func (n *TelegramNotifier) NotifyOpportunity(ctx context.Context, opp storage.Opportunity) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(opp),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("title", opp.Title).
		Str("verdict", opp.DealVerdict).
		Msg("deal alert sent")
	return nil
}

func renderMessage(opp storage.Opportunity) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", opp.DealVerdict, opp.Title))
	builder.WriteString(fmt.Sprintf("Price: $%s\n", opp.CurrentPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Est. sell: $%s\n", opp.EstimatedSellPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Est. profit: $%s\n", opp.EstimatedProfit.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Score: %d/100\n", opp.DealScore))
	if opp.Condition != "" {
		builder.WriteString(fmt.Sprintf("Condition: %s\n", opp.Condition))
	}
	if opp.ItemURL != "" {
		builder.WriteString(opp.ItemURL)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
