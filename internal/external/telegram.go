package external

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"climatewatch/internal/types"
)

const telegramAPIBase = "https://api.telegram.org"

// telegramTarget names the breaker of the Telegram client. It is not a
// weather provider and never appears in a priority list.
const telegramTarget types.ProviderID = "telegram"

// TelegramClientConfig configures the Telegram Bot API client.
type TelegramClientConfig struct {
	BaseURL  string // Override for testing
	BotToken types.SecretString
	Breaker  BreakerSettings
	Options  []BaseClientOption
	Logger   *slog.Logger
}

// TelegramClient posts text messages through the Bot API.
type TelegramClient struct {
	base    *BaseClient
	token   types.SecretString
	baseURL string
	logger  *slog.Logger
}

// NewTelegramClient creates a Telegram client.
func NewTelegramClient(httpClient *http.Client, cfg TelegramClientConfig) *TelegramClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = telegramAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	breaker := cfg.Breaker
	if breaker.ConsecutiveFailures == 0 {
		breaker = DefaultBreakerSettings()
	}
	return &TelegramClient{
		base:    NewBaseClient(httpClient, telegramTarget, breaker, cfg.Options...),
		token:   cfg.BotToken,
		baseURL: baseURL,
		logger:  logger,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage delivers text to chatID.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(telegramMessage{ChatID: chatID, Text: text})
	if err != nil {
		return types.NewAppError(types.ErrCodeNotifyFailed, "failed to encode telegram message", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.base.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/bot"+c.token.Unmask()+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeNotifyFailed, "failed to build telegram request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "telegram send failed", "code", string(types.CodeOf(err)))
		return types.NewAppError(types.ErrCodeNotifyFailed, "telegram request failed", err)
	}
	defer resp.Body.Close()

	var out telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.NewAppError(types.ErrCodeNotifyFailed, "failed to decode telegram response", err)
	}
	if !out.OK {
		return types.NewAppError(types.ErrCodeNotifyFailed, "telegram rejected message: "+out.Description, nil)
	}
	return nil
}
