package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/pkg/config"
	apperrors "github.com/univtimetable/optimizer-api/pkg/errors"
)

// Message roles of the chat contract.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// tokenRefreshMargin renews the access token slightly before it expires.
const tokenRefreshMargin = 5 * time.Minute

// Message is one turn of a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OAuth2-protected chat-completion provider. Requests are
// serialized: the provider is rate-limited and a job never needs more than
// one outstanding call.
type Client struct {
	cfg    config.LLMConfig
	http   *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a client from the provider configuration.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Chat sends a single-turn chat-completion request and returns the raw text
// of the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.ensureToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"model":       c.cfg.Model,
		"messages":    messages,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrLLMUnavailable.Code, apperrors.ErrLLMUnavailable.Status, "chat completion request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("chat completion returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(raw, 512)))
		return "", apperrors.Clone(apperrors.ErrLLMUnavailable,
			fmt.Sprintf("chat completion failed with status %d", resp.StatusCode))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contains no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// ensureToken returns a valid access token, refreshing through the OAuth2
// client-credentials endpoint when the cached one is near expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("scope", c.cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("RqUID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrLLMUnavailable.Code, apperrors.ErrLLMUnavailable.Status, "token request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Clone(apperrors.ErrLLMUnavailable,
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response contains no access token")
	}

	c.accessToken = parsed.AccessToken
	// expires_at is a millisecond epoch.
	c.tokenExpiry = time.UnixMilli(parsed.ExpiresAt)
	if parsed.ExpiresAt == 0 {
		c.tokenExpiry = time.Now().Add(30 * time.Minute)
	}

	return c.accessToken, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
