package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/clock"
)

const (
	maxResponseBytes = 1 << 20
	// maxErrorText bounds relay text copied into queue entry errors.
	maxErrorText = 512
)

// WebhookPublisher hands content to an HTTP endpoint that does the actual
// platform call (a Zapier/Make style relay or an in-house gateway).
type WebhookPublisher struct {
	logger *zap.Logger
	client *http.Client
	clock  clock.Clock
}

type publishRequest struct {
	Platform string                   `json:"platform"`
	Retry    bool                     `json:"retry"`
	Content  publisher.PublishContent `json:"content"`
}

type publishResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func NewWebhookPublisher(logger *zap.Logger, clk clock.Clock, timeout time.Duration) publisher.PlatformPublisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookPublisher{
		logger: logger,
		clock:  clk,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *WebhookPublisher) GetPlatformName() string {
	return "webhook"
}

func (p *WebhookPublisher) ValidateConfig(config publisher.PublishConfig) error {
	if config.Config["url"] == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

func (p *WebhookPublisher) PublishDirect(ctx context.Context, content publisher.PublishContent, config publisher.PublishConfig) (*publisher.PublishResult, error) {
	return p.send(ctx, config.Config["url"], content, config, false)
}

// RetryDirect posts to retry_url when configured, otherwise to url with retry=true.
func (p *WebhookPublisher) RetryDirect(ctx context.Context, content publisher.PublishContent, config publisher.PublishConfig) (*publisher.PublishResult, error) {
	url := config.Config["retry_url"]
	if url == "" {
		url = config.Config["url"]
	}
	return p.send(ctx, url, content, config, true)
}

func (p *WebhookPublisher) send(ctx context.Context, url string, content publisher.PublishContent, config publisher.PublishConfig, retry bool) (*publisher.PublishResult, error) {
	body, err := json.Marshal(publishRequest{
		Platform: config.PlatformName,
		Retry:    retry,
		Content:  content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", content.ID)
	if token := config.Config["token"]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, truncate(string(respBody)))
	}

	var parsed publishResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if parsed.Error != "" {
		return publisher.Failed(fmt.Errorf("%s", truncate(parsed.Error))), nil
	}

	p.logger.Debug("Webhook accepted content",
		zap.String("content_id", content.ID),
		zap.String("platform", config.PlatformName),
		zap.Bool("retry", retry),
		zap.String("publish_id", parsed.ID))

	return publisher.Succeeded(parsed.ID, parsed.URL, p.clock.Now()), nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorText {
		return s
	}
	return strings.ToValidUTF8(s[:maxErrorText], "") + "..."
}
