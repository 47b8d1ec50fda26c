// internal/llmclient/anthropic_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements schemas.LLMClient for the Claude Messages API.
type AnthropicClient struct {
	client anthropic.Client
	logger *zap.Logger
	config config.LLMModelConfig
}

var _ schemas.LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient initializes the client. Retries are handled here, so the
// SDK's own retry loop is disabled.
func NewAnthropicClient(cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API Key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		config: cfg,
		logger: logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends a single user turn and returns the concatenated text blocks.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		startTime := time.Now()
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return c.classifyError(err)
		}

		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return backoff.Permanent(fmt.Errorf("anthropic API returned no text content (stop reason: %s)", resp.StopReason))
		}

		c.logger.Debug("LLM generation complete (Anthropic)",
			zap.String("model", string(params.Model)),
			zap.Duration("duration", time.Since(startTime)),
			zap.Int64("prompt_tokens", resp.Usage.InputTokens),
			zap.Int64("completion_tokens", resp.Usage.OutputTokens),
		)
		responseContent = sb.String()
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (c *AnthropicClient) buildParams(req schemas.GenerationRequest) anthropic.MessageNewParams {
	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := firstPositiveInt(req.Options.MaxTokens, c.config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Options.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if topK := firstPositiveInt(req.Options.TopK, c.config.TopK); topK > 0 {
		params.TopK = anthropic.Int(int64(topK))
	}
	return params
}

func (c *AnthropicClient) classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		c.logger.Warn("Anthropic API returned error status", zap.Int("status", apiErr.StatusCode))
		// 529 is Anthropic's "overloaded" status.
		if isTransientStatus(apiErr.StatusCode) || apiErr.StatusCode == 529 {
			return err
		}
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return err
}

func (c *AnthropicClient) Close() error { return nil }
