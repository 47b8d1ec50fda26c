// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// NewClient is a factory function that creates an LLMClient based on the model configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama)
	}
}

// NewRouterFromConfig builds one client per tier and wraps them in an LLMRouter.
// Both tiers share a client when they name the same model entry.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger, metrics *observability.Metrics) (*LLMRouter, error) {
	built := make(map[string]schemas.LLMClient, 2)
	clientFor := func(name string) (schemas.LLMClient, error) {
		if client, ok := built[name]; ok {
			return client, nil
		}
		modelCfg, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("llm model %q is not defined", name)
		}
		client, err := NewClient(ctx, modelCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for model %q: %w", name, err)
		}
		built[name] = client
		return client, nil
	}

	fast, err := clientFor(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := clientFor(cfg.DefaultPowerfulModel)
	if err != nil {
		_ = fast.Close()
		return nil, err
	}

	opts := []RouterOption{WithMetrics(metrics)}
	if cfg.RequestsPerMinute > 0 {
		opts = append(opts, WithRequestsPerMinute(cfg.RequestsPerMinute))
	}
	return NewLLMRouter(logger, fast, powerful, opts...)
}
