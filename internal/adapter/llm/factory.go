package llm

import (
	"context"
	"fmt"
	"os"

	"prdgen/config"
	"prdgen/internal/port"
)

// New builds the configured inference endpoint. The API key is read from
// the environment variable named in the config, never stored in the file.
func New(ctx context.Context, cfg config.LLMConfig) (port.LLM, error) {
	switch cfg.Provider {
	case "gemini", "":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
		return NewGeminiClient(ctx, key, cfg.Model)
	case "openai":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
		if cfg.BaseURL != "" {
			return NewOpenAICompatibleClient(key, cfg.Model, cfg.BaseURL), nil
		}
		return NewOpenAIClient(key, cfg.Model), nil
	case "deepseek":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
		return NewDeepSeekClient(key, cfg.Model), nil
	case "ollama":
		return NewOllamaClient(cfg.Model, cfg.BaseURL), nil
	case "scripted":
		return NewScripted(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
