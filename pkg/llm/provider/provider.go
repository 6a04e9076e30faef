// Package provider selects and constructs the configured llm.Client.
package provider

import (
	"fmt"
	"os"
	"strings"

	"github.com/forkyhq/forky/pkg/llm"
	"github.com/forkyhq/forky/pkg/llm/provider/anthropic"
	"github.com/forkyhq/forky/pkg/llm/provider/ollama"
	"github.com/forkyhq/forky/pkg/llm/provider/openai"
)

const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"
)

// Config holds the knobs for creating a model client.
type Config struct {
	Provider string // "openai", "anthropic", or "ollama"
	Model    string // e.g. "gpt-4o-mini", "claude-haiku-4-5", "llama3.2"
	APIKey   string // explicit API key (highest priority)
	BaseURL  string // override base URL
}

// HasCredentials reports whether an API key can be resolved from the config
// without creating a client. Ollama needs no key.
func HasCredentials(cfg Config) bool {
	if cfg.APIKey != "" {
		return true
	}
	p := strings.ToLower(cfg.Provider)
	if p == providerOllama {
		return true
	}
	return resolveAPIKeyFromEnv(p) != ""
}

// New creates an llm.Client based on the provided configuration.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//  3. Fall back to Ollama at localhost:11434
func New(cfg Config) (llm.Client, error) {
	p := strings.ToLower(cfg.Provider)

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKeyFromEnv(p)
	}

	// No key and the provider is not explicitly ollama: the local daemon is
	// the only backend that can still work.
	if apiKey == "" && p != providerOllama {
		p = providerOllama
	}

	switch p {
	case providerOpenAI, "":
		return openai.New(apiKey, cfg.Model, cfg.BaseURL), nil
	case providerAnthropic:
		return anthropic.New(apiKey, cfg.Model, cfg.BaseURL), nil
	case providerOllama:
		return ollama.New(cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func resolveAPIKeyFromEnv(provider string) string {
	switch provider {
	case providerAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case providerOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}
