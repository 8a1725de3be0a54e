package llm

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Provider names accepted by New.
const (
	ProviderOpenAI     = "openai"
	ProviderAzure      = "azure"
	ProviderOllama     = "ollama"
	ProviderExtractive = "extractive"
)

// FactoryConfig selects and configures a completion provider.
type FactoryConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	APIVersion string
}

// New builds the completer named in cfg.
func New(cfg FactoryConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return openAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	case ProviderAzure:
		if cfg.BaseURL == "" {
			return nil, errors.ConfigError("azure completion needs completion.base_url (the deployment URL)", nil)
		}
		version := cfg.APIVersion
		if version == "" {
			version = "2024-02-01"
		}
		return openAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, APIVersion: version})
	case ProviderOllama:
		return NewOllama(OllamaConfig{Host: cfg.BaseURL, Model: cfg.Model}), nil
	case ProviderExtractive:
		return Extractive{}, nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown completion provider %q", cfg.Provider), nil).
			WithSuggestion("use one of openai, azure, ollama, extractive")
	}
}

func openAI(cfg OpenAIConfig) (Completer, error) {
	c, err := NewOpenAI(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
