package embed

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// FactoryConfig selects and configures a provider.
type FactoryConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	APIVersion string
	Dimensions int

	Resilient ResilientConfig
}

// NewProvider builds the raw provider named in cfg.
func NewProvider(cfg FactoryConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return openAI(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderAzure:
		if cfg.BaseURL == "" {
			return nil, errors.ConfigError("azure embeddings need embeddings.base_url (the deployment URL)", nil)
		}
		apiVersion := cfg.APIVersion
		if apiVersion == "" {
			apiVersion = "2024-02-01"
		}
		return openAI(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIVersion: apiVersion,
			Dimensions: cfg.Dimensions,
		})
	case ProviderOllama:
		return NewOllamaProvider(OllamaConfig{Host: cfg.BaseURL, Model: cfg.Model}), nil
	case ProviderStatic:
		return NewStaticProvider(), nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil).
			WithSuggestion("use one of openai, azure, ollama, static")
	}
}

func openAI(cfg OpenAIConfig) (Provider, error) {
	p, err := NewOpenAIProvider(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// New builds the provider named in cfg and wraps it in a Resilient embedder.
func New(cfg FactoryConfig) (*Resilient, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewResilient(p, cfg.Resilient), nil
}
