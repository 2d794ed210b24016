package ai

import (
	"errors"
	"time"

	"github.com/hrygo/atabot/internal/profile"
)

// Config represents AI provider configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig

	EmbeddingCacheTTL time.Duration
	ResponseCacheTTL  time.Duration
	RequestTimeout    time.Duration
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // voyage, openai, siliconflow
	Model      string // voyage-3.5-lite
	Dimensions int    // 0 lets the provider choose
	APIKey     string
	BaseURL    string
}

// Enabled reports whether an embedding capability is configured.
func (c *EmbeddingConfig) Enabled() bool {
	return c.APIKey != ""
}

// LLMConfig represents LLM configuration.
// Temperature and token limits are per call, taken from the bot persona.
type LLMConfig struct {
	Provider string // poe, openai, deepseek, ollama
	Model    string // ChatGPT-3.5-Turbo
	APIKey   string
	BaseURL  string
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: p.EmbeddingProvider,
			Model:    p.EmbeddingModel,
			APIKey:   p.EmbeddingAPIKey,
			BaseURL:  p.EmbeddingBaseURL,
		},
		LLM: LLMConfig{
			Provider: p.LLMProvider,
			Model:    p.LLMModel,
			APIKey:   p.LLMAPIKey,
			BaseURL:  p.LLMBaseURL,
		},
		EmbeddingCacheTTL: p.EmbeddingCacheTTL,
		ResponseCacheTTL:  p.ResponseCacheTTL,
		RequestTimeout:    p.RequestTimeout,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.Embedding.Enabled() && c.Embedding.Model == "" {
		return errors.New("embedding model is required when an embedding API key is set")
	}
	return nil
}
