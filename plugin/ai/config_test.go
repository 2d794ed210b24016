package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/atabot/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	prof := &profile.Profile{
		LLMProvider:       "poe",
		LLMModel:          "ChatGPT-3.5-Turbo",
		LLMAPIKey:         "poe-key",
		LLMBaseURL:        "https://api.poe.com/v1",
		EmbeddingProvider: "voyage",
		EmbeddingModel:    "voyage-3.5-lite",
		EmbeddingAPIKey:   "voyage-key",
		EmbeddingBaseURL:  "https://api.voyageai.com/v1",
		EmbeddingCacheTTL: 24 * time.Hour,
		ResponseCacheTTL:  30 * time.Minute,
		RequestTimeout:    30 * time.Second,
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "poe", cfg.LLM.Provider)
	assert.Equal(t, "ChatGPT-3.5-Turbo", cfg.LLM.Model)
	assert.Equal(t, "poe-key", cfg.LLM.APIKey)
	assert.Equal(t, "https://api.poe.com/v1", cfg.LLM.BaseURL)

	assert.Equal(t, "voyage", cfg.Embedding.Provider)
	assert.Equal(t, "voyage-3.5-lite", cfg.Embedding.Model)
	assert.Equal(t, "voyage-key", cfg.Embedding.APIKey)
	assert.Equal(t, "https://api.voyageai.com/v1", cfg.Embedding.BaseURL)
	assert.True(t, cfg.Embedding.Enabled())

	assert.Equal(t, 24*time.Hour, cfg.EmbeddingCacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.ResponseCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestNewConfigFromProfile_EmbeddingDisabled(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{
		LLMProvider:       "ollama",
		LLMModel:          "qwen2.5",
		EmbeddingProvider: "voyage",
		EmbeddingModel:    "voyage-3.5-lite",
	})

	assert.False(t, cfg.Embedding.Enabled())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid",
			cfg: Config{
				LLM:       LLMConfig{Provider: "poe", Model: "ChatGPT-3.5-Turbo"},
				Embedding: EmbeddingConfig{Provider: "voyage", Model: "voyage-3.5-lite", APIKey: "k"},
			},
		},
		{
			name:    "missing provider",
			cfg:     Config{LLM: LLMConfig{Model: "m"}},
			wantErr: true,
		},
		{
			name:    "missing model",
			cfg:     Config{LLM: LLMConfig{Provider: "poe"}},
			wantErr: true,
		},
		{
			name: "embedding key without model",
			cfg: Config{
				LLM:       LLMConfig{Provider: "poe", Model: "m"},
				Embedding: EmbeddingConfig{Provider: "voyage", APIKey: "k"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
