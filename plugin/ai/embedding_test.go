package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError error
		wantErr     bool
	}{
		{
			name: "voyage provider",
			cfg: &EmbeddingConfig{
				Provider: "voyage",
				Model:    "voyage-3.5-lite",
				APIKey:   "test-key",
				BaseURL:  "https://api.voyageai.com/v1",
			},
		},
		{
			name: "openai provider",
			cfg: &EmbeddingConfig{
				Provider:   "openai",
				Model:      "text-embedding-3-small",
				APIKey:     "test-key",
				Dimensions: 512,
			},
		},
		{
			name: "missing api key",
			cfg: &EmbeddingConfig{
				Provider: "voyage",
				Model:    "voyage-3.5-lite",
			},
			expectError: ErrEmbeddingDisabled,
			wantErr:     true,
		},
		{
			name: "unsupported provider",
			cfg: &EmbeddingConfig{
				Provider: "unsupported",
				Model:    "model",
				APIKey:   "test-key",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewEmbeddingService(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.expectError != nil {
					assert.ErrorIs(t, err, tt.expectError)
				}
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.cfg.Dimensions, svc.Dimensions())
		})
	}
}
