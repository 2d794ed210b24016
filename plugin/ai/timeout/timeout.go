// Package timeout defines centralized timeout constants for AI operations.
package timeout

import "time"

// AI operation timeout constants.
const (
	// ProviderTimeout is the default bound for a single call to the generation provider.
	ProviderTimeout = 30 * time.Second

	// StreamTimeout is the timeout for streaming responses from LLM.
	StreamTimeout = 5 * time.Minute

	// EmbeddingTimeout is the timeout for embedding generation.
	EmbeddingTimeout = 30 * time.Second

	// AdmissionTimeout is how long a request may wait for an admission slot.
	AdmissionTimeout = 10 * time.Second

	// ReloadTimeout bounds a knowledge reload, including the FAQ index rebuild.
	ReloadTimeout = 2 * time.Minute

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
