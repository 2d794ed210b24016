package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbeddingDisabled reports that no embedding capability is configured.
// It is permanent for the process lifetime.
var ErrEmbeddingDisabled = errors.New("embedding capability not configured")

// GenerationError is a failed generation call. It never carries generated text.
type GenerationError struct {
	Provider string
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// IsGenerationError reports whether err is, or wraps, a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// IsTimeout reports whether err stems from an exceeded deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// asGenerationError wraps err unless it already is a GenerationError.
// A deadline on ctx is preferred as the cause so callers can classify timeouts.
func asGenerationError(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if IsGenerationError(err) {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return &GenerationError{Provider: provider, Cause: err}
}
