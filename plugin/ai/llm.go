package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// GenerateOptions carries the per-call sampling settings.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat.
	Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)

	// ChatStream performs streaming chat.
	// The content channel closes when generation ends; the error channel then
	// yields at most one error and closes.
	ChatStream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan string, <-chan error)
}

type llmService struct {
	model    llms.Model
	provider string
}

// NewLLMService creates a new LLMService.
func NewLLMService(cfg *LLMConfig) (LLMService, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "poe", "deepseek", "openai":
		// Poe and DeepSeek expose OpenAI-compatible chat completions.
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)

	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	return &llmService{
		model:    model,
		provider: cfg.Provider,
	}, nil
}

func (s *llmService) Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	resp, err := s.model.GenerateContent(ctx, convertMessages(messages), callOptions(opts)...)
	if err != nil {
		return "", asGenerationError(ctx, s.provider, err)
	}

	if len(resp.Choices) == 0 {
		return "", asGenerationError(ctx, s.provider, errors.New("empty response"))
	}

	return resp.Choices[0].Content, nil
}

func (s *llmService) ChatStream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(contentChan)

		callOpts := append(callOptions(opts),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case contentChan <- string(chunk):
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}),
		)

		_, err := s.model.GenerateContent(ctx, convertMessages(messages), callOpts...)
		if err != nil {
			errChan <- asGenerationError(ctx, s.provider, err)
		}
	}()

	return contentChan, errChan
}

func callOptions(opts GenerateOptions) []llms.CallOption {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}

func convertMessages(messages []Message) []llms.MessageContent {
	llmMessages := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "user":
			role = llms.ChatMessageTypeHuman
		case "assistant":
			role = llms.ChatMessageTypeAI
		}

		llmMessages[i] = llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		}
	}
	return llmMessages
}

// Helper for creating system prompts
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// FormatMessages lays out an optional system prompt, the history and the current user turn.
func FormatMessages(systemPrompt string, userContent string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(userContent))
	return messages
}
