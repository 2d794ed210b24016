package ai

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeLLM answers with a fixed reply, optionally split into stream chunks.
type fakeLLM struct {
	reply  string
	chunks []string
	err    error
	calls  atomic.Int32

	mu       sync.Mutex
	lastMsgs []Message
}

func (f *fakeLLM) Chat(_ context.Context, messages []Message, _ GenerateOptions) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastMsgs = messages
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, messages []Message, _ GenerateOptions) (<-chan string, <-chan error) {
	f.calls.Add(1)
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	chunks := f.chunks
	if len(chunks) == 0 && f.reply != "" {
		chunks = strings.SplitAfter(f.reply, " ")
	}

	go func() {
		defer close(errChan)
		defer close(contentChan)
		for _, c := range chunks {
			select {
			case contentChan <- c:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
		if f.err != nil {
			errChan <- f.err
		}
	}()
	return contentChan, errChan
}

// fakeEmbedder maps each text to a deterministic two-element vector.
type fakeEmbedder struct {
	err   error
	dims  int
	calls atomic.Int32
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), float32(i + 1)}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

// gatedLLM blocks every Chat call until release is closed or the call's
// context ends. entered is closed on the first call.
type gatedLLM struct {
	fakeLLM
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedLLM(reply string) *gatedLLM {
	return &gatedLLM{
		fakeLLM: fakeLLM{reply: reply},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedLLM) Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.fakeLLM.Chat(ctx, messages, opts)
}

// gatedEmbedder is the embedding counterpart of gatedLLM.
type gatedEmbedder struct {
	fakeEmbedder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeEmbedder.EmbedBatch(ctx, texts)
}

// waitFor fails the test when ch is not closed or written within a second.
func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// collect drains a stream and returns the concatenated text and the terminal error.
func collect(contentChan <-chan string, errChan <-chan error) ([]string, error) {
	var chunks []string
	for c := range contentChan {
		chunks = append(chunks, c)
	}
	return chunks, <-errChan
}
