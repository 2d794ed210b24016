package rag

import (
	"context"
	"log/slog"

	"github.com/hrygo/atabot/store"
)

// FAQText is the text embedded for one FAQ entry.
func FAQText(item store.FAQItem) string {
	return item.Question + " " + item.Answer
}

// BuildFAQIndex embeds every FAQ entry. It returns nil when embeddings are
// unavailable or fail, which selects the keyword fallback.
func BuildFAQIndex(ctx context.Context, embedder Embedder, faq []store.FAQItem) [][]float32 {
	if embedder == nil || !embedder.Available() || len(faq) == 0 {
		return nil
	}

	texts := make([]string, len(faq))
	for i, item := range faq {
		texts[i] = FAQText(item)
	}

	vectors, ok := embedder.Embed(ctx, texts)
	if !ok || len(vectors) != len(faq) {
		slog.Warn("faq index unavailable, using keyword matching", "faq", len(faq))
		return nil
	}
	return vectors
}
