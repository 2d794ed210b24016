package rag

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/hrygo/atabot/store"
)

// MaxFAQResults caps the FAQ entries in a bundle.
const MaxFAQResults = 3

// DefaultSimilarityThreshold is the minimum FAQ similarity, exclusive.
const DefaultSimilarityThreshold = 0.7

// Embedder produces vectors for a batch of texts, or reports them absent.
type Embedder interface {
	Available() bool
	Embed(ctx context.Context, texts []string) ([][]float32, bool)
}

// Bundle is the per-query selection of relevant knowledge.
// Zero-valued fields are absent.
type Bundle struct {
	CompanyInfo string
	Services    []store.Service
	FAQ         []store.FAQItem
	Contacts    map[string]string
}

// IsEmpty reports whether no section was selected.
func (b Bundle) IsEmpty() bool {
	return b.CompanyInfo == "" && len(b.Services) == 0 && len(b.FAQ) == 0 && len(b.Contacts) == 0
}

// Retriever answers relevance queries against one immutable knowledge snapshot.
type Retriever struct {
	data      store.CompanyData
	index     [][]float32
	embedder  Embedder
	threshold float64
	decider   *RetrievalDecider
}

// NewRetriever creates a retriever. index must be nil or aligned with data.FAQ;
// a misaligned index is discarded and the keyword fallback is used.
func NewRetriever(data store.CompanyData, index [][]float32, embedder Embedder, threshold float64) *Retriever {
	if index != nil && len(index) != len(data.FAQ) {
		slog.Warn("discarding misaligned faq index", "vectors", len(index), "faq", len(data.FAQ))
		index = nil
	}
	return &Retriever{
		data:      data,
		index:     index,
		embedder:  embedder,
		threshold: threshold,
		decider:   NewRetrievalDecider(),
	}
}

// HasIndex reports whether FAQ vector search is possible.
func (r *Retriever) HasIndex() bool {
	return len(r.index) > 0
}

// Retrieve selects the knowledge relevant to query. It never fails; embedding
// problems degrade to keyword matching.
func (r *Retriever) Retrieve(ctx context.Context, query string) Bundle {
	queryLower := strings.ToLower(query)
	tokens := strings.Fields(queryLower)
	decision := r.decider.Decide(queryLower)

	var bundle Bundle
	if decision.CompanyInfo {
		bundle.CompanyInfo = r.data.Description
	}
	bundle.Services = r.matchServices(queryLower, tokens)
	bundle.FAQ = r.matchFAQ(ctx, query, tokens)
	if decision.Contacts && len(r.data.Contacts) > 0 {
		bundle.Contacts = make(map[string]string, len(r.data.Contacts))
		for k, v := range r.data.Contacts {
			bundle.Contacts[k] = v
		}
	}
	return bundle
}

// matchServices keeps services named in the query or whose description
// contains any query token, in catalogue order.
func (r *Retriever) matchServices(queryLower string, tokens []string) []store.Service {
	var matched []store.Service
	for _, svc := range r.data.Services {
		name := strings.ToLower(svc.Name)
		if name != "" && strings.Contains(queryLower, name) {
			matched = append(matched, svc)
			continue
		}
		if containsAnyToken(strings.ToLower(svc.Description), tokens) {
			matched = append(matched, svc)
		}
	}
	return matched
}

func (r *Retriever) matchFAQ(ctx context.Context, query string, tokens []string) []store.FAQItem {
	if len(r.data.FAQ) == 0 {
		return nil
	}
	if r.HasIndex() && r.embedder != nil && r.embedder.Available() {
		if items, ok := r.searchFAQ(ctx, query); ok {
			return items
		}
	}
	return r.keywordFAQ(tokens)
}

type scoredFAQ struct {
	item  store.FAQItem
	score float64
}

// searchFAQ ranks FAQ entries by similarity to the query vector.
func (r *Retriever) searchFAQ(ctx context.Context, query string) ([]store.FAQItem, bool) {
	vectors, ok := r.embedder.Embed(ctx, []string{query})
	if !ok || len(vectors) == 0 {
		return nil, false
	}
	queryVec := vectors[0]

	var candidates []scoredFAQ
	for i, vec := range r.index {
		score := CosineSimilarity(queryVec, vec)
		if score > r.threshold {
			candidates = append(candidates, scoredFAQ{item: r.data.FAQ[i], score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > MaxFAQResults {
		candidates = candidates[:MaxFAQResults]
	}
	items := make([]store.FAQItem, len(candidates))
	for i, c := range candidates {
		items[i] = c.item
	}
	return items, true
}

// keywordFAQ keeps the first entries whose question contains any query token.
func (r *Retriever) keywordFAQ(tokens []string) []store.FAQItem {
	var items []store.FAQItem
	for _, faq := range r.data.FAQ {
		if containsAnyToken(strings.ToLower(faq.Question), tokens) {
			items = append(items, faq)
			if len(items) == MaxFAQResults {
				break
			}
		}
	}
	return items
}

func containsAnyToken(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
