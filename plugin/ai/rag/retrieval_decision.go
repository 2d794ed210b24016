// Package rag selects the knowledge-base facts relevant to a user query.
// It combines rule-driven intent triggers, keyword matching and FAQ vector
// similarity with a keyword fallback.
package rag

import (
	"strings"
)

// RetrievalDecision reports which optional knowledge sections a query asks for.
type RetrievalDecision struct {
	CompanyInfo bool
	Contacts    bool
}

// Trigger patterns, matched as substrings of the lower-cased query.
var (
	companyTriggers = []string{
		"perusahaan", "company", "tentang", "about", "apa itu", "what is",
	}

	contactTriggers = []string{
		"kontak", "contact", "hubungi", "telp", "phone", "email", "alamat", "address",
	}
)

// RetrievalDecider detects section intents from trigger words.
type RetrievalDecider struct {
	companyTriggers []string
	contactTriggers []string
}

// NewRetrievalDecider creates a new retrieval decider with default patterns.
func NewRetrievalDecider() *RetrievalDecider {
	return &RetrievalDecider{
		companyTriggers: companyTriggers,
		contactTriggers: contactTriggers,
	}
}

// Decide inspects the lower-cased query for trigger words.
func (d *RetrievalDecider) Decide(queryLower string) RetrievalDecision {
	return RetrievalDecision{
		CompanyInfo: containsAny(queryLower, d.companyTriggers),
		Contacts:    containsAny(queryLower, d.contactTriggers),
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
