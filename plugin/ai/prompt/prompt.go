// Package prompt renders the generation prompt from the bot persona and a
// relevance bundle, and parses rendered prompts back into their sections.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/atabot/plugin/ai/rag"
	"github.com/hrygo/atabot/store"
)

// Section headings, in render order.
const (
	headingContext  = "Here is the relevant information to answer the user's question:"
	headingCompany  = "Company Description: "
	headingServices = "Relevant Services:"
	headingFAQ      = "Relevant FAQ:"
	headingContacts = "Contact Information:"
	headingQuestion = "User Question: "
	closing         = "Please provide a helpful and accurate response based on the information provided above."

	featuresPrefix = "  Features: "
	pricePrefix    = "  Price: "
)

// Assemble renders the prompt. Absent bundle fields produce no section.
// Contacts are rendered in label order. Line breaks and list separators in
// field values are backslash-escaped so every field stays on one line.
func Assemble(query string, bundle rag.Bundle, bot store.BotConfig, companyName string) string {
	parts := []string{
		fmt.Sprintf("You are %s, a %s assistant for %s.", bot.Name, bot.Personality, companyName),
		fmt.Sprintf("Please respond in %s.", bot.Language),
		"",
	}

	if len(bot.Rules) > 0 {
		parts = append(parts, "Follow these rules:")
		for _, rule := range bot.Rules {
			parts = append(parts, "- "+rule)
		}
		parts = append(parts, "")
	}

	parts = append(parts, headingContext)

	if bundle.CompanyInfo != "" {
		parts = append(parts, "\n"+headingCompany+escape(bundle.CompanyInfo, ""))
	}

	if len(bundle.Services) > 0 {
		parts = append(parts, "\n"+headingServices)
		for _, svc := range bundle.Services {
			parts = append(parts, fmt.Sprintf("- %s: %s", escape(svc.Name, ":"), escape(svc.Description, "")))
			if len(svc.Features) > 0 {
				features := make([]string, len(svc.Features))
				for i, f := range svc.Features {
					features[i] = escape(f, ",")
				}
				parts = append(parts, featuresPrefix+strings.Join(features, ", "))
			}
			if svc.Price != "" {
				parts = append(parts, pricePrefix+escape(svc.Price, ""))
			}
		}
	}

	if len(bundle.FAQ) > 0 {
		parts = append(parts, "\n"+headingFAQ)
		for _, faq := range bundle.FAQ {
			parts = append(parts, "Q: "+escape(faq.Question, ""), "A: "+escape(faq.Answer, ""))
		}
	}

	if len(bundle.Contacts) > 0 {
		parts = append(parts, "\n"+headingContacts)
		labels := make([]string, 0, len(bundle.Contacts))
		for label := range bundle.Contacts {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			parts = append(parts, fmt.Sprintf("- %s: %s", escape(label, ":"), escape(bundle.Contacts[label], "")))
		}
	}

	parts = append(parts,
		"\n"+headingQuestion+escape(query, ""),
		"\n"+closing,
	)

	return strings.Join(parts, "\n")
}
