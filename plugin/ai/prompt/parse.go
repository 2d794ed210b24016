package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hrygo/atabot/plugin/ai/rag"
	"github.com/hrygo/atabot/store"
)

// ErrMalformedPrompt is returned when a prompt lacks the expected layout.
var ErrMalformedPrompt = errors.New("malformed prompt")

type section int

const (
	sectionNone section = iota
	sectionServices
	sectionFAQ
	sectionContacts
)

// Parse recovers the relevance bundle and the user question from a prompt
// produced by Assemble, undoing its escaping.
func Parse(text string) (rag.Bundle, string, error) {
	var bundle rag.Bundle

	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if line == headingContext {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return bundle, "", fmt.Errorf("%w: missing context heading", ErrMalformedPrompt)
	}

	current := sectionNone
	var pendingQuestion *string

	for _, line := range lines[start:] {
		switch {
		case line == "":
			current = sectionNone
			continue
		case strings.HasPrefix(line, headingQuestion):
			if pendingQuestion != nil {
				return bundle, "", fmt.Errorf("%w: faq question without answer", ErrMalformedPrompt)
			}
			return bundle, unescape(strings.TrimPrefix(line, headingQuestion)), nil
		case current == sectionNone && strings.HasPrefix(line, headingCompany):
			bundle.CompanyInfo = unescape(strings.TrimPrefix(line, headingCompany))
			continue
		case current == sectionNone && line == headingServices:
			current = sectionServices
			continue
		case current == sectionNone && line == headingFAQ:
			current = sectionFAQ
			continue
		case current == sectionNone && line == headingContacts:
			current = sectionContacts
			bundle.Contacts = map[string]string{}
			continue
		}

		switch current {
		case sectionServices:
			if err := parseServiceLine(&bundle, line); err != nil {
				return bundle, "", err
			}
		case sectionFAQ:
			switch {
			case strings.HasPrefix(line, "Q: ") && pendingQuestion == nil:
				q := unescape(strings.TrimPrefix(line, "Q: "))
				pendingQuestion = &q
			case strings.HasPrefix(line, "A: ") && pendingQuestion != nil:
				bundle.FAQ = append(bundle.FAQ, store.FAQItem{
					Question: *pendingQuestion,
					Answer:   unescape(strings.TrimPrefix(line, "A: ")),
				})
				pendingQuestion = nil
			default:
				return bundle, "", fmt.Errorf("%w: unexpected faq line %q", ErrMalformedPrompt, line)
			}
		case sectionContacts:
			label, value, ok := cutEscaped(strings.TrimPrefix(line, "- "), ": ")
			if !ok || !strings.HasPrefix(line, "- ") {
				return bundle, "", fmt.Errorf("%w: unexpected contact line %q", ErrMalformedPrompt, line)
			}
			bundle.Contacts[label] = value
		default:
			return bundle, "", fmt.Errorf("%w: unexpected line %q", ErrMalformedPrompt, line)
		}
	}

	return bundle, "", fmt.Errorf("%w: missing user question", ErrMalformedPrompt)
}

func parseServiceLine(bundle *rag.Bundle, line string) error {
	last := len(bundle.Services) - 1
	switch {
	case strings.HasPrefix(line, featuresPrefix) && last >= 0:
		features := splitEscaped(strings.TrimPrefix(line, featuresPrefix), ", ", -1)
		for i, f := range features {
			features[i] = unescape(f)
		}
		bundle.Services[last].Features = features
	case strings.HasPrefix(line, pricePrefix) && last >= 0:
		bundle.Services[last].Price = unescape(strings.TrimPrefix(line, pricePrefix))
	case strings.HasPrefix(line, "- "):
		name, desc, ok := cutEscaped(strings.TrimPrefix(line, "- "), ": ")
		if !ok {
			return fmt.Errorf("%w: unexpected service line %q", ErrMalformedPrompt, line)
		}
		bundle.Services = append(bundle.Services, store.Service{Name: name, Description: desc})
	default:
		return fmt.Errorf("%w: unexpected service line %q", ErrMalformedPrompt, line)
	}
	return nil
}
