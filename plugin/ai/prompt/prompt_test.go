package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/atabot/plugin/ai/rag"
	"github.com/hrygo/atabot/store"
)

func TestAssemble_Full(t *testing.T) {
	bot := store.BotConfig{
		Name:        "Atabot",
		Personality: "helpful and friendly",
		Language:    "Indonesian",
		Rules:       []string{"Be polite", "Answer briefly"},
	}
	bundle := rag.Bundle{
		CompanyInfo: "We build websites",
		Services: []store.Service{
			{Name: "Web Design", Description: "responsive sites", Features: []string{"SEO", "Hosting"}, Price: "Rp 5.000.000"},
			{Name: "Audit", Description: "site review"},
		},
		FAQ:      []store.FAQItem{{Question: "What are your hours?", Answer: "9-5 Mon-Fri"}},
		Contacts: map[string]string{"phone": "021-555", "email": "hi@acme.test"},
	}

	expected := `You are Atabot, a helpful and friendly assistant for Acme.
Please respond in Indonesian.

Follow these rules:
- Be polite
- Answer briefly

Here is the relevant information to answer the user's question:

Company Description: We build websites

Relevant Services:
- Web Design: responsive sites
  Features: SEO, Hosting
  Price: Rp 5.000.000
- Audit: site review

Relevant FAQ:
Q: What are your hours?
A: 9-5 Mon-Fri

Contact Information:
- email: hi@acme.test
- phone: 021-555

User Question: tell me everything

Please provide a helpful and accurate response based on the information provided above.`

	assert.Equal(t, expected, Assemble("tell me everything", bundle, bot, "Acme"))
}

func TestAssemble_OmitsAbsentSections(t *testing.T) {
	bot := store.DefaultBotConfig()

	got := Assemble("hello", rag.Bundle{}, bot, "Company")

	expected := `You are Atabot, a helpful and friendly assistant for Company.
Please respond in Indonesian.

Here is the relevant information to answer the user's question:

User Question: hello

Please provide a helpful and accurate response based on the information provided above.`
	assert.Equal(t, expected, got)

	for _, heading := range []string{"Follow these rules:", headingServices, headingFAQ, headingContacts, "Company Description:"} {
		assert.NotContains(t, got, heading)
	}
}

func TestAssembleParse_RoundTrip(t *testing.T) {
	bot := store.DefaultBotConfig()
	bot.Rules = []string{"No prices without asking"}

	tests := []struct {
		name   string
		query  string
		bundle rag.Bundle
	}{
		{"empty", "hi", rag.Bundle{}},
		{"company only", "about you", rag.Bundle{CompanyInfo: "Acme: websites, apps"}},
		{
			"services",
			"services?",
			rag.Bundle{Services: []store.Service{
				{Name: "Web", Description: "sites: fast", Features: []string{"a", "b"}},
				{Name: "Apps", Description: "", Price: "free"},
			}},
		},
		{
			"faq and contacts",
			"when and where",
			rag.Bundle{
				FAQ: []store.FAQItem{
					{Question: "When?", Answer: "A: always"},
					{Question: "Where?", Answer: "Jakarta"},
				},
				Contacts: map[string]string{"address": "Jl. Sudirman 1", "email": "x@y.z"},
			},
		},
		{
			"multi-line values",
			"hours?",
			rag.Bundle{
				CompanyInfo: "We build websites.\nFounded 2010.",
				Services: []store.Service{
					{Name: "Web", Description: "line one\r\nline two", Price: "Rp 1\nper month"},
				},
				FAQ: []store.FAQItem{{Question: "Hours?\n(weekdays)", Answer: "Mon-Fri 9-5\nSat 10-2"}},
			},
		},
		{
			"separators inside values",
			"what is C:\\temp?",
			rag.Bundle{
				Services: []store.Service{
					{Name: "SEO: Pro", Description: "a, b: c", Features: []string{"SEO, SEM", "Hosting", `back\slash`, "trailing\\"}},
				},
				Contacts: map[string]string{"phone: office": "021: 555", "wa": `\n is not a newline`},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rendered := Assemble(tt.query, tt.bundle, bot, "Acme")

			bundle, question, err := Parse(rendered)
			require.NoError(t, err)
			assert.Equal(t, tt.bundle, bundle)
			assert.Equal(t, tt.query, question)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no context heading", "User Question: x"},
		{"no question", headingContext + "\n\nCompany Description: x"},
		{"dangling faq question", headingContext + "\n\n" + headingFAQ + "\nQ: only\n\nUser Question: x"},
		{"bad service line", headingContext + "\n\n" + headingServices + "\nnot a bullet\n\nUser Question: x"},
		{"escaped service separator", headingContext + "\n\n" + headingServices + "\n- Web\\: only a name\n\nUser Question: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.text)
			assert.ErrorIs(t, err, ErrMalformedPrompt)
		})
	}
}

func TestAssemble_EscapesFieldValues(t *testing.T) {
	bundle := rag.Bundle{
		CompanyInfo: "We build websites.\nFounded 2010.",
		Services:    []store.Service{{Name: "SEO: Pro", Description: "audits", Features: []string{"SEO, SEM", "Hosting"}}},
	}

	got := Assemble("hi", bundle, store.DefaultBotConfig(), "Acme")

	assert.Contains(t, got, "\nCompany Description: We build websites.\\nFounded 2010.\n")
	assert.Contains(t, got, "\n- SEO\\: Pro: audits\n")
	assert.Contains(t, got, "\n  Features: SEO\\, SEM, Hosting\n")
}
