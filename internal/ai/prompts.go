package ai

import (
	"fmt"
	"strings"

	"github.com/thebtf/dwell/pkg/models"
	"github.com/tiktoken-go/tokenizer"
)

const (
	// maxSummaryDomains caps how many top domains are shown to the model.
	maxSummaryDomains = 50

	// maxDomainPages caps how many page titles a per-domain analysis sees.
	maxDomainPages = 20

	// promptTokenBudget bounds the user prompt so it fits comfortably in the
	// smallest supported context window.
	promptTokenBudget = 3000
)

const summarySystemPrompt = `You are an advanced data analysis engine. Analyze the user's top browsing domains and respond with strict JSON only — no prose, no code fences.`

const domainSystemPrompt = `You are a website content analyst. Given the page titles a user visited on one site, analyze what the user cared about and what the site is worth to them. Respond with strict JSON only.`

// summaryUserPrompt renders the window-level analysis request.
func summaryUserPrompt(report *models.Report) string {
	domains := report.Domains
	if len(domains) > maxSummaryDomains {
		domains = domains[:maxSummaryDomains]
	}

	entries := make([]string, 0, len(domains))
	for _, d := range domains {
		entries = append(entries, fmt.Sprintf("%s (%d)", d.Domain, d.VisitCount))
	}
	list := fitTokenBudget(entries, promptTokenBudget)

	var b strings.Builder
	fmt.Fprintf(&b, "Top domains: [%s]\n", strings.Join(list, ", "))
	fmt.Fprintf(&b, "Period: %s\n\n", report.PeriodLabel)
	b.WriteString(`Analyze and return exactly this JSON structure:
{
  "summary": "A detailed analysis of the user's browsing behavior in Markdown. Cover: 1. the main areas of interest; 2. browsing-habit patterns such as work/leisure balance; 3. concrete suggestions. Use bold and lists, about 300 words.",
  "categories": [
    { "name": "Tech/Development", "value": 30 },
    { "name": "Entertainment/Media", "value": 20 },
    { "name": "Shopping", "value": 10 },
    { "name": "Social", "value": 10 },
    { "name": "News/Reading", "value": 10 },
    { "name": "Other", "value": 20 }
  ],
  "keywords": ["example", "keywords"],
  "productivityScore": 85,
  "productivityComment": "one short sentence",
  "topSitesInsight": "a paragraph about the top sites specifically",
  "overallAdvice": "closing advice on healthier, more effective browsing, in Markdown, 3-5 points"
}

Notes:
1. Category values are weights estimated from the domain list; they need not sum to 100.
2. Extract 5-8 core keywords.
3. productivityScore is 0-100.`)
	return b.String()
}

// domainUserPrompt renders the per-domain analysis request.
func domainUserPrompt(domain string, pages []models.PageCount) string {
	if len(pages) > maxDomainPages {
		pages = pages[:maxDomainPages]
	}

	entries := make([]string, 0, len(pages))
	for _, p := range pages {
		entries = append(entries, fmt.Sprintf("- %s (%d visits)", p.Title, p.Count))
	}
	list := fitTokenBudget(entries, promptTokenBudget)

	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\nVisited pages:\n%s\n\n", domain, strings.Join(list, "\n"))
	b.WriteString(`Analyze and return exactly this JSON structure:
{
  "contentType": "site type (e.g. video community, tech blog, developer tool)",
  "keywords": ["keyword1", "keyword2", "keyword3"],
  "summary": "one sentence on what the user mainly looked at on this site",
  "rating": 4,
  "sentiment": "positive/neutral/negative"
}

rating is 1-5, where 5 means high value or high productivity.`)
	return b.String()
}

// fitTokenBudget drops trailing entries until the joined list fits the token
// budget. When the tokenizer is unavailable the list passes through as-is.
func fitTokenBudget(entries []string, budget int) []string {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return entries
	}

	for len(entries) > 1 {
		n, err := codec.Count(strings.Join(entries, ", "))
		if err != nil || n <= budget {
			break
		}
		entries = entries[:len(entries)-1]
	}
	return entries
}
