// Package ai talks to an OpenAI-compatible chat-completions endpoint to
// produce the narrative overlay: one window-level report and optional
// per-domain analyses. Credentials come from the live config on every call,
// so a settings hot-reload takes effect immediately.
package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/thebtf/dwell/internal/config"
	"github.com/thebtf/dwell/internal/metrics"
	"github.com/thebtf/dwell/pkg/models"
	"github.com/tidwall/gjson"
)

const (
	// requestTimeout bounds each completion call. One attempt, no retries:
	// the user can always regenerate.
	requestTimeout = 60 * time.Second

	// interCallDelay spaces sequential per-domain calls to stay under
	// provider rate limits.
	interCallDelay = 500 * time.Millisecond
)

// Client is the summarizer client. The zero value is not usable; use New.
type Client struct {
	httpClient *http.Client
}

// New creates a Client. A nil httpClient gets a default with the standard
// request timeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{httpClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateSummary produces the window-level AI report. Errors propagate: the
// caller decides how to render a failed generation.
func (c *Client) GenerateSummary(ctx context.Context, cfg config.AIConfig, report *models.Report) (*models.AIReport, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is missing")
	}

	content, err := c.complete(ctx, cfg, summarySystemPrompt, summaryUserPrompt(report))
	if err != nil {
		metrics.RecordAICall(ctx, "summary", false)
		return nil, err
	}

	var out models.AIReport
	if err := decodeModelJSON(content, &out); err != nil {
		// Last resort: pull the fields we can find from the raw content.
		if lenient := lenientAIReport(content); lenient != nil {
			metrics.RecordAICall(ctx, "summary", true)
			return lenient, nil
		}
		metrics.RecordAICall(ctx, "summary", false)
		return nil, fmt.Errorf("invalid JSON from model: %w", err)
	}

	metrics.RecordAICall(ctx, "summary", true)
	return &out, nil
}

// AnalyzeDomain produces a per-domain analysis. It never returns an error:
// any failure yields the sentinel shape so batch analysis is fault-isolated
// per item.
func (c *Client) AnalyzeDomain(ctx context.Context, cfg config.AIConfig, domain string, pages []models.PageCount) *models.DomainAnalysis {
	content, err := c.complete(ctx, cfg, domainSystemPrompt, domainUserPrompt(domain, pages))
	if err != nil {
		log.Debug().Err(err).Str("domain", domain).Msg("Domain analysis failed")
		metrics.RecordAICall(ctx, "domain", false)
		return models.FailedDomainAnalysis(domain, "analysis request failed")
	}

	var out models.DomainAnalysis
	if err := decodeModelJSON(content, &out); err != nil {
		if lenient := lenientDomainAnalysis(domain, content); lenient != nil {
			metrics.RecordAICall(ctx, "domain", true)
			return lenient
		}
		log.Debug().Err(err).Str("domain", domain).Msg("Domain analysis returned unparseable JSON")
		metrics.RecordAICall(ctx, "domain", false)
		return models.FailedDomainAnalysis(domain, "could not parse analysis result")
	}

	out.Domain = domain
	metrics.RecordAICall(ctx, "domain", true)
	return &out
}

// DomainPages is one item of a batch analysis request.
type DomainPages struct {
	Domain string             `json:"domain"`
	Pages  []models.PageCount `json:"pages"`
}

// AnalyzeDomains runs per-domain analyses sequentially with a small delay
// between calls. Output order matches input order; failed items carry the
// sentinel shape.
func (c *Client) AnalyzeDomains(ctx context.Context, cfg config.AIConfig, items []DomainPages) []*models.DomainAnalysis {
	out := make([]*models.DomainAnalysis, 0, len(items))
	for i, item := range items {
		if i > 0 {
			select {
			case <-time.After(interCallDelay):
			case <-ctx.Done():
				out = append(out, models.FailedDomainAnalysis(item.Domain, "analysis cancelled"))
				continue
			}
		}
		out = append(out, c.AnalyzeDomain(ctx, cfg, item.Domain, item.Pages))
	}
	return out
}

// complete performs one chat-completions call and returns the assistant
// message content.
func (c *Client) complete(ctx context.Context, cfg config.AIConfig, system, user string) (string, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}

	var parsed chatResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("completion API: %s", parsed.Error.Message)
		}
		return "", fmt.Errorf("completion API: %s", resp.Status)
	}

	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// decodeModelJSON decodes model output into v, tolerating code fences and
// surrounding prose by falling back to the first {...} block.
func decodeModelJSON(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}
	block := firstJSONBlock(content)
	if block == "" {
		return fmt.Errorf("no JSON object in model output")
	}
	return json.Unmarshal([]byte(block), v)
}

// firstJSONBlock returns the outermost {...} span of s, or "".
func firstJSONBlock(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// lenientAIReport salvages whatever well-formed fields exist in otherwise
// broken model output. Returns nil when not even a summary is present.
func lenientAIReport(content string) *models.AIReport {
	summary := gjson.Get(content, "summary")
	if !summary.Exists() {
		return nil
	}
	out := &models.AIReport{
		Summary:             summary.String(),
		ProductivityScore:   int(gjson.Get(content, "productivityScore").Int()),
		ProductivityComment: gjson.Get(content, "productivityComment").String(),
		TopSitesInsight:     gjson.Get(content, "topSitesInsight").String(),
		OverallAdvice:       gjson.Get(content, "overallAdvice").String(),
	}
	for _, kw := range gjson.Get(content, "keywords").Array() {
		out.Keywords = append(out.Keywords, kw.String())
	}
	for _, cat := range gjson.Get(content, "categories").Array() {
		out.Categories = append(out.Categories, models.AICategory{
			Name:  cat.Get("name").String(),
			Value: int(cat.Get("value").Int()),
		})
	}
	return out
}

// lenientDomainAnalysis is the per-domain equivalent of lenientAIReport.
func lenientDomainAnalysis(domain, content string) *models.DomainAnalysis {
	contentType := gjson.Get(content, "contentType")
	if !contentType.Exists() {
		return nil
	}
	out := &models.DomainAnalysis{
		Domain:      domain,
		ContentType: contentType.String(),
		Summary:     gjson.Get(content, "summary").String(),
		Rating:      int(gjson.Get(content, "rating").Int()),
		Sentiment:   gjson.Get(content, "sentiment").String(),
	}
	for _, kw := range gjson.Get(content, "keywords").Array() {
		out.Keywords = append(out.Keywords, kw.String())
	}
	return out
}
