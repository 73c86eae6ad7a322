package models

// AICategory is one weighted slice of the browsing-category breakdown.
type AICategory struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// AIReport is the summarizer's window-level output. Values are stored
// verbatim in the report cache, keyed by period label, until regenerated.
type AIReport struct {
	Summary             string       `json:"summary"`
	Categories          []AICategory `json:"categories"`
	Keywords            []string     `json:"keywords"`
	ProductivityScore   int          `json:"productivityScore"`
	ProductivityComment string       `json:"productivityComment"`
	TopSitesInsight     string       `json:"topSitesInsight"`
	OverallAdvice       string       `json:"overallAdvice"`
}

// DomainAnalysis is the summarizer's per-domain output. A failed analysis is
// represented by the sentinel shape from FailedDomainAnalysis rather than an
// error, so batch analysis stays fault-isolated per item.
type DomainAnalysis struct {
	Domain      string   `json:"domain"`
	ContentType string   `json:"contentType"`
	Keywords    []string `json:"keywords"`
	Summary     string   `json:"summary"`
	Rating      int      `json:"rating"`
	Sentiment   string   `json:"sentiment"`
}

// AnalysisFailedType marks a DomainAnalysis that could not be produced.
const AnalysisFailedType = "Error"

// FailedDomainAnalysis returns the sentinel shape for a failed per-domain
// analysis. Callers render a "could not analyze" state from it.
func FailedDomainAnalysis(domain, reason string) *DomainAnalysis {
	return &DomainAnalysis{
		Domain:      domain,
		ContentType: AnalysisFailedType,
		Keywords:    []string{},
		Summary:     reason,
		Rating:      0,
	}
}

// Failed reports whether the analysis is the failure sentinel.
func (a *DomainAnalysis) Failed() bool {
	return a.ContentType == AnalysisFailedType || a.ContentType == ""
}
