package lexora

import "time"

// Public domain types. Standalone structs with no internal imports so that
// embedding consumers never depend on internal packages; conversion helpers
// live in lexora.go.

// Article is a numbered provision of a legislative bill. The semantic
// description is the plain-language summary used for similarity matching;
// Text is the verbatim legal passage shown to the LLM.
type Article struct {
	Number              int
	Kind                string
	Text                string
	SemanticDescription string
}

// Bill is a legislative bill with its articles.
type Bill struct {
	ID       string
	Title    string
	Chamber  string
	Kind     string
	Stage    int
	Urgency  string
	Date     time.Time
	Articles []Article
}

// Impact is a single article-level finding: which article of the bill
// affects the document, where, and how strongly (relevance in [1,100]).
type Impact struct {
	ArticleNumber     int
	InternalExcerpt   string
	ArticleExcerpt    string
	Relevance         int
	ImpactDescription string
}

// BillImpact is the per-bill analysis outcome: the surviving impacts, the
// maximum relevance among them, and one consolidated legal report.
type BillImpact struct {
	BillID                  string
	BillTitle               string
	Impacts                 []Impact
	MaxRelevance            int
	ConsolidatedDescription string
}

// AnalysisResult is the outcome of analyzing one document against the bill
// corpus. PageMatches maps bill id to article number to the 0-based page
// indices whose similarity crossed the threshold.
type AnalysisResult struct {
	BillImpacts []BillImpact
	PageMatches map[string]map[int][]int
}
