// Package detector implements the conflict-detection and impact-synthesis
// pipeline: pages and article descriptions are embedded, candidate
// page/article pairs are selected by cosine similarity, each candidate is
// sent to the LLM for structured impact extraction, and per-bill impacts
// are consolidated into a single legal report.
package detector

import "github.com/lexora-ai/lexora/internal/model"

// Page is a document page that survived validity filtering. Index is the
// 0-based position in the original pagination and is never renumbered, so
// downstream outputs reference the user-visible page.
type Page struct {
	Index int
	Text  string
}

// ArticleRef is an article flattened out of its bill, retaining the bill
// back-reference needed to group impacts later.
type ArticleRef struct {
	BillID    string
	BillTitle string
	Article   model.Article
}

// CandidatePair is a page/article pair whose embeddings passed the
// similarity threshold. Within a page, pairs are ordered by similarity
// descending.
type CandidatePair struct {
	BillID        string
	BillTitle     string
	ArticleNumber int
	ArticleKind   string
	PageIndex     int
	Similarity    float64
	PageText      string
	ArticleText   string
}

// RawImpact is the LLM's structured verdict for one candidate pair.
// Relevance 0 means "no justifiable relation" and dismisses the pair.
type RawImpact struct {
	InternalExcerpt   string `json:"extracto_interno"`
	ArticleExcerpt    string `json:"extracto_articulo"`
	Relevance         int    `json:"nivel_relevancia"`
	ImpactDescription string `json:"descripcion_impacto"`
}

// BillImpact is the per-bill analysis result: every surviving impact, the
// maximum relevance among them, and the consolidated description.
type BillImpact struct {
	BillID                  string
	BillTitle               string
	Impacts                 []model.Impact
	MaxRelevance            int
	ConsolidatedDescription string
}

// Result is the outcome of one document analysis.
type Result struct {
	BillImpacts []BillImpact
	// PageMatches summarizes the candidate pairs that triggered analysis:
	// bill id → article number → sorted original page indices.
	PageMatches map[string]map[int][]int
}
