package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexora-ai/lexora/internal/llm"
	"github.com/lexora-ai/lexora/internal/model"
	"github.com/lexora-ai/lexora/internal/telemetry"
)

// BillSource supplies the bill corpus an analysis runs against.
type BillSource interface {
	ListBills(ctx context.Context) ([]model.Bill, error)
}

// Embedder turns texts into index-aligned vectors. Blank inputs must still
// yield a vector so positions line up.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes one Detector instance.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a
	// page/article pair to reach the LLM.
	SimilarityThreshold float64
	// MaxArticlesPerPage caps candidates per page when > 0.
	MaxArticlesPerPage int
	// ExtractionConcurrency bounds in-flight extraction calls.
	ExtractionConcurrency int
	// ConsolidationConcurrency bounds in-flight consolidation calls.
	ConsolidationConcurrency int
}

// Detector runs the full analysis pipeline for one document.
type Detector struct {
	bills    BillSource
	embedder Embedder
	llm      llm.Completer
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Detector. All collaborators are required.
func New(bills BillSource, embedder Embedder, completer llm.Completer, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		bills:    bills,
		embedder: embedder,
		llm:      completer,
		cfg:      cfg,
		logger:   logger,
		tracer:   telemetry.Tracer("lexora/detector"),
	}
}

// Analyze runs the pipeline over the document's pages (0-indexed, in
// reading order) and returns one BillImpact per bill with surviving
// impacts. Blank pages are skipped but keep their original index in all
// outputs. An empty document or an empty bill corpus yields an empty
// result without any provider calls.
func (d *Detector) Analyze(ctx context.Context, pages []string) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "detector.Analyze",
		trace.WithAttributes(attribute.Int("pages.total", len(pages))))
	defer span.End()

	valid := validPages(pages)
	if len(valid) == 0 {
		d.logger.Info("detector: document has no analyzable pages", "pages", len(pages))
		return emptyResult(), nil
	}

	bills, err := d.bills.ListBills(ctx)
	if err != nil {
		return nil, fmt.Errorf("detector: load bills: %w", err)
	}
	articles := flattenArticles(bills)
	if len(articles) == 0 {
		d.logger.Info("detector: bill corpus is empty")
		return emptyResult(), nil
	}

	pairs, err := d.match(ctx, valid, articles)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(pairs)))
	if len(pairs) == 0 {
		d.logger.Info("detector: no candidate pairs above threshold",
			"pages", len(valid), "articles", len(articles), "threshold", d.cfg.SimilarityThreshold)
		return emptyResult(), nil
	}

	scored, err := Extract(ctx, d.llm, pairs, d.cfg.ExtractionConcurrency)
	if err != nil {
		return nil, err
	}
	d.logger.Info("detector: impacts extracted",
		"candidates", len(pairs), "surviving", len(scored))

	groups := aggregate(scored)
	descriptions, err := Consolidate(ctx, d.llm, groups, d.cfg.ConsolidationConcurrency)
	if err != nil {
		return nil, err
	}

	impacts := make([]BillImpact, len(groups))
	for i, g := range groups {
		impacts[i] = BillImpact{
			BillID:                  g.billID,
			BillTitle:               g.billTitle,
			Impacts:                 g.impacts,
			MaxRelevance:            g.maxRelevance,
			ConsolidatedDescription: descriptions[i],
		}
	}
	span.SetAttributes(attribute.Int("bills.impacted", len(impacts)))

	return &Result{
		BillImpacts: impacts,
		PageMatches: pageMatches(pairs),
	}, nil
}

// match embeds pages and article descriptions and selects candidate pairs.
func (d *Detector) match(ctx context.Context, pages []Page, articles []ArticleRef) ([]CandidatePair, error) {
	ctx, span := d.tracer.Start(ctx, "detector.match",
		trace.WithAttributes(
			attribute.Int("pages.valid", len(pages)),
			attribute.Int("articles", len(articles)),
		))
	defer span.End()

	pageTexts := make([]string, len(pages))
	for i, p := range pages {
		pageTexts[i] = p.Text
	}
	articleTexts := make([]string, len(articles))
	for i, a := range articles {
		articleTexts[i] = a.Article.SemanticDescription
	}

	pageVecs, err := d.embedder.EmbedTexts(ctx, pageTexts)
	if err != nil {
		return nil, fmt.Errorf("detector: embed pages: %w", err)
	}
	articleVecs, err := d.embedder.EmbedTexts(ctx, articleTexts)
	if err != nil {
		return nil, fmt.Errorf("detector: embed articles: %w", err)
	}

	return Match(pages, pageVecs, articles, articleVecs, d.cfg.SimilarityThreshold, d.cfg.MaxArticlesPerPage), nil
}

// validPages drops blank pages, keeping original indices.
func validPages(pages []string) []Page {
	var out []Page
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, Page{Index: i, Text: text})
	}
	return out
}

// flattenArticles lists every article across the corpus with its bill
// back-reference, in bill then article order.
func flattenArticles(bills []model.Bill) []ArticleRef {
	var out []ArticleRef
	for _, b := range bills {
		for _, a := range b.Articles {
			out = append(out, ArticleRef{BillID: b.ID, BillTitle: b.Title, Article: a})
		}
	}
	return out
}

// pageMatches summarizes candidate pairs as bill id → article number →
// sorted page indices. Every pair is recorded, including those the LLM
// later dismissed, so the caller can see what triggered analysis.
func pageMatches(pairs []CandidatePair) map[string]map[int][]int {
	out := make(map[string]map[int][]int)
	for _, p := range pairs {
		byArticle, ok := out[p.BillID]
		if !ok {
			byArticle = make(map[int][]int)
			out[p.BillID] = byArticle
		}
		byArticle[p.ArticleNumber] = append(byArticle[p.ArticleNumber], p.PageIndex)
	}
	for _, byArticle := range out {
		for n, idxs := range byArticle {
			sort.Ints(idxs)
			byArticle[n] = idxs
		}
	}
	return out
}

func emptyResult() *Result {
	return &Result{PageMatches: map[string]map[int][]int{}}
}
