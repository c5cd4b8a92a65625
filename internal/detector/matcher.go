package detector

import (
	"math"
	"sort"
	"strings"
)

// Match compares every page embedding against every article embedding and
// returns the pairs at or above the similarity threshold. pageVecs and
// articleVecs are index-aligned with pages and articles.
//
// Articles whose semantic description is blank never produce pairs; their
// placeholder embeddings carry no meaning. Within a page, pairs are ordered
// by similarity descending (ties keep article order), and maxPerPage > 0
// caps how many survive per page.
func Match(pages []Page, pageVecs [][]float32, articles []ArticleRef, articleVecs [][]float32, threshold float64, maxPerPage int) []CandidatePair {
	var out []CandidatePair
	for pi, page := range pages {
		var pagePairs []CandidatePair
		for ai, ref := range articles {
			if strings.TrimSpace(ref.Article.SemanticDescription) == "" {
				continue
			}
			sim := cosineSimilarity(pageVecs[pi], articleVecs[ai])
			if sim < threshold {
				continue
			}
			pagePairs = append(pagePairs, CandidatePair{
				BillID:        ref.BillID,
				BillTitle:     ref.BillTitle,
				ArticleNumber: ref.Article.Number,
				ArticleKind:   ref.Article.Kind,
				PageIndex:     page.Index,
				Similarity:    sim,
				PageText:      page.Text,
				ArticleText:   ref.Article.Text,
			})
		}
		sort.SliceStable(pagePairs, func(i, j int) bool {
			return pagePairs[i].Similarity > pagePairs[j].Similarity
		})
		if maxPerPage > 0 && len(pagePairs) > maxPerPage {
			pagePairs = pagePairs[:maxPerPage]
		}
		out = append(out, pagePairs...)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
