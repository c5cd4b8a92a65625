package detector

import "github.com/lexora-ai/lexora/internal/model"

// billGroup collects the surviving impacts of one bill. highRelevance is
// true when at least one impact scored above 50; consolidation then uses
// only those impacts and the actionable prompt, otherwise all impacts and
// the low-relevance prompt.
type billGroup struct {
	billID        string
	billTitle     string
	impacts       []model.Impact
	maxRelevance  int
	highRelevance bool
}

// descriptionsToConsolidate picks the impact descriptions that feed the
// bill's consolidation call.
func (g *billGroup) descriptionsToConsolidate() []string {
	var out []string
	for _, imp := range g.impacts {
		if g.highRelevance && imp.Relevance <= 50 {
			continue
		}
		out = append(out, imp.ImpactDescription)
	}
	return out
}

// aggregate groups scored impacts by bill, preserving first-seen bill
// order, and computes each bill's maximum relevance and high-relevance
// flag.
func aggregate(scored []ScoredImpact) []*billGroup {
	var groups []*billGroup
	byBill := make(map[string]*billGroup)

	for _, s := range scored {
		g, ok := byBill[s.Pair.BillID]
		if !ok {
			g = &billGroup{billID: s.Pair.BillID, billTitle: s.Pair.BillTitle}
			byBill[s.Pair.BillID] = g
			groups = append(groups, g)
		}
		g.impacts = append(g.impacts, model.Impact{
			ArticleNumber:     s.Pair.ArticleNumber,
			InternalExcerpt:   s.Impact.InternalExcerpt,
			ArticleExcerpt:    s.Impact.ArticleExcerpt,
			Relevance:         s.Impact.Relevance,
			ImpactDescription: s.Impact.ImpactDescription,
		})
		if s.Impact.Relevance > g.maxRelevance {
			g.maxRelevance = s.Impact.Relevance
		}
		if s.Impact.Relevance > 50 {
			g.highRelevance = true
		}
	}
	return groups
}
