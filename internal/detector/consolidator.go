package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexora-ai/lexora/internal/llm"
	"github.com/lexora-ai/lexora/internal/llmmap"
)

const consolidationTemperature = 0.3

// renderDescriptions joins a bill's impact descriptions as numbered
// Markdown sections for the consolidation prompts.
func renderDescriptions(descs []string) string {
	var b strings.Builder
	for i, d := range descs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## Impacto %d\n%s", i+1, d)
	}
	return b.String()
}

// Consolidate produces one consolidated description per bill group, in
// group order. Groups with no descriptions get an empty string and groups
// with exactly one get it back verbatim; only the rest reach the LLM. The
// prompt depends on whether the group has any impact above relevance 50.
func Consolidate(ctx context.Context, c llm.Completer, groups []*billGroup, concurrency int) ([]string, error) {
	out := make([]string, len(groups))

	// Groups needing an LLM call, split by prompt so each template maps
	// over its own batch.
	var highIdx, lowIdx []int
	var highInputs, lowInputs []string

	for i, g := range groups {
		descs := g.descriptionsToConsolidate()
		switch len(descs) {
		case 0:
			out[i] = ""
		case 1:
			out[i] = descs[0]
		default:
			if g.highRelevance {
				highIdx = append(highIdx, i)
				highInputs = append(highInputs, renderDescriptions(descs))
			} else {
				lowIdx = append(lowIdx, i)
				lowInputs = append(lowInputs, renderDescriptions(descs))
			}
		}
	}

	opts := llmmap.Options{
		Concurrency: concurrency,
		Temperature: consolidationTemperature,
		UseCache:    true,
	}

	if len(highInputs) > 0 {
		results, err := llmmap.MapText(ctx, c, highInputs, consolidationPrompt, opts)
		if err != nil {
			return nil, fmt.Errorf("detector: consolidate impacts: %w", err)
		}
		for j, i := range highIdx {
			out[i] = results[j]
		}
	}
	if len(lowInputs) > 0 {
		results, err := llmmap.MapText(ctx, c, lowInputs, lowRelevancePrompt, opts)
		if err != nil {
			return nil, fmt.Errorf("detector: consolidate low-relevance impacts: %w", err)
		}
		for j, i := range lowIdx {
			out[i] = results[j]
		}
	}
	return out, nil
}
