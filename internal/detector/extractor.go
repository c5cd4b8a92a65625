package detector

import (
	"context"
	"fmt"

	"github.com/lexora-ai/lexora/internal/llm"
	"github.com/lexora-ai/lexora/internal/llmmap"
)

const extractionTemperature = 0.1

// renderPairInput formats one candidate pair as the {item} body of the
// extraction prompt. The headers match what the prompt's INPUTS section
// describes.
func renderPairInput(p CandidatePair) string {
	return fmt.Sprintf("## Documento Interno de la Empresa:\n\n%s\n\nArtículo de ley:\n\n%s", p.PageText, p.ArticleText)
}

// ScoredImpact pairs a candidate with its LLM verdict.
type ScoredImpact struct {
	Pair   CandidatePair
	Impact RawImpact
}

// Extract fans the candidate pairs out to the LLM in structured-output mode
// and returns the verdicts with relevance > 0, in candidate order. Zero
// relevance means the model found no justifiable relation and the pair is
// dropped. Out-of-range relevance is a provider contract violation and
// fails the run.
func Extract(ctx context.Context, c llm.Completer, pairs []CandidatePair, concurrency int) ([]ScoredImpact, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(pairs))
	for i, p := range pairs {
		inputs[i] = renderPairInput(p)
	}

	raw, err := llmmap.MapStructured[RawImpact](ctx, c, inputs, extractionPrompt, rawImpactFormat, llmmap.Options{
		Concurrency: concurrency,
		Temperature: extractionTemperature,
		UseCache:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("detector: extract impacts: %w", err)
	}

	var out []ScoredImpact
	for i, imp := range raw {
		if imp.Relevance < 0 || imp.Relevance > 100 {
			return nil, fmt.Errorf("detector: impact %d: relevance %d outside 0-100", i, imp.Relevance)
		}
		if imp.Relevance == 0 {
			continue
		}
		out = append(out, ScoredImpact{Pair: pairs[i], Impact: imp})
	}
	return out, nil
}
