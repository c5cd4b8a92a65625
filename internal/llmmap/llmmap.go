// Package llmmap applies a prompt template over a list of inputs with
// bounded concurrency, an in-process response cache, and order-preserving
// results.
//
// The template references a single variable, {item}. Results are returned
// in input order regardless of completion order. A single failed call
// aborts the whole map; the caller decides whether to retry the stage.
package llmmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lexora-ai/lexora/internal/llm"
)

// Placeholder is the single variable a template's user prompt must contain.
const Placeholder = "{item}"

// Template is a chat prompt with one {item} variable in the user message.
// System may be empty.
type Template struct {
	System string
	User   string
}

// Render substitutes item into the template and produces the chat messages.
func (t Template) Render(item string) []llm.Message {
	var msgs []llm.Message
	if t.System != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: t.System})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: strings.ReplaceAll(t.User, Placeholder, item)})
	return msgs
}

// digest covers both messages so changing either invalidates cached entries.
func (t Template) digest() string {
	return digest(t.System + "\x00" + t.User)
}

// Options tunes one map invocation.
type Options struct {
	// Concurrency caps in-flight LLM calls. Values <= 0 fall back to 16.
	Concurrency int
	// Temperature is forwarded to the completer.
	Temperature float32
	// UseCache consults and populates the process-wide response cache.
	UseCache bool
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return 16
	}
	return o.Concurrency
}

// MapText applies the template to every input and returns the raw
// completion texts in input order.
func MapText(ctx context.Context, c llm.Completer, inputs []string, tmpl Template, opts Options) ([]string, error) {
	return mapRaw(ctx, c, inputs, tmpl, nil, opts)
}

// MapStructured applies the template with the provider's structured-output
// mode and unmarshals every response into T. Results are in input order.
func MapStructured[T any](ctx context.Context, c llm.Completer, inputs []string, tmpl Template, format llm.ResponseFormat, opts Options) ([]T, error) {
	raw, err := mapRaw(ctx, c, inputs, tmpl, &format, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raw))
	for i, doc := range raw {
		if err := json.Unmarshal([]byte(doc), &out[i]); err != nil {
			return nil, fmt.Errorf("llmmap: parse structured response %d: %w", i, err)
		}
	}
	return out, nil
}

// Stage is one step of a sequential map pipeline.
type Stage struct {
	Template Template
	// Format, when set, runs the stage in structured-output mode; its
	// output is the JSON document, which becomes the next stage's input.
	Format *llm.ResponseFormat
}

// MapPipeline runs the stages in order: the outputs of stage N become the
// inputs of stage N+1, coerced to their string form. Returns the final
// stage's outputs in original input order.
func MapPipeline(ctx context.Context, c llm.Completer, inputs []string, stages []Stage, opts Options) ([]string, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("llmmap: pipeline needs at least one stage")
	}
	current := inputs
	for i, stage := range stages {
		next, err := mapRaw(ctx, c, current, stage.Template, stage.Format, opts)
		if err != nil {
			return nil, fmt.Errorf("llmmap: pipeline stage %d: %w", i+1, err)
		}
		current = next
	}
	return current, nil
}

// mapRaw is the shared fan-out. Cached positions are filled first, the
// remainder dispatched under an errgroup with a concurrency cap; a failed
// call cancels the group's context so outstanding requests stop.
func mapRaw(ctx context.Context, c llm.Completer, inputs []string, tmpl Template, format *llm.ResponseFormat, opts Options) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	tmplDigest := tmpl.digest()
	results := make([]string, len(inputs))
	var pending []int

	if opts.UseCache {
		for i, in := range inputs {
			if v, ok := cache.get(cacheKey{template: tmplDigest, input: digest(in)}); ok {
				results[i] = v
				continue
			}
			pending = append(pending, i)
		}
	} else {
		pending = make([]int, len(inputs))
		for i := range inputs {
			pending[i] = i
		}
	}

	if len(pending) == 0 {
		return results, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())

	for _, i := range pending {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			out, err := c.Complete(gCtx, llm.Request{
				Messages:    tmpl.Render(inputs[i]),
				Format:      format,
				Temperature: opts.Temperature,
			})
			if err != nil {
				return fmt.Errorf("llmmap: item %d: %w", i, err)
			}
			results[i] = out
			if opts.UseCache {
				cache.put(cacheKey{template: tmplDigest, input: digest(inputs[i])}, out)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
