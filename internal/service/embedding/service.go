package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// CacheEntry is a vector keyed by the SHA-256 of its source text. Mirrors
// one embedding_cache row without pulling the storage package in here.
type CacheEntry struct {
	TextHash  string
	Vector    []float32
	ModelName string
	Dimension int
}

// Cache is the persistent embedding cache consulted before any provider
// call. Get returns only the hashes that have a row for the given model;
// Put must ignore conflicts so concurrent writers of the same hash are safe.
type Cache interface {
	GetCachedEmbeddings(ctx context.Context, hashes []string, model string) (map[string][]float32, error)
	InsertCachedEmbeddings(ctx context.Context, entries []CacheEntry) error
}

// Service generates embeddings through the cache: hash every input, fetch
// known vectors, call the provider only for misses (in batches), persist
// the new vectors, and reassemble the output in input order.
type Service struct {
	provider  Provider
	cache     Cache
	logger    *slog.Logger
	batchSize int
}

// NewService creates a cache-through embedding service. batchSize bounds
// the number of texts per provider call; values <= 0 fall back to 100.
func NewService(provider Provider, cache Cache, logger *slog.Logger, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{provider: provider, cache: cache, logger: logger, batchSize: batchSize}
}

// HashText returns the lowercase hex SHA-256 of the UTF-8 bytes of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedTexts embeds texts preserving index alignment with the input.
// Blank inputs (empty after trimming) are replaced by a single-space
// placeholder so the output keeps the same length; callers apply their own
// validity rule before invoking.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Substitute placeholders and hash every position.
	effective := make([]string, len(texts))
	hashes := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		effective[i] = t
		hashes[i] = HashText(t)
	}

	model := s.provider.Model()
	cached, err := s.cache.GetCachedEmbeddings(ctx, hashes, model)
	if err != nil {
		return nil, fmt.Errorf("embedding: cache lookup: %w", err)
	}

	// Collect misses, deduplicated by hash so repeated texts cost one call.
	var missTexts []string
	var missHashes []string
	seen := make(map[string]bool)
	for i, h := range hashes {
		if _, ok := cached[h]; ok || seen[h] {
			continue
		}
		seen[h] = true
		missTexts = append(missTexts, effective[i])
		missHashes = append(missHashes, h)
	}
	s.logger.Debug("embedding: cache consulted",
		"total", len(texts), "hits", len(texts)-len(missTexts), "misses", len(missTexts), "model", model)

	computed := make(map[string][]float32, len(missTexts))
	if len(missTexts) > 0 {
		entries := make([]CacheEntry, 0, len(missTexts))
		for start := 0; start < len(missTexts); start += s.batchSize {
			end := min(start+s.batchSize, len(missTexts))
			vecs, err := s.provider.EmbedBatch(ctx, missTexts[start:end])
			if err != nil {
				return nil, fmt.Errorf("embedding: batch %d: %w", start/s.batchSize+1, err)
			}
			if len(vecs) != end-start {
				return nil, fmt.Errorf("embedding: batch %d: got %d vectors for %d inputs", start/s.batchSize+1, len(vecs), end-start)
			}
			for j, vec := range vecs {
				h := missHashes[start+j]
				computed[h] = vec
				entries = append(entries, CacheEntry{
					TextHash:  h,
					Vector:    vec,
					ModelName: model,
					Dimension: len(vec),
				})
			}
		}

		if err := s.cache.InsertCachedEmbeddings(ctx, entries); err != nil {
			return nil, fmt.Errorf("embedding: cache insert: %w", err)
		}
		s.logger.Info("embedding: generated vectors", "count", len(entries), "model", model)
	}

	// Reassemble in original order.
	out := make([][]float32, len(texts))
	for i, h := range hashes {
		if vec, ok := cached[h]; ok {
			out[i] = vec
			continue
		}
		out[i] = computed[h]
	}
	return out, nil
}
