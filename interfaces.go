package lexora

import (
	"context"
	"encoding/json"
)

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the OpenAI provider.
// Vectors must be index-aligned with the input and all of Dimensions()
// length; Model() names the cache namespace for persisted vectors.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// Completer executes one chat completion.
// When provided via WithCompleter, replaces the OpenAI chat client for both
// the extraction and consolidation stages. schema is nil for free-text
// calls; when set, the response must be a JSON document matching it.
type Completer interface {
	Complete(ctx context.Context, system, user string, schema json.RawMessage, temperature float32) (string, error)
}

// BillSource supplies the legislative corpus an analysis runs against.
// When provided via WithBillSource, replaces the Postgres-backed corpus.
type BillSource interface {
	ListBills(ctx context.Context) ([]Bill, error)
}
