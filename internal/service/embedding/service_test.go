package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns deterministic vectors derived from text length and
// counts every batch call.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	failOn  int // 1-based batch number to fail on; 0 disables
}

func (p *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.batches = append(p.batches, append([]string(nil), texts...))
	if p.failOn != 0 && p.calls == p.failOn {
		return nil, fmt.Errorf("provider unavailable")
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1}
	}
	return vecs, nil
}

func (p *fakeProvider) Model() string   { return "text-embedding-3-small" }
func (p *fakeProvider) Dimensions() int { return 2 }

// memCache is an in-memory Cache with conflict-ignore semantics.
type memCache struct {
	mu      sync.Mutex
	rows    map[string][]float32
	inserts int
}

func newMemCache() *memCache {
	return &memCache{rows: make(map[string][]float32)}
}

func (c *memCache) GetCachedEmbeddings(_ context.Context, hashes []string, model string) (map[string][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]float32)
	for _, h := range hashes {
		if v, ok := c.rows[h+"|"+model]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (c *memCache) InsertCachedEmbeddings(_ context.Context, entries []CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		key := e.TextHash + "|" + e.ModelName
		if _, exists := c.rows[key]; !exists {
			c.rows[key] = e.Vector
		}
		c.inserts++
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEmbedTextsPreservesOrderAndLength(t *testing.T) {
	p := &fakeProvider{}
	svc := NewService(p, newMemCache(), testLogger(), 100)

	texts := []string{"corto", "un texto algo mas largo", "otro"}
	vecs, err := svc.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0], "position %d misaligned", i)
	}
}

func TestEmbedTextsBlankInputsGetPlaceholder(t *testing.T) {
	p := &fakeProvider{}
	svc := NewService(p, newMemCache(), testLogger(), 100)

	vecs, err := svc.EmbedTexts(context.Background(), []string{"", "   ", "texto"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	// Blank inputs are embedded as a single space, so the output keeps
	// index alignment and both blanks share one vector.
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, vecs[0], vecs[1])
	assert.Equal(t, float32(5), vecs[2][0])
}

func TestEmbedTextsSecondRunHitsCacheOnly(t *testing.T) {
	p := &fakeProvider{}
	cache := newMemCache()
	svc := NewService(p, cache, testLogger(), 100)
	texts := []string{"tratamiento de datos personales", "gestion de residuos"}

	first, err := svc.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)

	second, err := svc.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls, "populated cache must bypass the provider entirely")
	assert.Equal(t, first, second)
}

func TestEmbedTextsDeduplicatesRepeatedTexts(t *testing.T) {
	p := &fakeProvider{}
	svc := NewService(p, newMemCache(), testLogger(), 100)

	vecs, err := svc.EmbedTexts(context.Background(), []string{"mismo", "mismo", "mismo"})
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
	require.Len(t, p.batches[0], 1)
	assert.Equal(t, vecs[0], vecs[1])
	assert.Equal(t, vecs[1], vecs[2])
}

func TestEmbedTextsBatchesMisses(t *testing.T) {
	p := &fakeProvider{}
	svc := NewService(p, newMemCache(), testLogger(), 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	_, err := svc.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls, "5 misses at batch size 2 => 3 calls")
	assert.Len(t, p.batches[0], 2)
	assert.Len(t, p.batches[2], 1)
}

func TestEmbedTextsProviderFailureIsFatal(t *testing.T) {
	p := &fakeProvider{failOn: 2}
	cache := newMemCache()
	svc := NewService(p, cache, testLogger(), 1)

	_, err := svc.EmbedTexts(context.Background(), []string{"uno", "dos"})
	require.Error(t, err)
	assert.Zero(t, cache.inserts, "partial batch success is treated as failure")
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	p := &fakeProvider{}
	svc := NewService(p, newMemCache(), testLogger(), 100)

	vecs, err := svc.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Zero(t, p.calls)
}

func TestHashText(t *testing.T) {
	// SHA-256 of "abc", a fixed vector from FIPS 180-2.
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashText("abc"))
	assert.Len(t, HashText(" "), 64)
}
