package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexora-ai/lexora/internal/model"
	"github.com/lexora-ai/lexora/internal/storage"
	"github.com/lexora-ai/lexora/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage_test: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	defer testDB.Close()

	os.Exit(m.Run())
}

// cleanTables wipes all mutable state between tests. Bills cascade to
// articles, documents cascade to discoveries and impacts.
func cleanTables(t *testing.T) {
	t.Helper()
	_, err := testDB.Pool().Exec(context.Background(),
		`TRUNCATE bills, documents, embedding_cache, api_keys CASCADE`)
	require.NoError(t, err)
}

// testVector returns a deterministic 1536-dim vector distinguishable by seed.
func testVector(seed float32) []float32 {
	v := make([]float32, 1536)
	v[0] = seed
	v[1] = 1
	return v
}

func sampleBill(id string, articleCount int) model.Bill {
	b := model.Bill{
		ID:      id,
		Title:   "Ley de prueba " + id,
		Chamber: "C.Diputados",
		Kind:    "Proyecto de ley",
		Stage:   1,
		Urgency: "Sin urgencia",
		Date:    time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i <= articleCount; i++ {
		b.Articles = append(b.Articles, model.Article{
			Number:              i,
			Kind:                "permanente",
			Text:                fmt.Sprintf("Artículo %d de %s", i, id),
			SemanticDescription: fmt.Sprintf("descripción semántica %d de %s", i, id),
		})
	}
	return b
}

func TestBillsRoundTrip(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertBill(ctx, sampleBill("boletin-200", 1)))
	require.NoError(t, testDB.UpsertBill(ctx, sampleBill("boletin-100", 2)))

	bills, err := testDB.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 2)

	// Ordered by bill id, articles by number.
	assert.Equal(t, "boletin-100", bills[0].ID)
	assert.Equal(t, "boletin-200", bills[1].ID)
	require.Len(t, bills[0].Articles, 2)
	assert.Equal(t, 1, bills[0].Articles[0].Number)
	assert.Equal(t, 2, bills[0].Articles[1].Number)
	assert.Equal(t, "descripción semántica 1 de boletin-100", bills[0].Articles[0].SemanticDescription)
	assert.Equal(t, "Ley de prueba boletin-200", bills[1].Title)
	assert.True(t, bills[0].Date.Equal(time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)))
}

func TestUpsertBillReplacesArticles(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertBill(ctx, sampleBill("boletin-300", 3)))

	updated := sampleBill("boletin-300", 1)
	updated.Title = "Ley de prueba boletin-300 refundida"
	updated.Stage = 2
	require.NoError(t, testDB.UpsertBill(ctx, updated))

	bills, err := testDB.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "Ley de prueba boletin-300 refundida", bills[0].Title)
	assert.Equal(t, 2, bills[0].Stage)
	assert.Len(t, bills[0].Articles, 1)
}

func TestListBillsEmpty(t *testing.T) {
	cleanTables(t)

	bills, err := testDB.ListBills(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	const modelName = "text-embedding-3-small"

	hashA := "aa11" + fmt.Sprintf("%060d", 0)
	hashB := "bb22" + fmt.Sprintf("%060d", 0)

	err := testDB.InsertCachedEmbeddings(ctx, []storage.EmbeddingCacheEntry{
		{TextHash: hashA, Vector: testVector(0.5), ModelName: modelName, Dimension: 1536},
		{TextHash: hashB, Vector: testVector(0.9), ModelName: modelName, Dimension: 1536},
	})
	require.NoError(t, err)

	got, err := testDB.GetCachedEmbeddings(ctx, []string{hashA, hashB, "cc33" + fmt.Sprintf("%060d", 0)}, modelName)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5, got[hashA][0], 1e-6)
	assert.InDelta(t, 0.9, got[hashB][0], 1e-6)

	// Same hash under a different model is a miss.
	other, err := testDB.GetCachedEmbeddings(ctx, []string{hashA}, "text-embedding-3-large")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEmbeddingCacheConflictIgnored(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	const modelName = "text-embedding-3-small"
	hash := "dd44" + fmt.Sprintf("%060d", 0)

	first := []storage.EmbeddingCacheEntry{{TextHash: hash, Vector: testVector(1.0), ModelName: modelName, Dimension: 1536}}
	require.NoError(t, testDB.InsertCachedEmbeddings(ctx, first))

	// Re-inserting the same hash keeps the original row.
	second := []storage.EmbeddingCacheEntry{{TextHash: hash, Vector: testVector(2.0), ModelName: modelName, Dimension: 1536}}
	require.NoError(t, testDB.InsertCachedEmbeddings(ctx, second))

	got, err := testDB.GetCachedEmbeddings(ctx, []string{hash}, modelName)
	require.NoError(t, err)
	require.Contains(t, got, hash)
	assert.InDelta(t, 1.0, got[hash][0], 1e-6)
}

func TestEmbeddingCacheEmptyArgs(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()

	got, err := testDB.GetCachedEmbeddings(ctx, nil, "text-embedding-3-small")
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, testDB.InsertCachedEmbeddings(ctx, nil))
}

func insertTestDocument(t *testing.T, owner, name string, uploadedAt time.Time) model.Document {
	t.Helper()
	doc := model.Document{
		ID:         uuid.New(),
		Owner:      owner,
		Name:       name,
		UploadedAt: uploadedAt,
	}
	require.NoError(t, testDB.InsertDocument(context.Background(), doc))
	return doc
}

func TestDocumentsOwnerScoping(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	older := insertTestDocument(t, "acme-legal", "politica-datos.pdf", now.Add(-time.Hour))
	newer := insertTestDocument(t, "acme-legal", "manual-interno.pdf", now)
	insertTestDocument(t, "other-corp", "otro.pdf", now)

	got, err := testDB.GetDocument(ctx, older.ID, "acme-legal")
	require.NoError(t, err)
	assert.Equal(t, "politica-datos.pdf", got.Name)
	assert.True(t, got.UploadedAt.Equal(older.UploadedAt))

	_, err = testDB.GetDocument(ctx, older.ID, "other-corp")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	docs, err := testDB.ListDocuments(ctx, "acme-legal", 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, newer.ID, docs[0].ID)
	assert.Equal(t, older.ID, docs[1].ID)

	limited, err := testDB.ListDocuments(ctx, "acme-legal", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}

func sampleDiscovery(docID uuid.UUID, billID string, analyzedAt time.Time) model.Discovery {
	return model.Discovery{
		ID:                      uuid.New(),
		DocumentID:              docID,
		BillID:                  billID,
		BillTitle:               "Ley de prueba " + billID,
		MaxRelevance:            85,
		ConsolidatedDescription: "impacto consolidado para " + billID,
		Status:                  model.DiscoveryPending,
		AnalyzedAt:              analyzedAt,
		Impacts: []model.Impact{
			{ArticleNumber: 2, InternalExcerpt: "extracto interno", ArticleExcerpt: "extracto artículo", Relevance: 40, ImpactDescription: "impacto menor"},
			{ArticleNumber: 1, InternalExcerpt: "extracto interno", ArticleExcerpt: "extracto artículo", Relevance: 85, ImpactDescription: "impacto crítico"},
		},
	}
}

func TestDiscoveriesRoundTrip(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	doc := insertTestDocument(t, "acme-legal", "politica-datos.pdf", now)
	otherDoc := insertTestDocument(t, "other-corp", "otro.pdf", now)

	first := sampleDiscovery(doc.ID, "boletin-100", now.Add(-time.Minute))
	second := sampleDiscovery(doc.ID, "boletin-200", now)
	foreign := sampleDiscovery(otherDoc.ID, "boletin-300", now)
	require.NoError(t, testDB.InsertDiscoveries(ctx, []model.Discovery{first, second}))
	require.NoError(t, testDB.InsertDiscoveries(ctx, []model.Discovery{foreign}))

	list, err := testDB.ListDiscoveries(ctx, "acme-legal", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Empty(t, list[0].Impacts)

	got, err := testDB.GetDiscovery(ctx, first.ID, "acme-legal")
	require.NoError(t, err)
	assert.Equal(t, "boletin-100", got.BillID)
	assert.Equal(t, 85, got.MaxRelevance)
	assert.Equal(t, model.DiscoveryPending, got.Status)
	require.Len(t, got.Impacts, 2)

	// Impacts come back ordered by relevance descending.
	assert.Equal(t, 85, got.Impacts[0].Relevance)
	assert.Equal(t, 1, got.Impacts[0].ArticleNumber)
	assert.Equal(t, 40, got.Impacts[1].Relevance)

	_, err = testDB.GetDiscovery(ctx, first.ID, "other-corp")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertDiscoveriesEmpty(t *testing.T) {
	cleanTables(t)
	require.NoError(t, testDB.InsertDiscoveries(context.Background(), nil))
}

func TestUpdateDiscoveryStatus(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	doc := insertTestDocument(t, "acme-legal", "politica-datos.pdf", now)
	d := sampleDiscovery(doc.ID, "boletin-100", now)
	require.NoError(t, testDB.InsertDiscoveries(ctx, []model.Discovery{d}))

	require.NoError(t, testDB.UpdateDiscoveryStatus(ctx, d.ID, "acme-legal", model.DiscoveryTracking))
	got, err := testDB.GetDiscovery(ctx, d.ID, "acme-legal")
	require.NoError(t, err)
	assert.Equal(t, model.DiscoveryTracking, got.Status)

	// TRACKING and DISCARDED may swap between each other.
	require.NoError(t, testDB.UpdateDiscoveryStatus(ctx, d.ID, "acme-legal", model.DiscoveryDiscarded))
	require.NoError(t, testDB.UpdateDiscoveryStatus(ctx, d.ID, "acme-legal", model.DiscoveryTracking))

	err = testDB.UpdateDiscoveryStatus(ctx, d.ID, "acme-legal", model.DiscoveryPending)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	err = testDB.UpdateDiscoveryStatus(ctx, d.ID, "acme-legal", model.DiscoveryStatus("ARCHIVED"))
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	err = testDB.UpdateDiscoveryStatus(ctx, d.ID, "other-corp", model.DiscoveryDiscarded)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = testDB.UpdateDiscoveryStatus(ctx, uuid.New(), "acme-legal", model.DiscoveryDiscarded)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAPIKeysRoundTrip(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()

	_, err := testDB.GetAPIKeyHash(ctx, "acme-legal")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, testDB.UpsertAPIKey(ctx, "acme-legal", "hash-v1"))
	hash, err := testDB.GetAPIKeyHash(ctx, "acme-legal")
	require.NoError(t, err)
	assert.Equal(t, "hash-v1", hash)

	// Rotation replaces the stored hash.
	require.NoError(t, testDB.UpsertAPIKey(ctx, "acme-legal", "hash-v2"))
	hash, err = testDB.GetAPIKeyHash(ctx, "acme-legal")
	require.NoError(t, err)
	assert.Equal(t, "hash-v2", hash)
}
