// Package lexora is the public API for embedding the Lexora regulatory
// impact server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := lexora.New(
//	    lexora.WithVersion(version),
//	    lexora.WithLogger(logger),
//	    lexora.WithBillSource(myCorpus),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: lexora (root) imports
// internal/*, but internal/* never imports lexora (root). Public types
// (Bill, BillImpact, etc.) are standalone structs with no internal imports;
// conversion helpers live here because this is the only file that sees both
// sides of the boundary.
package lexora

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/lexora-ai/lexora/internal/auth"
	"github.com/lexora-ai/lexora/internal/config"
	"github.com/lexora-ai/lexora/internal/detector"
	"github.com/lexora-ai/lexora/internal/document"
	"github.com/lexora-ai/lexora/internal/llm"
	"github.com/lexora-ai/lexora/internal/model"
	"github.com/lexora-ai/lexora/internal/server"
	"github.com/lexora-ai/lexora/internal/service/embedding"
	"github.com/lexora-ai/lexora/internal/storage"
	"github.com/lexora-ai/lexora/internal/telemetry"
	"github.com/lexora-ai/lexora/migrations"
)

// App is the Lexora server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	detector     *detector.Detector
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Lexora server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("lexora starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Embedding provider: external override takes priority over config.
	var provider embedding.Provider
	switch {
	case o.embeddingProvider != nil:
		provider = o.embeddingProvider
	case cfg.OpenAIAPIKey != "":
		provider = embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		logger.Warn("no OPENAI_API_KEY configured, using noop embedding provider (matching is disabled)")
		provider = embedding.NewNoopProvider(cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}
	embedSvc := embedding.NewService(provider, &storeEmbeddingCache{db: db}, logger, cfg.EmbeddingBatchSize)

	// Chat completer: external override takes priority over config.
	var completer llm.Completer
	if o.completer != nil {
		completer = &completerAdapter{c: o.completer}
	} else {
		completer = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatModel)
	}

	// Bill corpus: external override takes priority over Postgres.
	var bills detector.BillSource = db
	if o.billSource != nil {
		bills = &billSourceAdapter{s: o.billSource}
	}

	det := detector.New(bills, embedSvc, completer, detector.Config{
		SimilarityThreshold:      cfg.SimilarityThreshold,
		MaxArticlesPerPage:       cfg.MaxArticlesPerPage,
		ExtractionConcurrency:    cfg.ExtractionConcurrency,
		ConsolidationConcurrency: cfg.ConsolidationConcurrency,
	}, logger)

	app := &App{
		cfg:          cfg,
		db:           db,
		detector:     det,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}

	app.srv = server.New(server.Config{
		Store:          db,
		JWTMgr:         jwtMgr,
		Analyzer:       app,
		Logger:         logger,
		Port:           cfg.Port,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		Version:        version,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	// Seed the bootstrap API key so the first operator can authenticate.
	if cfg.AdminAPIKey != "" {
		hash, err := auth.HashAPIKey(cfg.AdminAPIKey)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("admin seed: %w", err)
		}
		if err := db.UpsertAPIKey(context.Background(), cfg.AdminOwner, hash); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("admin seed: %w", err)
		}
		logger.Info("bootstrap api key seeded", "owner", cfg.AdminOwner)
	}

	return app, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically;
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the database pool
// and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("lexora shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("lexora stopped")
	return nil
}

// Analyze runs the detection pipeline over pre-extracted page texts without
// persisting anything. Pages are 0-indexed in reading order; blank pages
// keep their index in the result.
func (a *App) Analyze(ctx context.Context, pages []string) (*AnalysisResult, error) {
	res, err := a.detector.Analyze(ctx, pages)
	if err != nil {
		return nil, err
	}
	return toPublicResult(res), nil
}

// AnalyzeDocument extracts pages from a PDF, runs the pipeline, and
// persists the document with one PENDING discovery per impacted bill.
// It satisfies the HTTP server's Analyzer dependency.
func (a *App) AnalyzeDocument(ctx context.Context, owner, name string, data []byte) (model.Document, []model.Discovery, map[string]map[int][]int, error) {
	pages, err := document.ExtractPages(data)
	if err != nil {
		return model.Document{}, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.AnalysisTimeout)
	defer cancel()

	res, err := a.detector.Analyze(ctx, pages)
	if err != nil {
		return model.Document{}, nil, nil, err
	}

	now := time.Now().UTC()
	doc := model.Document{
		ID:         uuid.New(),
		Owner:      owner,
		Name:       name,
		UploadedAt: now,
	}
	if err := a.db.InsertDocument(ctx, doc); err != nil {
		return model.Document{}, nil, nil, err
	}

	discoveries := make([]model.Discovery, 0, len(res.BillImpacts))
	for _, bi := range res.BillImpacts {
		discoveries = append(discoveries, model.Discovery{
			ID:                      uuid.New(),
			DocumentID:              doc.ID,
			BillID:                  bi.BillID,
			BillTitle:               bi.BillTitle,
			MaxRelevance:            bi.MaxRelevance,
			ConsolidatedDescription: bi.ConsolidatedDescription,
			Status:                  model.DiscoveryPending,
			AnalyzedAt:              now,
			Impacts:                 bi.Impacts,
		})
	}
	if err := a.db.InsertDiscoveries(ctx, discoveries); err != nil {
		return model.Document{}, nil, nil, err
	}

	a.logger.Info("document analyzed",
		"owner", owner,
		"document_id", doc.ID,
		"pages", len(pages),
		"discoveries", len(discoveries),
	)
	return doc, discoveries, res.PageMatches, nil
}

// ── Adapters between the public surface and internal packages ─────────────────

// storeEmbeddingCache adapts *storage.DB to the embedding service's Cache
// interface without the embedding package importing storage.
type storeEmbeddingCache struct {
	db *storage.DB
}

func (c *storeEmbeddingCache) GetCachedEmbeddings(ctx context.Context, hashes []string, model string) (map[string][]float32, error) {
	return c.db.GetCachedEmbeddings(ctx, hashes, model)
}

func (c *storeEmbeddingCache) InsertCachedEmbeddings(ctx context.Context, entries []embedding.CacheEntry) error {
	rows := make([]storage.EmbeddingCacheEntry, len(entries))
	for i, e := range entries {
		rows[i] = storage.EmbeddingCacheEntry{
			TextHash:  e.TextHash,
			Vector:    e.Vector,
			ModelName: e.ModelName,
			Dimension: e.Dimension,
		}
	}
	return c.db.InsertCachedEmbeddings(ctx, rows)
}

// completerAdapter adapts a public Completer to the internal llm.Completer.
type completerAdapter struct {
	c Completer
}

func (a *completerAdapter) Complete(ctx context.Context, req llm.Request) (string, error) {
	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}
	if req.Format != nil {
		return a.c.Complete(ctx, system, user, req.Format.Schema, req.Temperature)
	}
	return a.c.Complete(ctx, system, user, nil, req.Temperature)
}

// billSourceAdapter adapts a public BillSource to the detector's.
type billSourceAdapter struct {
	s BillSource
}

func (a *billSourceAdapter) ListBills(ctx context.Context) ([]model.Bill, error) {
	bills, err := a.s.ListBills(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Bill, len(bills))
	for i, b := range bills {
		articles := make([]model.Article, len(b.Articles))
		for j, art := range b.Articles {
			articles[j] = model.Article{
				Number:              art.Number,
				Kind:                art.Kind,
				Text:                art.Text,
				SemanticDescription: art.SemanticDescription,
			}
		}
		out[i] = model.Bill{
			ID:       b.ID,
			Title:    b.Title,
			Chamber:  b.Chamber,
			Kind:     b.Kind,
			Stage:    b.Stage,
			Urgency:  b.Urgency,
			Date:     b.Date,
			Articles: articles,
		}
	}
	return out, nil
}

func toPublicResult(res *detector.Result) *AnalysisResult {
	out := &AnalysisResult{
		BillImpacts: make([]BillImpact, len(res.BillImpacts)),
		PageMatches: res.PageMatches,
	}
	for i, bi := range res.BillImpacts {
		impacts := make([]Impact, len(bi.Impacts))
		for j, imp := range bi.Impacts {
			impacts[j] = Impact{
				ArticleNumber:     imp.ArticleNumber,
				InternalExcerpt:   imp.InternalExcerpt,
				ArticleExcerpt:    imp.ArticleExcerpt,
				Relevance:         imp.Relevance,
				ImpactDescription: imp.ImpactDescription,
			}
		}
		out.BillImpacts[i] = BillImpact{
			BillID:                  bi.BillID,
			BillTitle:               bi.BillTitle,
			Impacts:                 impacts,
			MaxRelevance:            bi.MaxRelevance,
			ConsolidatedDescription: bi.ConsolidatedDescription,
		}
	}
	return out
}
