package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexora-ai/lexora/internal/auth"
	"github.com/lexora-ai/lexora/internal/model"
	"github.com/lexora-ai/lexora/internal/storage"
)

// Store is the persistence surface the handlers need. *storage.DB
// satisfies it; tests substitute a fake.
type Store interface {
	GetAPIKeyHash(ctx context.Context, owner string) (string, error)
	ListDocuments(ctx context.Context, owner string, limit int) ([]model.Document, error)
	ListDiscoveries(ctx context.Context, owner string, limit int) ([]model.Discovery, error)
	GetDiscovery(ctx context.Context, id uuid.UUID, owner string) (model.Discovery, error)
	UpdateDiscoveryStatus(ctx context.Context, id uuid.UUID, owner string, status model.DiscoveryStatus) error
	Ping(ctx context.Context) error
}

// Analyzer runs the full pipeline for one uploaded PDF and persists the
// outcome. Returns the stored document, its discoveries, and the
// page-match summary.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, owner, name string, data []byte) (model.Document, []model.Discovery, map[string]map[int][]int, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store          Store
	jwtMgr         *auth.JWTManager
	analyzer       Analyzer
	logger         *slog.Logger
	startedAt      time.Time
	version        string
	maxUploadBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store          Store
	JWTMgr         *auth.JWTManager
	Analyzer       Analyzer
	Logger         *slog.Logger
	Version        string
	MaxUploadBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:          d.Store,
		jwtMgr:         d.JWTMgr,
		analyzer:       d.Analyzer,
		logger:         d.Logger,
		startedAt:      time.Now(),
		version:        d.Version,
		maxUploadBytes: d.MaxUploadBytes,
	}
}

// HandleAuthToken handles POST /auth/token. Exchanges an owner's API key
// for a session JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Owner == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "owner and api_key are required")
		return
	}

	hash, err := h.store.GetAPIKeyHash(r.Context(), req.Owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn the same time as a real verification so response
			// timing does not reveal whether the owner exists.
			auth.DummyVerify()
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.writeInternalError(w, r, "look up api key", err)
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, hash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.Owner)
	if err != nil {
		h.writeInternalError(w, r, "issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleUploadDocument handles POST /v1/documents. Accepts a multipart
// upload with a "file" field, runs the analysis pipeline synchronously,
// and returns the stored document with its discoveries.
func (h *Handlers) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "upload exceeds size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "read upload")
		return
	}

	name := header.Filename
	if name == "" {
		name = "document.pdf"
	}

	doc, discoveries, pageMatches, err := h.analyzer.AnalyzeDocument(r.Context(), claims.Owner, name, data)
	if err != nil {
		if isClientError(err) {
			writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeInternalError(w, r, "analyze document", err)
		return
	}

	resp := model.AnalyzeDocumentResponse{
		Document:    model.NewDocumentResponse(doc),
		Discoveries: make([]model.DiscoveryResponse, 0, len(discoveries)),
		PageMatches: pageMatches,
	}
	for _, d := range discoveries {
		resp.Discoveries = append(resp.Discoveries, model.NewDiscoveryResponse(d))
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

// isClientError reports whether an analysis failure was caused by the
// uploaded file rather than the pipeline.
func isClientError(err error) bool {
	return strings.Contains(err.Error(), "document: ")
}

// HandleListDocuments handles GET /v1/documents.
func (h *Handlers) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), claims.Owner, queryLimit(r))
	if err != nil {
		h.writeInternalError(w, r, "list documents", err)
		return
	}

	out := make([]model.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.NewDocumentResponse(d))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleListDiscoveries handles GET /v1/discoveries.
func (h *Handlers) HandleListDiscoveries(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	discoveries, err := h.store.ListDiscoveries(r.Context(), claims.Owner, queryLimit(r))
	if err != nil {
		h.writeInternalError(w, r, "list discoveries", err)
		return
	}

	out := make([]model.DiscoveryResponse, 0, len(discoveries))
	for _, d := range discoveries {
		out = append(out, model.NewDiscoveryResponse(d))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleGetDiscovery handles GET /v1/discoveries/{discovery_id}.
func (h *Handlers) HandleGetDiscovery(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	id, err := uuid.Parse(r.PathValue("discovery_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid discovery id")
		return
	}

	d, err := h.store.GetDiscovery(r.Context(), id, claims.Owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "discovery not found")
			return
		}
		h.writeInternalError(w, r, "get discovery", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.NewDiscoveryResponse(d))
}

// HandleUpdateDiscoveryStatus handles PATCH /v1/discoveries/{discovery_id}/status.
func (h *Handlers) HandleUpdateDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	id, err := uuid.Parse(r.PathValue("discovery_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid discovery id")
		return
	}

	var req model.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	if err := h.store.UpdateDiscoveryStatus(r.Context(), id, claims.Owner, req.Status); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidTransition):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "discovery not found")
		default:
			h.writeInternalError(w, r, "update discovery status", err)
		}
		return
	}

	d, err := h.store.GetDiscovery(r.Context(), id, claims.Owner)
	if err != nil {
		h.writeInternalError(w, r, "reload discovery", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.NewDiscoveryResponse(d))
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// writeInternalError logs the error with full detail and returns a generic
// message to the client.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, action string, err error) {
	h.logger.Error("handler error",
		"action", action,
		"error", err,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
}

// queryLimit parses the optional limit query parameter; 0 lets storage
// apply its default.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
