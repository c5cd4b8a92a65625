package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	Owner  string `json:"owner"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response body for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentResponse is the wire form of an uploaded document.
type DocumentResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// NewDocumentResponse converts a Document to its wire form.
func NewDocumentResponse(d Document) DocumentResponse {
	return DocumentResponse{ID: d.ID, Name: d.Name, UploadedAt: d.UploadedAt}
}

// ImpactResponse is the wire form of one article-level impact.
type ImpactResponse struct {
	ArticleNumber     int    `json:"article_number"`
	InternalExcerpt   string `json:"internal_excerpt"`
	ArticleExcerpt    string `json:"article_excerpt"`
	Relevance         int    `json:"relevance"`
	ImpactDescription string `json:"impact_description"`
}

// DiscoveryResponse is the wire form of a discovery. Impacts is populated
// only by the detail endpoint.
type DiscoveryResponse struct {
	ID                      uuid.UUID        `json:"id"`
	DocumentID              uuid.UUID        `json:"document_id"`
	BillID                  string           `json:"bill_id"`
	BillTitle               string           `json:"bill_title"`
	MaxRelevance            int              `json:"max_relevance"`
	ConsolidatedDescription string           `json:"consolidated_description"`
	Status                  DiscoveryStatus  `json:"status"`
	AnalyzedAt              time.Time        `json:"analyzed_at"`
	Impacts                 []ImpactResponse `json:"impacts,omitempty"`
}

// NewDiscoveryResponse converts a Discovery to its wire form.
func NewDiscoveryResponse(d Discovery) DiscoveryResponse {
	resp := DiscoveryResponse{
		ID:                      d.ID,
		DocumentID:              d.DocumentID,
		BillID:                  d.BillID,
		BillTitle:               d.BillTitle,
		MaxRelevance:            d.MaxRelevance,
		ConsolidatedDescription: d.ConsolidatedDescription,
		Status:                  d.Status,
		AnalyzedAt:              d.AnalyzedAt,
	}
	for _, imp := range d.Impacts {
		resp.Impacts = append(resp.Impacts, ImpactResponse{
			ArticleNumber:     imp.ArticleNumber,
			InternalExcerpt:   imp.InternalExcerpt,
			ArticleExcerpt:    imp.ArticleExcerpt,
			Relevance:         imp.Relevance,
			ImpactDescription: imp.ImpactDescription,
		})
	}
	return resp
}

// AnalyzeDocumentResponse is the response body for POST /v1/documents.
// PageMatches maps bill id to article number to the 0-based pages whose
// similarity to that article crossed the threshold.
type AnalyzeDocumentResponse struct {
	Document    DocumentResponse         `json:"document"`
	Discoveries []DiscoveryResponse      `json:"discoveries"`
	PageMatches map[string]map[int][]int `json:"page_matches"`
}

// UpdateStatusRequest is the request body for PATCH /v1/discoveries/{id}/status.
type UpdateStatusRequest struct {
	Status DiscoveryStatus `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
