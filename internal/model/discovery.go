package model

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded corporate document (memorandum, policy, annual
// report) that was analyzed against the bill corpus.
type Document struct {
	ID         uuid.UUID
	Owner      string
	Name       string
	UploadedAt time.Time
}

// DiscoveryStatus is the review state of a discovery.
type DiscoveryStatus string

const (
	DiscoveryPending   DiscoveryStatus = "PENDING"
	DiscoveryTracking  DiscoveryStatus = "TRACKING"
	DiscoveryDiscarded DiscoveryStatus = "DISCARDED"
)

// ValidStatus reports whether s is a known discovery status.
func ValidStatus(s DiscoveryStatus) bool {
	switch s {
	case DiscoveryPending, DiscoveryTracking, DiscoveryDiscarded:
		return true
	}
	return false
}

// Discovery records that a document was found to be impacted by a bill,
// together with the consolidated legal-impact report.
type Discovery struct {
	ID                      uuid.UUID
	DocumentID              uuid.UUID
	BillID                  string
	BillTitle               string
	MaxRelevance            int
	ConsolidatedDescription string
	Status                  DiscoveryStatus
	AnalyzedAt              time.Time
	Impacts                 []Impact
}

// Impact is a single article-level finding within a discovery.
// Relevance is the LLM's judgement in [0,100]; zero-relevance findings are
// dropped before a discovery is ever built.
type Impact struct {
	ArticleNumber     int
	InternalExcerpt   string
	ArticleExcerpt    string
	Relevance         int
	ImpactDescription string
}
