// Package model defines the domain entities shared across storage, the
// detection pipeline, and the HTTP layer.
package model

import "time"

// Article is a numbered provision of a legislative bill. The semantic
// description is a plain-language retrieval summary authored for embedding;
// Text carries the verbatim legal passage surfaced to the LLM.
type Article struct {
	Number              int
	Kind                string
	Text                string
	SemanticDescription string
}

// Bill is a legislative bill under processing, with its articles eagerly
// loaded. Immutable during an analysis run.
type Bill struct {
	ID       string
	Title    string
	Chamber  string
	Kind     string
	Stage    int
	Urgency  string
	Date     time.Time
	Articles []Article
}
