package models

import "fmt"

// Answer sources reported in resolve responses.
const (
	SourceCache     = "cache"
	SourceGenerator = "generator"
	SourceRefused   = "refused"
)

// ResolveRequest is a natural-language query against the answer cache.
// Test, when set, overrides the server's default test mode: a placeholder
// resource is returned instead of invoking the image generator.
type ResolveRequest struct {
	Query string `json:"query"`
	Test  *bool  `json:"test,omitempty"`
}

// Validate rejects an empty query before any external call is made.
func (r *ResolveRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// ResolveResponse is the answer to a resolve request. MatchedQuestion and
// Score are set only on a cache hit; Source says where the answer came from.
type ResolveResponse struct {
	Answer          string  `json:"answer"`
	ResourceURL     string  `json:"resource_url,omitempty"`
	MatchedQuestion string  `json:"matched_question,omitempty"`
	Score           float64 `json:"score,omitempty"`
	Source          string  `json:"source"`
	TestMode        bool    `json:"test_mode"`
}

// AddRecordRequest explicitly ingests a question. Answer is optional; when
// absent it is produced by the answer generator. ResourceURL is required.
type AddRecordRequest struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer,omitempty"`
	ResourceURL string   `json:"resource_url"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate checks the required ingestion fields.
func (r *AddRecordRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("missing required field: question")
	}
	if r.ResourceURL == "" {
		return fmt.Errorf("missing required field: resource_url")
	}
	return nil
}

// AddRecordResponse reports the outcome of an ingestion: either an existing
// semantically equivalent record (FromCache true) or the newly created one.
type AddRecordResponse struct {
	Message         string          `json:"message"`
	MatchedQuestion string          `json:"matched_question,omitempty"`
	Score           float64         `json:"score,omitempty"`
	FromCache       bool            `json:"from_cache"`
	Slot            int             `json:"slot"`
	Record          *QuestionRecord `json:"record"`
}
