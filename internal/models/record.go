// Package models defines core data structures for question records, resolve
// requests, and their responses.
package models

import "time"

// QuestionRecord is a stored question with its generated answer and resource.
// Records are created once and never updated or deleted; semantic uniqueness
// is enforced by the similarity threshold at creation time, not by the store.
type QuestionRecord struct {
	ID          string    `json:"id" db:"id"`
	Question    string    `json:"question" db:"question"`
	Answer      string    `json:"answer" db:"answer"`
	ResourceURL string    `json:"resource_url,omitempty" db:"resource_url"`
	Tags        []string  `json:"tags,omitempty" db:"tags"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
