// Package storage defines the persistence interface for question records.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when no record exists for the requested question.
var ErrNotFound = errors.New("record not found")

// Storage defines question record persistence. Records are append-only: there
// is no update or delete operation.
type Storage interface {
	// CreateRecord inserts a record, assigning ID and CreatedAt if unset.
	CreateRecord(ctx context.Context, rec *models.QuestionRecord) error
	// FindByQuestion returns the record for the exact question text, or
	// ErrNotFound. When duplicate question texts exist, the oldest wins.
	FindByQuestion(ctx context.Context, question string) (*models.QuestionRecord, error)
	// FindByID returns the record with the given ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.QuestionRecord, error)
	// ListRecords returns all records in insertion order. The order is what
	// makes an index rebuild deterministic.
	ListRecords(ctx context.Context) ([]*models.QuestionRecord, error)
	CountRecords(ctx context.Context) (int64, error)
	Close() error
}
