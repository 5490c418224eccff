// Package storage provides the SQLite implementation of Storage.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		resource_url TEXT,
		tags TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_question ON records(question);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRecord inserts a record, assigning ID and CreatedAt if unset.
func (s *SQLiteStorage) CreateRecord(ctx context.Context, rec *models.QuestionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, question, answer, resource_url, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, rec.Answer, rec.ResourceURL, string(tagsJSON), rec.CreatedAt,
	)
	return err
}

// FindByID returns the record with the given ID, or ErrNotFound.
func (s *SQLiteStorage) FindByID(ctx context.Context, id string) (*models.QuestionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, resource_url, tags, created_at
		 FROM records WHERE id = ?`, id,
	)
	return scanRecord(row)
}

// FindByQuestion returns the oldest record with the exact question text.
func (s *SQLiteStorage) FindByQuestion(ctx context.Context, question string) (*models.QuestionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, resource_url, tags, created_at
		 FROM records WHERE question = ? ORDER BY rowid LIMIT 1`, question,
	)
	return scanRecord(row)
}

// ListRecords returns all records in insertion (rowid) order.
func (s *SQLiteStorage) ListRecords(ctx context.Context) ([]*models.QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, resource_url, tags, created_at
		 FROM records ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.QuestionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecords returns the number of stored records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.QuestionRecord, error) {
	var rec models.QuestionRecord
	var resourceURL, tagsJSON sql.NullString
	err := row.Scan(&rec.ID, &rec.Question, &rec.Answer, &resourceURL, &tagsJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.ResourceURL = resourceURL.String
	if tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return &rec, nil
}

// DiskUsageBytes sums the on-disk size of the given paths (files or
// directories). Missing paths are skipped.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.Walk(p, func(_ string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
