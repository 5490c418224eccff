package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_CreateAndFind(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := &models.QuestionRecord{
		Question:    "What is LPG reform in India?",
		Answer:      "Liberalization, Privatization, and Globalization.",
		ResourceURL: "https://cdn.example.com/lpg.png",
		Tags:        []string{"lpg", "economic reforms"},
	}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Error("ID should be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.FindByQuestion(ctx, "What is LPG reform in India?")
	if err != nil {
		t.Fatal(err)
	}
	if got.Answer != rec.Answer || got.ResourceURL != rec.ResourceURL {
		t.Errorf("got %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "lpg" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestSQLiteStorage_FindByID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := &models.QuestionRecord{Question: "q", Answer: "a"}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := store.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Question != "q" {
		t.Errorf("question = %q", got.Question)
	}
	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_FindNotFound(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.FindByQuestion(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_ListRecordsInsertionOrder(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	questions := []string{"q1", "q2", "q3", "q4", "q5"}
	for _, q := range questions {
		if err := store.CreateRecord(ctx, &models.QuestionRecord{Question: q, Answer: "a"}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.ListRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(questions) {
		t.Fatalf("got %d records, want %d", len(records), len(questions))
	}
	for i, rec := range records {
		if rec.Question != questions[i] {
			t.Errorf("record %d = %q, want %q", i, rec.Question, questions[i])
		}
	}

	n, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(questions)) {
		t.Errorf("count = %d", n)
	}
}

func TestSQLiteStorage_DuplicateQuestionOldestWins(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	_ = store.CreateRecord(ctx, &models.QuestionRecord{Question: "q", Answer: "first"})
	_ = store.CreateRecord(ctx, &models.QuestionRecord{Question: "q", Answer: "second"})

	got, err := store.FindByQuestion(ctx, "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.Answer != "first" {
		t.Errorf("answer = %q, want the oldest record", got.Answer)
	}
}

func TestSQLiteStorage_EmptyList(t *testing.T) {
	store := newTestStorage(t)
	records, err := store.ListRecords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
