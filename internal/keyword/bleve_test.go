package keyword

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func record(id, question, answer string, tags ...string) *models.QuestionRecord {
	return &models.QuestionRecord{
		ID:        id,
		Question:  question,
		Answer:    answer,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
}

func TestBleveIndex_SearchQuestion(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, record("a", "What is fiscal deficit?", "Spending minus revenue.")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, record("b", "Who appoints the RBI governor?", "The central government.")); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "fiscal deficit", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].ID != "a" {
		t.Fatalf("expected record a first, got %+v", hits)
	}
}

func TestBleveIndex_SearchTags(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, record("a", "Explain LPG reforms", "Liberalisation...", "economy", "reforms")); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "economy", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("tag search failed: %+v", hits)
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, record("a", "question one", "answer one")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "question", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after delete, got %d", len(hits))
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("doc count = %d", n)
	}
}

func TestBleveIndex_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()

	idx, err := NewBleveIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, record("a", "persistent question", "persistent answer")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	idx2, err := NewBleveIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer idx2.Close()
	hits, err := idx2.Search(ctx, "persistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit after reopen, got %d", len(hits))
	}
}
