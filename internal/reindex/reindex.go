// Package reindex rebuilds the semantic index from the record store.
// Used to repair drift after out-of-band store edits: slots are renumbered
// in store iteration order, so any previous numbering is discarded.
package reindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Rebuild constructs a fresh index from every record in the store. The result
// is deterministic given the store contents and the embedder: records are
// embedded and appended in insertion order.
func Rebuild(ctx context.Context, store storage.Storage, embedder embedding.Embedder, log *zap.Logger) (*vector.SlotIndex, error) {
	records, err := store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	index, err := vector.NewSlotIndex(embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return index, nil
	}

	questions := make([]string, len(records))
	for i, rec := range records {
		questions[i] = rec.Question
	}

	vecs, err := embedder.EmbedBatch(ctx, questions)
	if err != nil {
		return nil, fmt.Errorf("failed to embed questions: %w", err)
	}

	for i, vec := range vecs {
		slot, err := index.Append(ctx, questions[i], vec)
		if err != nil {
			return nil, fmt.Errorf("failed to append question %q: %w", questions[i], err)
		}
		if slot != i {
			return nil, fmt.Errorf("slot drift during rebuild: got %d, want %d", slot, i)
		}
	}

	log.Info("index rebuilt",
		zap.Int("records", len(records)),
		zap.Int("dimensions", embedder.Dimensions()))
	return index, nil
}
