// Package resolver implements the similarity-gated answer cache. A query is
// embedded, matched against stored questions by cosine similarity, and either
// served from an existing record or answered by the generator and recorded so
// the next equivalent question never hits the generator again.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/kotae/internal/classifier"
	"github.com/hyperjump/kotae/internal/contentcache"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/reindex"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// KeywordIndexer receives every newly created record for full-text indexing.
// Keyword indexing is best-effort: a failure is logged, never surfaced.
type KeywordIndexer interface {
	Index(ctx context.Context, rec *models.QuestionRecord) error
}

// Options configures an Engine. Store, Index, Embedder, and Generator are
// required; Artist, Classifier, Keyword, and Artifacts degrade gracefully
// when nil.
type Options struct {
	Store      storage.Storage
	Index      *vector.SlotIndex
	Embedder   embedding.Embedder
	Generator  generator.Generator
	Artist     generator.Artist
	Classifier classifier.Classifier
	Keyword    KeywordIndexer
	Artifacts  *contentcache.Memoizer
	Logger     *zap.Logger

	// SimilarityThreshold is the minimum score to reuse a stored answer.
	SimilarityThreshold float64
	// TopK is how many candidates to examine per search.
	TopK           int
	RefusalMessage string
	// SnapshotPath is where the index snapshot is rewritten after every
	// creation. Empty disables persistence.
	SnapshotPath string
	// TestMode substitutes PlaceholderURL for real artifact generation
	// unless a request overrides it.
	TestMode       bool
	PlaceholderURL string
}

// Engine is the similarity cache orchestrator. Reads are concurrent; the
// creation sequence (store insert, index append, snapshot rewrite) is
// serialized by createMu so two misses for one semantic question cannot both
// record it.
type Engine struct {
	store      storage.Storage
	embedder   embedding.Embedder
	generator  generator.Generator
	artist     generator.Artist
	classifier classifier.Classifier
	keyword    KeywordIndexer
	artifacts  *contentcache.Memoizer
	log        *zap.Logger

	threshold      float64
	topK           int
	refusal        string
	snapshotPath   string
	testMode       bool
	placeholderURL string

	indexMu sync.RWMutex
	index   *vector.SlotIndex

	createMu sync.Mutex
	flights  singleflight.Group
}

// NewEngine validates opts and returns a ready engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Index == nil || opts.Embedder == nil || opts.Generator == nil {
		return nil, fmt.Errorf("store, index, embedder, and generator are required")
	}
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in (0, 1], got %f", opts.SimilarityThreshold)
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.AllowAll{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		store:          opts.Store,
		embedder:       opts.Embedder,
		generator:      opts.Generator,
		artist:         opts.Artist,
		classifier:     opts.Classifier,
		keyword:        opts.Keyword,
		artifacts:      opts.Artifacts,
		log:            opts.Logger,
		threshold:      opts.SimilarityThreshold,
		topK:           opts.TopK,
		refusal:        opts.RefusalMessage,
		snapshotPath:   opts.SnapshotPath,
		testMode:       opts.TestMode,
		placeholderURL: opts.PlaceholderURL,
		index:          opts.Index,
	}, nil
}

// Index returns the current semantic index.
func (e *Engine) Index() *vector.SlotIndex {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()
	return e.index
}

// Threshold returns the configured similarity threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// match is a cache-hit candidate: a stored record together with the matched
// question and its similarity score.
type match struct {
	record   *models.QuestionRecord
	question string
	score    float64
	slot     int
}

// lookup searches the index for query and returns the best candidate that
// clears the threshold and has a backing record. A matched slot with no
// backing record is a tolerated inconsistency: it is logged and skipped so
// the caller falls through to generation instead of failing the request.
func (e *Engine) lookup(ctx context.Context, vec []float32) (*match, error) {
	matches, err := e.Index().Search(ctx, vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	for _, m := range matches {
		if m.Score < e.threshold {
			// Matches are ordered by descending score.
			break
		}
		if m.Question == "" {
			e.log.Warn("index slot has empty question", zap.Int("slot", m.Slot))
			continue
		}
		rec, err := e.store.FindByQuestion(ctx, m.Question)
		if err == storage.ErrNotFound {
			e.log.Warn("index references missing record, falling back",
				zap.Int("slot", m.Slot),
				zap.String("question", utils.Truncate(m.Question, 120)))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record lookup failed: %w", err)
		}
		return &match{record: rec, question: m.Question, score: m.Score, slot: m.Slot}, nil
	}
	return nil, nil
}

// create runs the creation sequence for a new record: store insert, index
// append, snapshot rewrite, keyword index. Caller must hold createMu. A store
// failure aborts before any index mutation; an index or snapshot failure
// after the store insert is tolerated and repaired by a later rebuild.
func (e *Engine) create(ctx context.Context, rec *models.QuestionRecord, vec []float32) (int, error) {
	// The record is being persisted; caller disconnects no longer abort it.
	ctx = context.WithoutCancel(ctx)

	if err := e.store.CreateRecord(ctx, rec); err != nil {
		return 0, fmt.Errorf("failed to store record: %w", err)
	}

	slot, err := e.Index().Append(ctx, rec.Question, vec)
	if err != nil {
		e.log.Warn("record stored but index append failed, rebuild required",
			zap.String("question", utils.Truncate(rec.Question, 120)),
			zap.Error(err))
		return -1, nil
	}

	if e.snapshotPath != "" {
		if err := e.Index().Save(e.snapshotPath); err != nil {
			e.log.Warn("failed to persist index snapshot",
				zap.String("path", e.snapshotPath),
				zap.Error(err))
		}
	}

	if e.keyword != nil {
		if err := e.keyword.Index(ctx, rec); err != nil {
			e.log.Warn("keyword indexing failed",
				zap.String("id", rec.ID),
				zap.Error(err))
		}
	}

	e.log.Info("record created",
		zap.Int("slot", slot),
		zap.String("question", utils.Truncate(rec.Question, 120)))
	return slot, nil
}

// Rebuild reconstructs the index from the full record store and swaps it in.
// Creations are blocked for the duration. Returns the number of indexed
// records.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	e.createMu.Lock()
	defer e.createMu.Unlock()

	index, err := reindex.Rebuild(ctx, e.store, e.embedder, e.log)
	if err != nil {
		return 0, err
	}

	e.indexMu.Lock()
	e.index = index
	e.indexMu.Unlock()

	if e.snapshotPath != "" {
		if err := index.Save(e.snapshotPath); err != nil {
			return index.Size(), fmt.Errorf("rebuilt but failed to persist snapshot: %w", err)
		}
	}
	return index.Size(), nil
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(q)
}
