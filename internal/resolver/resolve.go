package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Resolve answers a query: relevance gate, then similarity lookup, then
// generation on a miss. Identical concurrent queries coalesce into a single
// generation, so N callers asking the same new question produce exactly one
// record and share one answer.
func (e *Engine) Resolve(ctx context.Context, req *models.ResolveRequest) (*models.ResolveResponse, error) {
	query := normalizeQuery(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	testMode := e.testMode
	if req.Test != nil {
		testMode = *req.Test
	}

	inDomain, err := e.classifier.IsInDomain(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("relevance check failed: %w", err)
	}
	if !inDomain {
		e.log.Debug("query refused as out of domain", zap.String("query", query))
		return &models.ResolveResponse{
			Answer:   e.refusal,
			Source:   models.SourceRefused,
			TestMode: testMode,
		}, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if m, err := e.lookup(ctx, vec); err != nil {
		return nil, err
	} else if m != nil {
		e.log.Debug("cache hit",
			zap.String("query", query),
			zap.String("matched", m.question),
			zap.Float64("score", m.score))
		return &models.ResolveResponse{
			Answer:          m.record.Answer,
			ResourceURL:     m.record.ResourceURL,
			MatchedQuestion: m.question,
			Score:           m.score,
			Source:          models.SourceCache,
			TestMode:        testMode,
		}, nil
	}

	// Miss. Coalesce identical in-flight queries; test mode changes the
	// resource produced, so it is part of the key.
	key := fmt.Sprintf("%t\x00%s", testMode, query)
	resp, err, _ := e.flights.Do(key, func() (interface{}, error) {
		return e.generateAndRecord(ctx, query, vec, testMode)
	})
	if err != nil {
		return nil, err
	}
	return resp.(*models.ResolveResponse), nil
}

// generateAndRecord produces a fresh answer and resource for query and runs
// the creation sequence. The re-lookup under createMu catches an equivalent
// record created while we were generating.
func (e *Engine) generateAndRecord(ctx context.Context, query string, vec []float32, testMode bool) (*models.ResolveResponse, error) {
	// A previous flight may have recorded this question between the caller's
	// miss and this flight starting.
	if m, err := e.lookup(ctx, vec); err != nil {
		return nil, err
	} else if m != nil {
		return &models.ResolveResponse{
			Answer:          m.record.Answer,
			ResourceURL:     m.record.ResourceURL,
			MatchedQuestion: m.question,
			Score:           m.score,
			Source:          models.SourceCache,
			TestMode:        testMode,
		}, nil
	}

	answer, err := e.generator.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	resourceURL, err := e.produceResource(ctx, query, testMode)
	if err != nil {
		return nil, err
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	if m, err := e.lookup(ctx, vec); err != nil {
		return nil, err
	} else if m != nil {
		return &models.ResolveResponse{
			Answer:          m.record.Answer,
			ResourceURL:     m.record.ResourceURL,
			MatchedQuestion: m.question,
			Score:           m.score,
			Source:          models.SourceCache,
			TestMode:        testMode,
		}, nil
	}

	rec := &models.QuestionRecord{
		Question:    query,
		Answer:      answer,
		ResourceURL: resourceURL,
	}
	if _, err := e.create(ctx, rec, vec); err != nil {
		return nil, err
	}

	return &models.ResolveResponse{
		Answer:      answer,
		ResourceURL: resourceURL,
		Source:      models.SourceGenerator,
		TestMode:    testMode,
	}, nil
}

// produceResource returns the visual artifact URL for a question. In test
// mode the fixed placeholder is returned and no artist call is made. Real
// production is memoized by exact visual-prompt content, so identical prompts
// render at most one image.
func (e *Engine) produceResource(ctx context.Context, question string, testMode bool) (string, error) {
	if testMode || e.artist == nil {
		return e.placeholderURL, nil
	}

	visualPrompt, err := e.artist.VisualPrompt(ctx, question)
	if err != nil {
		return "", fmt.Errorf("visual prompt failed: %w", err)
	}

	render := func(ctx context.Context) (string, error) {
		return e.artist.GenerateImage(ctx, visualPrompt)
	}
	if e.artifacts != nil {
		url, err := e.artifacts.GetOrProduce(ctx, visualPrompt, render)
		if err != nil {
			return "", fmt.Errorf("image generation failed: %w", err)
		}
		return url, nil
	}
	url, err := render(ctx)
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	return url, nil
}

// AddRecord explicitly ingests a question: search first, and only create when
// no stored question is similar enough. The answer is generated only when the
// request did not supply one.
func (e *Engine) AddRecord(ctx context.Context, req *models.AddRecordRequest) (*models.AddRecordResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	question := normalizeQuery(req.Question)

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if m, err := e.lookup(ctx, vec); err != nil {
		return nil, err
	} else if m != nil {
		return &models.AddRecordResponse{
			Message:         "similar question already recorded",
			MatchedQuestion: m.question,
			Score:           m.score,
			FromCache:       true,
			Slot:            m.slot,
			Record:          m.record,
		}, nil
	}

	answer := req.Answer
	if answer == "" {
		answer, err = e.generator.Generate(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("generation failed: %w", err)
		}
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	if m, err := e.lookup(ctx, vec); err != nil {
		return nil, err
	} else if m != nil {
		return &models.AddRecordResponse{
			Message:         "similar question already recorded",
			MatchedQuestion: m.question,
			Score:           m.score,
			FromCache:       true,
			Slot:            m.slot,
			Record:          m.record,
		}, nil
	}

	rec := &models.QuestionRecord{
		Question:    question,
		Answer:      answer,
		ResourceURL: req.ResourceURL,
		Tags:        req.Tags,
	}
	slot, err := e.create(ctx, rec, vec)
	if err != nil {
		return nil, err
	}

	return &models.AddRecordResponse{
		Message: "record created",
		Slot:    slot,
		Record:  rec,
	}, nil
}
