// Package classifier decides whether a query belongs to the service's domain.
// The gate runs before any embedding or index access, so off-topic queries
// never pollute the cache.
package classifier

import (
	"context"
	"strings"

	"github.com/hyperjump/kotae/internal/generator"
)

// Classifier reports whether text is in the service's domain.
type Classifier interface {
	IsInDomain(ctx context.Context, text string) (bool, error)
}

const classifierSystemPrompt = "You are a topic classifier for an academic assistant covering UPSC civil services " +
	"preparation: Indian polity, economy, history, geography, and current affairs. " +
	"Reply with exactly one word: YES if the question belongs to these topics, NO otherwise."

// LLM classifies queries with a single yes/no chat completion.
type LLM struct {
	client *generator.Client
}

// NewLLM returns an LLM-backed classifier on the given client.
func NewLLM(client *generator.Client) *LLM {
	return &LLM{client: client}
}

// IsInDomain asks the model for a YES/NO verdict. Anything that does not
// start with YES is treated as out-of-domain.
func (c *LLM) IsInDomain(ctx context.Context, text string) (bool, error) {
	reply, err := c.client.Complete(ctx, classifierSystemPrompt, text)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(reply)), "YES"), nil
}

// AllowAll accepts every query. Used when the classifier is disabled and in tests.
type AllowAll struct{}

// IsInDomain always returns true.
func (AllowAll) IsInDomain(ctx context.Context, text string) (bool, error) {
	return true, nil
}
