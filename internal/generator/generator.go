// Package generator produces answers and visual artifacts through an
// OpenAI-compatible API. The cache core treats it as an external collaborator
// that may fail or time out; retries, if any, live here, not in the cache.
package generator

import "context"

// Generator produces an answer for a question prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Artist turns a question into a visual artifact: first a rich image prompt,
// then the image itself.
type Artist interface {
	VisualPrompt(ctx context.Context, question string) (string, error)
	GenerateImage(ctx context.Context, visualPrompt string) (string, error)
}

const answerSystemPrompt = "You are an academic assistant for UPSC civil service aspirants in India. " +
	"Provide a concise, formal, and accurate textbook-style answer."

const visualSystemPrompt = "You are a visual storyteller. Convert UPSC topics into playful, expressive comic scenes " +
	"with cartoon characters, dialogue, and emotion. Describe a single comic panel in rich, colorful visual detail " +
	"suitable for an image generator. Use imaginative, whimsical storytelling tone."

// LLM implements Generator and Artist on top of a chat/image Client.
type LLM struct {
	client *Client
}

// NewLLM returns a generator backed by the given client.
func NewLLM(client *Client) *LLM {
	return &LLM{client: client}
}

// Generate produces a textbook-style answer for the question.
func (g *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.Complete(ctx, answerSystemPrompt, prompt)
}

// VisualPrompt produces a comic-panel description for the question.
func (g *LLM) VisualPrompt(ctx context.Context, question string) (string, error) {
	return g.client.Complete(ctx, visualSystemPrompt, question)
}

// GenerateImage renders the visual prompt and returns the image URL.
func (g *LLM) GenerateImage(ctx context.Context, visualPrompt string) (string, error) {
	return g.client.GenerateImage(ctx, visualPrompt)
}
