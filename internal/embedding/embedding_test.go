package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/kotae/pkg/utils"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	a, err := e.Embed(ctx, "What is LPG reform?")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "What is LPG reform?")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must produce the same embedding")
		}
	}
	c, _ := e.Embed(ctx, "completely different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should produce different embeddings")
	}
}

func TestMockEmbedder_Normalized(t *testing.T) {
	e := NewMockEmbedder(384)
	texts := []string{"a", "What is LPG reform?", "a much longer question about the Indian economy"}
	for _, text := range texts {
		emb, err := e.Embed(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		if len(emb) != 384 {
			t.Fatalf("dimension = %d", len(emb))
		}
		if norm := utils.L2Norm(emb); math.Abs(norm-1.0) > 1e-6 {
			t.Errorf("norm of %q = %f, want 1.0", text, norm)
		}
	}
}

func TestMockEmbedder_EmbedBatch(t *testing.T) {
	e := NewMockEmbedder(8)
	embs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embs))
	}
	single, _ := e.Embed(context.Background(), "one")
	for i := range single {
		if embs[0][i] != single[i] {
			t.Fatal("batch embedding should match single embedding")
		}
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	// a was just touched, so adding c evicts b.
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be cached")
	}
}

func TestCache_Overwrite(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("a", []float32{9})
	v, ok := c.Get("a")
	if !ok || v[0] != 9 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
}

func TestSimpleTokenizer(t *testing.T) {
	tok := &SimpleTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tok.Tokenize("hello world", 8)
	if len(inputIDs) != 8 || len(attentionMask) != 8 || len(tokenTypeIDs) != 8 {
		t.Fatal("outputs must be padded to maxTokens")
	}
	if inputIDs[0] != 101 {
		t.Errorf("first token = %d, want [CLS]", inputIDs[0])
	}
	if attentionMask[0] != 1 || attentionMask[1] != 1 || attentionMask[2] != 1 {
		t.Error("attention mask should cover CLS and both words")
	}
	if inputIDs[3] != 102 {
		t.Errorf("token after words = %d, want [SEP]", inputIDs[3])
	}
	if attentionMask[7] != 0 {
		t.Error("padding should have zero attention")
	}

	// Same word, same ID.
	again, _, _ := tok.Tokenize("hello world", 8)
	if again[1] != inputIDs[1] || again[2] != inputIDs[2] {
		t.Error("tokenization must be deterministic")
	}
}

func TestSimpleTokenizer_LongInput(t *testing.T) {
	tok := &SimpleTokenizer{}
	inputIDs, _, _ := tok.Tokenize("a b c d e f g h i j", 4)
	if len(inputIDs) != 4 {
		t.Fatalf("len = %d", len(inputIDs))
	}
}
