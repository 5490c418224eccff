package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "gpt-4o-mini",
		ImageModel: "dall-e-3",
		ImageSize:  "1024x1024",
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClient_Complete(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []chatCompletionChoice{{Message: chatMessage{Role: "assistant", Content: "  the answer \n"}}},
		})
	}))

	out, err := c.Complete(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatal(err)
	}
	if out != "the answer" {
		t.Errorf("answer = %q, want trimmed reply", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "user text" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotReq.Model)
	}
}

func TestClient_CompleteNoChoices(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{})
	}))
	if _, err := c.Complete(context.Background(), "s", "u"); err == nil {
		t.Error("empty choices should fail")
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: errorDetail{Message: "quota exceeded", Type: "rate_limit"}})
	}))
	_, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "quota exceeded") {
		t.Errorf("error should carry the API message, got %q", got)
	}
}

func TestClient_GenerateImage(t *testing.T) {
	var gotReq imageGenerationRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(imageGenerationResponse{
			Data: []imageData{{URL: "https://cdn.example.com/generated.png"}},
		})
	}))

	url, err := c.GenerateImage(context.Background(), "a comic panel")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn.example.com/generated.png" {
		t.Errorf("url = %q", url)
	}
	if gotReq.Model != "dall-e-3" || gotReq.Size != "1024x1024" || gotReq.N != 1 {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(ClientConfig{Model: "m"}); err == nil {
		t.Error("missing base URL should fail")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://localhost"}); err == nil {
		t.Error("missing model should fail")
	}
}

func TestLLM_UsesDistinctPrompts(t *testing.T) {
	var systems []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		systems = append(systems, req.Messages[0].Content)
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []chatCompletionChoice{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	llm := NewLLM(c)
	ctx := context.Background()
	if _, err := llm.Generate(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if _, err := llm.VisualPrompt(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if len(systems) != 2 || systems[0] == systems[1] {
		t.Error("answer and visual prompts should use different system prompts")
	}
}

func TestLoadAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(path, []byte("  sk-test \n"), 0600); err != nil {
		t.Fatal(err)
	}
	key, err := LoadAPIKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if key != "sk-test" {
		t.Errorf("key = %q", key)
	}

	if _, err := LoadAPIKey(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("missing file should fail")
	}
	empty := filepath.Join(dir, "empty.txt")
	_ = os.WriteFile(empty, []byte("  \n"), 0600)
	if _, err := LoadAPIKey(empty); err == nil {
		t.Error("empty key file should fail")
	}
}
