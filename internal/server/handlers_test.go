package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/resolver"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "generated answer for " + prompt, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	index, err := vector.NewSlotIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kw.Close() })

	engine, err := resolver.NewEngine(resolver.Options{
		Store:               store,
		Index:               index,
		Embedder:            embedding.NewMockEmbedder(8),
		Generator:           staticGenerator{},
		Keyword:             kw,
		SimilarityThreshold: 0.80,
		TopK:                3,
		RefusalMessage:      "out of scope",
		SnapshotPath:        filepath.Join(dir, "questions.idx"),
		TestMode:            true,
		PlaceholderURL:      "http://localhost:8080/static/test.png",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "records.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "questions.idx")
	cfg.Storage.KeywordIndexPath = filepath.Join(dir, "bleve")

	srv := NewServer(engine, store, kw, cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func TestHandleResolve(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/resolve", models.ResolveRequest{Query: "What is GST?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out models.ResolveResponse
	decode(t, resp, &out)
	if out.Source != models.SourceGenerator {
		t.Errorf("source = %s", out.Source)
	}
	if out.Answer != "generated answer for What is GST?" {
		t.Errorf("answer = %q", out.Answer)
	}
	if !out.TestMode {
		t.Error("test mode should default to true")
	}

	// Identical query now hits the cache.
	resp = postJSON(t, ts.URL+"/api/v1/resolve", models.ResolveRequest{Query: "What is GST?"})
	decode(t, resp, &out)
	if out.Source != models.SourceCache {
		t.Errorf("repeat source = %s, want cache", out.Source)
	}
	if out.MatchedQuestion != "What is GST?" {
		t.Errorf("matched question = %q", out.MatchedQuestion)
	}
}

func TestHandleResolve_BadRequest(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/resolve", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/resolve", models.ResolveRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty query: status = %d", resp.StatusCode)
	}
}

func TestHandleAddRecord(t *testing.T) {
	_, ts := newTestServer(t)

	req := models.AddRecordRequest{
		Question:    "What is the Preamble?",
		Answer:      "An introductory statement of the constitution.",
		ResourceURL: "http://x/preamble.png",
		Tags:        []string{"polity"},
	}
	resp := postJSON(t, ts.URL+"/api/v1/records", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out models.AddRecordResponse
	decode(t, resp, &out)
	if out.FromCache || out.Slot != 0 {
		t.Errorf("first add: %+v", out)
	}

	resp = postJSON(t, ts.URL+"/api/v1/records", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat status = %d, want 200", resp.StatusCode)
	}
	decode(t, resp, &out)
	if !out.FromCache {
		t.Error("repeat add should come from cache")
	}
}

func TestHandleGetRecord(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/records", models.AddRecordRequest{
		Question:    "Who appoints the RBI governor?",
		Answer:      "The central government.",
		ResourceURL: "http://x/rbi.png",
	})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/records?question=Who+appoints+the+RBI+governor%3F")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rec models.QuestionRecord
	decode(t, resp, &rec)
	if rec.Answer != "The central government." {
		t.Errorf("answer = %q", rec.Answer)
	}

	resp, err = http.Get(ts.URL + "/api/v1/records?question=unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing record: status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/records")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing param: status = %d", resp.StatusCode)
	}
}

func TestHandleSearchRecords(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/records", models.AddRecordRequest{
		Question:    "Explain fiscal deficit",
		Answer:      "Spending minus revenue.",
		ResourceURL: "http://x/fd.png",
		Tags:        []string{"economy"},
	})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/records/search?q=fiscal&limit=5")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Total   int `json:"total"`
		Results []struct {
			Score  float64                `json:"score"`
			Record *models.QuestionRecord `json:"record"`
		} `json:"results"`
	}
	decode(t, resp, &out)
	if out.Total != 1 || out.Results[0].Record.Question != "Explain fiscal deficit" {
		t.Errorf("search response: %+v", out)
	}

	resp, err = http.Get(ts.URL + "/api/v1/records/search")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q: status = %d", resp.StatusCode)
	}
}

func TestHandleReindex(t *testing.T) {
	srv, ts := newTestServer(t)

	// Out-of-band insert, then repair over HTTP.
	rec := &models.QuestionRecord{Question: "direct insert", Answer: "a", ResourceURL: "http://x"}
	if err := srv.storage.CreateRecord(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, ts.URL+"/api/v1/reindex", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Status  string `json:"status"`
		Records int    `json:"records"`
	}
	decode(t, resp, &out)
	if out.Status != "rebuilt" || out.Records != 1 {
		t.Errorf("reindex response: %+v", out)
	}
	if srv.engine.Index().Size() != 1 {
		t.Errorf("index size = %d", srv.engine.Index().Size())
	}
}

func TestHandleStatus(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]interface{}
	decode(t, resp, &out)
	if _, ok := out["records"]; !ok {
		t.Error("missing records field")
	}
	if _, ok := out["index_size"]; !ok {
		t.Error("missing index_size field")
	}
	cfg, ok := out["config"].(map[string]interface{})
	if !ok {
		t.Fatal("missing config block")
	}
	if cfg["similarity_threshold"] != 0.80 {
		t.Errorf("threshold = %v", cfg["similarity_threshold"])
	}
}

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
