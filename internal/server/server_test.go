package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/search"
	"github.com/hyperjump/storyfind/internal/store"
	"github.com/hyperjump/storyfind/internal/vector"
)

type stubSearcher struct {
	err  error
	last *models.SearchQuery
}

func (s *stubSearcher) Search(_ context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	return &models.SearchResponse{
		Query:        q.Query,
		RefinedQuery: q.Query,
		Metric:       "l2",
		Results: []*models.SearchResult{{
			Rank:     1,
			Document: models.MustDocument("a robot befriends a child", map[string]any{"title": "B"}),
			Score:    0.14,
		}},
	}, nil
}

func (s *stubSearcher) Status() search.Status {
	return search.Status{Fingerprint: "local|/tmp/index", Hydrated: true, Entries: 2, Dimensions: 2, Metric: "l2", DefaultK: 3, MaxK: 50}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleSearch(t *testing.T) {
	stub := &stubSearcher{}
	srv := NewServer(stub, &config.ServerConfig{Port: 8080})

	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/search", `{"query":"robot friend","k":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		RequestID string `json:"request_id"`
		Query     string `json:"query"`
		Results   []struct {
			Rank   int            `json:"rank"`
			Text   string         `json:"text"`
			Fields map[string]any `json:"fields"`
			Score  float64        `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.RequestID == "" || out.RequestID != w.Header().Get(headerRequestID) {
		t.Errorf("request id: body %q header %q", out.RequestID, w.Header().Get(headerRequestID))
	}
	if len(out.Results) != 1 || out.Results[0].Fields["title"] != "B" || out.Results[0].Rank != 1 {
		t.Errorf("results: got %+v", out.Results)
	}
	if stub.last.K != 1 || stub.last.Query != "robot friend" {
		t.Errorf("query passed to engine: %+v", stub.last)
	}
}

func TestHandleSearch_KeepsCallerRequestID(t *testing.T) {
	srv := NewServer(&stubSearcher{}, nil)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"cat"}`))
	r.Header.Set(headerRequestID, "req-42")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if got := w.Header().Get(headerRequestID); got != "req-42" {
		t.Errorf("request id header: got %q", got)
	}
}

func TestHandleSearch_InvalidBody(t *testing.T) {
	srv := NewServer(&stubSearcher{}, nil)
	for _, body := range []string{`{`, `{"query":"cat","limit":3}`, `[]`} {
		w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/search", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, w.Code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{search.ErrEmptyQuery, http.StatusBadRequest},
		{fmt.Errorf("%w: k must be positive", search.ErrInvalidArgument), http.StatusBadRequest},
		{&vector.DimensionMismatchError{Expected: 2, Actual: 3}, http.StatusBadRequest},
		{fmt.Errorf("%w: timeout", search.ErrEmbeddingFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: s3|bucket: %w", hydrate.ErrHydrationFailed, blob.ErrNotFound), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHandleSearch_ErrorStatus(t *testing.T) {
	srv := NewServer(&stubSearcher{err: fmt.Errorf("%w: boom", search.ErrEmbeddingFailed)}, nil)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/search", `{"query":"cat"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", w.Code)
	}
	var out map[string]string
	_ = json.NewDecoder(w.Body).Decode(&out)
	if !strings.Contains(out["error"], "embedding failed") {
		t.Errorf("error body: %v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(&stubSearcher{}, nil)
	w := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	dir := t.TempDir()
	idx, _ := vector.NewFlatIndex(2, vector.MetricL2, [][]float32{{1, 0}}, []*models.Document{models.MustDocument("x", nil)})
	if err := store.Save(dir, idx, store.SaveOptions{Compression: store.CompressionLZ4}); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(&stubSearcher{}, nil, WithIndexConfig(&config.IndexConfig{Source: "local", Path: dir}))
	w := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["entries"] != float64(2) || out["hydrated"] != true || out["metric"] != "l2" {
		t.Errorf("status body: %v", out)
	}
	if out["compression"] != "lz4" {
		t.Errorf("compression: got %v", out["compression"])
	}
	if size, _ := out["disk_usage_bytes"].(float64); size <= 0 {
		t.Errorf("disk_usage_bytes: got %v", out["disk_usage_bytes"])
	}
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(&stubSearcher{}, &config.ServerConfig{RateLimit: 0.001, RateBurst: 2})
	h := srv.Handler()
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = doJSON(t, h, http.MethodPost, "/api/v1/search", `{"query":"cat"}`).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes: got %v, want [200 200 429]", codes)
	}
	// health is outside the limited group
	if w := doJSON(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health under rate limit: got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(&stubSearcher{}, &config.ServerConfig{CORSOrigins: []string{"https://stories.example"}})
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	r.Header.Set("Origin", "https://stories.example")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://stories.example" {
		t.Errorf("allow origin: got %q", got)
	}
}

func TestSearch_EndToEnd(t *testing.T) {
	emb := embedding.NewMockEmbedder(4)
	texts := []string{"a cat is lost at sea", "a robot befriends a child"}
	vecs, _ := emb.EmbedBatch(context.Background(), texts)
	docs := []*models.Document{
		models.MustDocument(texts[0], map[string]any{"title": "A"}),
		models.MustDocument(texts[1], map[string]any{"title": "B"}),
	}
	idx, _ := vector.NewFlatIndex(4, vector.MetricL2, vecs, docs)
	resolver := blob.ResolverFunc(func(_ context.Context, _ blob.Fingerprint, dir string) error {
		return store.Save(dir, idx, store.SaveOptions{})
	})
	h := hydrate.New(hydrate.NewCache(), hydrate.WithStagingDir(t.TempDir()))
	engine := search.NewEngine(nil, emb, h,
		search.Source{Fingerprint: blob.Fingerprint{Source: "local", Location: "mem"}, Resolver: resolver},
		&config.SearchConfig{DefaultK: 3, MaxK: 10})
	srv := NewServer(engine, &config.ServerConfig{})

	body, _ := json.Marshal(models.SearchQuery{Query: texts[1]})
	w := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/search", string(bytes.TrimSpace(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Document.FieldString("title", "") != "B" {
		t.Errorf("results: %+v", resp.Results)
	}

	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/search", `{"query":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank query: got %d, want 400", w.Code)
	}
	w = doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/search", `{"query":"cat","k":-1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative k: got %d, want 400", w.Code)
	}
}
