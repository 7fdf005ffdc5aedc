// Package integration runs the full build, publish, hydrate and retrieve path against real files.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/corpus"
	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/refine"
	"github.com/hyperjump/storyfind/internal/search"
	"github.com/hyperjump/storyfind/internal/server"
	"github.com/hyperjump/storyfind/internal/store"
)

const (
	storyCount = 100
	dimensions = 16
)

// writeCatalogue writes storyCount anime episodes, each with a unique summary.
func writeCatalogue(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 1; i <= storyCount; i++ {
		row := map[string]any{
			"text":              fmt.Sprintf("Episode %d: a gadget number %d causes trouble at school.", i, i*7),
			"title":             fmt.Sprintf("Episode %d", i),
			"broadcasting_date": fmt.Sprintf("1979-%02d-%02d", i%12+1, i%28+1),
			"index":             i,
		}
		if err := enc.Encode(row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "episodes.jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIntegration_BuildHydrateRetrieve(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	embedder := embedding.NewMockEmbedder(dimensions)
	defer embedder.Close()

	indexDir := filepath.Join(dir, "published")
	builder := corpus.NewBuilder(embedder, corpus.WithBatchSize(16), corpus.WithCompression(store.CompressionZstd))
	if _, err := builder.BuildFile(ctx, writeCatalogue(t, dir), indexDir, corpus.Options{}); err != nil {
		t.Fatal(err)
	}

	idxCfg := config.IndexConfig{Source: "local", Path: indexDir}
	resolver, fp, err := blob.NewFromConfig(ctx, idxCfg)
	if err != nil {
		t.Fatal(err)
	}
	hydrator := hydrate.New(hydrate.NewCache(), hydrate.WithStagingDir(filepath.Join(dir, "staging")))
	engine := search.NewEngine(refine.Disabled(), embedder, hydrator,
		search.Source{Fingerprint: fp, Resolver: resolver},
		&config.SearchConfig{DefaultK: 3, MaxK: 10})

	// Every summary must retrieve its own episode first.
	for i := 1; i <= storyCount; i++ {
		query := fmt.Sprintf("Episode %d: a gadget number %d causes trouble at school.", i, i*7)
		resp, err := engine.Retrieve(ctx, query, 3)
		if err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
		if len(resp.Results) != 3 {
			t.Fatalf("query %d: %d results, want 3", i, len(resp.Results))
		}
		if got := resp.Results[0].Document.FieldString("index", ""); got != fmt.Sprint(i) {
			t.Errorf("query %d: top index = %s", i, got)
		}
		for j := 1; j < len(resp.Results); j++ {
			if resp.Results[j].Score < resp.Results[j-1].Score {
				t.Errorf("query %d: scores not ascending: %v", i, resp.Results)
			}
		}
	}
	if hydrator.Len() != 1 {
		t.Errorf("hydrated indexes = %d, want 1", hydrator.Len())
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "staging"))
	if len(entries) != 0 {
		t.Errorf("staging dir not cleaned: %d entries", len(entries))
	}

	srv := server.NewServer(engine, &config.ServerConfig{}, server.WithIndexConfig(&idxCfg))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(models.SearchQuery{Query: "Episode 42: a gadget number 294 causes trouble at school.", K: 1})
	res, err := http.Post(ts.URL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var out models.SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].Document.FieldString("title", "") != "Episode 42" {
		t.Errorf("http results = %+v", out.Results)
	}
	if !strings.HasPrefix(out.Results[0].Document.FieldString("broadcasting_date", ""), "1979-") {
		t.Errorf("broadcasting_date missing: %+v", out.Results[0].Document.Fields())
	}
}

func TestIntegration_MissingPublishedIndex(t *testing.T) {
	ctx := context.Background()
	resolver, fp, err := blob.NewFromConfig(ctx, config.IndexConfig{Source: "local", Path: filepath.Join(t.TempDir(), "absent")})
	if err != nil {
		t.Fatal(err)
	}
	engine := search.NewEngine(nil, embedding.NewMockEmbedder(dimensions),
		hydrate.New(hydrate.NewCache(), hydrate.WithStagingDir(t.TempDir())),
		search.Source{Fingerprint: fp, Resolver: resolver}, nil)

	srv := server.NewServer(engine, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"robot"}`))
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
}
