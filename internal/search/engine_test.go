package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/refine"
	"github.com/hyperjump/storyfind/internal/store"
	"github.com/hyperjump/storyfind/internal/vector"
)

// topicEmbedder maps text to a 2-d vector: robots point along y, everything else along x.
type topicEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	if strings.Contains(strings.ToLower(text), "robot") {
		return []float32{0.1, 0.9}, nil
	}
	return []float32{0.9, 0.1}, nil
}

func (e *topicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *topicEmbedder) Dimensions() int { return 2 }
func (e *topicEmbedder) Close() error    { return nil }

type fixture struct {
	engine   *Engine
	embedder *topicEmbedder
	resolves *atomic.Int32
}

func storyIndex(t *testing.T) *vector.FlatIndex {
	t.Helper()
	idx, err := vector.NewFlatIndex(2, vector.MetricL2,
		[][]float32{{0.9, 0.1}, {0.1, 0.9}},
		[]*models.Document{
			models.MustDocument("a cat is lost at sea", map[string]any{"title": "A", "index": 1}),
			models.MustDocument("a robot befriends a child", map[string]any{"title": "B", "index": 2}),
		})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func newFixture(t *testing.T, idx *vector.FlatIndex, refiner *refine.Refiner, resolveErr error) *fixture {
	t.Helper()
	var resolves atomic.Int32
	resolver := blob.ResolverFunc(func(_ context.Context, _ blob.Fingerprint, dir string) error {
		resolves.Add(1)
		if resolveErr != nil {
			return resolveErr
		}
		return store.Save(dir, idx, store.SaveOptions{})
	})
	emb := &topicEmbedder{}
	h := hydrate.New(hydrate.NewCache(), hydrate.WithStagingDir(t.TempDir()))
	src := Source{Fingerprint: blob.Fingerprint{Source: "s3", Location: "anime-index"}, Resolver: resolver}
	e := NewEngine(refiner, emb, h, src, &config.SearchConfig{DefaultK: 3, MaxK: 5})
	return &fixture{engine: e, embedder: emb, resolves: &resolves}
}

func TestEngine_CatRobotScenario(t *testing.T) {
	gen := refine.GeneratorFunc(func(context.Context, refine.GenerateRequest) (string, error) {
		return "robot friendship", nil
	})
	f := newFixture(t, storyIndex(t), refine.New(gen), nil)

	resp, err := f.engine.Retrieve(context.Background(), "the one where a machine becomes a kid's friend", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	top := resp.Results[0]
	if top.Rank != 1 || top.Document.FieldString("title", "") != "B" {
		t.Errorf("top = rank %d title %q, want rank 1 title B", top.Rank, top.Document.FieldString("title", ""))
	}
	if !resp.Refined || resp.RefinedQuery != "robot friendship" {
		t.Errorf("refinement = %v %q", resp.Refined, resp.RefinedQuery)
	}
	if resp.Metric != "l2" {
		t.Errorf("metric = %q", resp.Metric)
	}
}

func TestEngine_FailingRefinerUsesRawQuery(t *testing.T) {
	gen := refine.GeneratorFunc(func(context.Context, refine.GenerateRequest) (string, error) {
		return "", errors.New("provider down")
	})
	f := newFixture(t, storyIndex(t), refine.New(gen), nil)

	resp, err := f.engine.Retrieve(context.Background(), "a cat adrift on the ocean", 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Refined || resp.RefinedQuery != "a cat adrift on the ocean" {
		t.Errorf("expected raw query fallback, got %+v", resp)
	}
	if got := resp.Results[0].Document.FieldString("title", ""); got != "A" {
		t.Errorf("top title = %q, want A", got)
	}
	if len(resp.Results) != 2 || resp.Results[0].Score > resp.Results[1].Score {
		t.Errorf("results not ordered by distance: %+v", resp.Results)
	}
}

func TestEngine_EmptyQueryFailsBeforeEmbedding(t *testing.T) {
	f := newFixture(t, storyIndex(t), nil, nil)
	for _, q := range []string{"", "  \n "} {
		_, err := f.engine.Retrieve(context.Background(), q, 3)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Retrieve(%q) err = %v", q, err)
		}
	}
	if f.embedder.calls.Load() != 0 || f.resolves.Load() != 0 {
		t.Errorf("embedder calls %d, resolver calls %d; want 0", f.embedder.calls.Load(), f.resolves.Load())
	}
}

func TestEngine_InvalidK(t *testing.T) {
	f := newFixture(t, storyIndex(t), nil, nil)
	for _, k := range []int{0, -3} {
		if _, err := f.engine.Retrieve(context.Background(), "cat", k); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("k=%d err = %v", k, err)
		}
	}
	if f.embedder.calls.Load() != 0 {
		t.Error("embedder should not be called for invalid k")
	}
}

func TestEngine_RetrieveReturnsMinKN(t *testing.T) {
	vecs := make([][]float32, 10)
	docs := make([]*models.Document, 10)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
		docs[i] = models.MustDocument("story", map[string]any{"index": i})
	}
	idx, _ := vector.NewFlatIndex(2, vector.MetricL2, vecs, docs)
	f := newFixture(t, idx, nil, nil)

	for _, k := range []int{1, 5, 8, 10, 100} {
		resp, err := f.engine.Retrieve(context.Background(), "cat", k)
		if err != nil {
			t.Fatal(err)
		}
		if want := min(k, 10); len(resp.Results) != want {
			t.Errorf("k=%d: results = %d, want %d", k, len(resp.Results), want)
		}
	}
}

func TestEngine_SearchAppliesServingLimits(t *testing.T) {
	vecs := make([][]float32, 10)
	docs := make([]*models.Document, 10)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
		docs[i] = models.MustDocument("story", map[string]any{"index": i})
	}
	idx, _ := vector.NewFlatIndex(2, vector.MetricL2, vecs, docs)
	f := newFixture(t, idx, nil, nil)

	resp, err := f.engine.Search(context.Background(), &models.SearchQuery{Query: " cat "})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("results = %d, want default_k 3", len(resp.Results))
	}

	resp, err = f.engine.Search(context.Background(), &models.SearchQuery{Query: "cat", K: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 5 {
		t.Errorf("results = %d, want max_k 5", len(resp.Results))
	}
}

func TestEngine_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, storyIndex(t), nil, nil)
	f.embedder.err = errors.New("rate limited")
	_, err := f.engine.Retrieve(context.Background(), "cat", 3)
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Errorf("err = %v, want ErrEmbeddingFailed", err)
	}
	if f.resolves.Load() != 0 {
		t.Error("index should not be hydrated or searched after an embedding failure")
	}
}

func TestEngine_HydrationFailure(t *testing.T) {
	f := newFixture(t, storyIndex(t), nil, blob.ErrNotFound)
	_, err := f.engine.Retrieve(context.Background(), "cat", 3)
	if !errors.Is(err, hydrate.ErrHydrationFailed) || !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestEngine_HydratesOnce(t *testing.T) {
	f := newFixture(t, storyIndex(t), nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := f.engine.Retrieve(context.Background(), "robot", 1); err != nil {
			t.Fatal(err)
		}
	}
	if f.resolves.Load() != 1 {
		t.Errorf("resolver calls = %d, want 1", f.resolves.Load())
	}
}

func TestEngine_EmptyIndex(t *testing.T) {
	idx, _ := vector.NewFlatIndex(2, vector.MetricL2, nil, nil)
	f := newFixture(t, idx, nil, nil)
	resp, err := f.engine.Retrieve(context.Background(), "robot", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %d, want 0", len(resp.Results))
	}
}

func TestEngine_DimensionMismatch(t *testing.T) {
	idx, _ := vector.NewFlatIndex(3, vector.MetricL2, [][]float32{{1, 0, 0}}, []*models.Document{models.MustDocument("x", nil)})
	f := newFixture(t, idx, nil, nil)
	_, err := f.engine.Retrieve(context.Background(), "robot", 1)
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestEngine_StatusAndWarm(t *testing.T) {
	f := newFixture(t, storyIndex(t), nil, nil)
	s := f.engine.Status()
	if s.Hydrated || s.RefinerEnabled || s.EmbeddingDimensions != 2 {
		t.Errorf("status before warm = %+v", s)
	}
	if err := f.engine.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	s = f.engine.Status()
	if !s.Hydrated || s.Entries != 2 || s.Dimensions != 2 || s.Metric != "l2" {
		t.Errorf("status after warm = %+v", s)
	}
	if s.Fingerprint != "s3|anime-index" {
		t.Errorf("fingerprint = %q", s.Fingerprint)
	}
}

func TestEngine_WithMockEmbedder(t *testing.T) {
	emb := embedding.NewMockEmbedder(4)
	texts := []string{"a cat is lost at sea", "a robot befriends a child", "ghosts haunt the school"}
	vecs, _ := emb.EmbedBatch(context.Background(), texts)
	docs := make([]*models.Document, len(texts))
	for i, txt := range texts {
		docs[i] = models.MustDocument(txt, nil)
	}
	idx, _ := vector.NewFlatIndex(4, vector.MetricL2, vecs, docs)
	resolver := blob.ResolverFunc(func(_ context.Context, _ blob.Fingerprint, dir string) error {
		return store.Save(dir, idx, store.SaveOptions{Compression: store.CompressionZstd})
	})
	h := hydrate.New(hydrate.NewCache(), hydrate.WithStagingDir(t.TempDir()))
	e := NewEngine(nil, emb, h, Source{Fingerprint: blob.Fingerprint{Source: "local", Location: "x"}, Resolver: resolver}, nil)

	resp, err := e.Retrieve(context.Background(), "ghosts haunt the school", 1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Document.Text() != "ghosts haunt the school" || resp.Results[0].Score > 1e-4 {
		t.Errorf("exact text should be its own nearest neighbour: %+v", resp.Results[0])
	}
}
