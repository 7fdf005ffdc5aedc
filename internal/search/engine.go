// Package search runs a retrieval: validate the query, refine it, embed it, and look up the
// nearest stories in the hydrated index.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/storyfind/internal/blob"
	"github.com/hyperjump/storyfind/internal/config"
	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/hydrate"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/refine"
	"github.com/hyperjump/storyfind/internal/vector"
)

var (
	// ErrEmptyQuery is returned for blank queries, before any provider is called.
	ErrEmptyQuery = refine.ErrEmptyQuery
	// ErrInvalidArgument is returned for k <= 0.
	ErrInvalidArgument = vector.ErrInvalidArgument
	// ErrEmbeddingFailed wraps embedder failures; the index is not searched.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// DefaultEmbedTimeout bounds the embedding call when no timeout is configured.
const DefaultEmbedTimeout = 15 * time.Second

// Source names the published index an Engine reads and how to fetch it.
type Source struct {
	Fingerprint blob.Fingerprint
	Resolver    blob.Resolver
}

// Engine answers story retrieval requests. It holds no mutable state of its own; the shared
// index cache lives in the Hydrator.
type Engine struct {
	refiner      *refine.Refiner
	embedder     embedding.Embedder
	hydrator     *hydrate.Hydrator
	source       Source
	defaultK     int
	maxK         int
	embedTimeout time.Duration
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEmbedTimeout bounds each query embedding.
func WithEmbedTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.embedTimeout = d
		}
	}
}

// NewEngine creates a retrieval engine with the given dependencies. A nil refiner disables refinement.
func NewEngine(
	refiner *refine.Refiner,
	embedder embedding.Embedder,
	hydrator *hydrate.Hydrator,
	source Source,
	cfg *config.SearchConfig,
	opts ...Option,
) *Engine {
	if refiner == nil {
		refiner = refine.Disabled()
	}
	e := &Engine{
		refiner:      refiner,
		embedder:     embedder,
		hydrator:     hydrator,
		source:       source,
		defaultK:     3,
		maxK:         50,
		embedTimeout: DefaultEmbedTimeout,
		logger:       zap.NewNop(),
	}
	if cfg != nil {
		if cfg.DefaultK > 0 {
			e.defaultK = cfg.DefaultK
		}
		if cfg.MaxK > 0 {
			e.maxK = cfg.MaxK
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultK returns the result count used when a request leaves k unset.
func (e *Engine) DefaultK() int { return e.defaultK }

// MaxK returns the largest k served.
func (e *Engine) MaxK() int { return e.maxK }

// Search normalizes q (default and maximum k) and runs Retrieve.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	q.Normalize(e.defaultK, e.maxK)
	return e.Retrieve(ctx, q.Query, q.K)
}

// Retrieve returns the min(k, N) stories nearest to raw, best first. Results are exactly the
// index's ordering: no re-ranking or filtering.
func (e *Engine) Retrieve(ctx context.Context, raw string, k int) (*models.SearchResponse, error) {
	start := time.Now()
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	refined, err := e.refiner.Refine(ctx, raw)
	if err != nil {
		return nil, err
	}

	vec, err := e.embed(ctx, refined.Text)
	if err != nil {
		return nil, err
	}

	idx, err := e.hydrator.Get(ctx, e.source.Fingerprint, e.source.Resolver)
	if err != nil {
		return nil, err
	}

	hits, err := idx.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		e.logger.Warn("Index has no entries", zap.String("fingerprint", e.source.Fingerprint.String()))
	}

	resp := &models.SearchResponse{
		Query:        raw,
		RefinedQuery: refined.Text,
		Refined:      refined.Refined,
		Metric:       idx.Metric().String(),
		Results:      make([]*models.SearchResult, len(hits)),
	}
	for i, h := range hits {
		resp.Results[i] = &models.SearchResult{Rank: i + 1, Document: h.Document, Score: h.Score}
	}
	resp.QueryTime = time.Since(start).Milliseconds()

	e.logger.Debug("Retrieval complete",
		zap.Int("k", k),
		zap.Int("results", len(hits)),
		zap.Bool("refined", refined.Refined),
		zap.String("fallback", refined.FallbackReason),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	vec, err := e.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// Warm hydrates the index before the first request.
func (e *Engine) Warm(ctx context.Context) error {
	return e.hydrator.Warm(ctx, e.source.Fingerprint, e.source.Resolver)
}

// Status describes the engine's index and providers.
type Status struct {
	Fingerprint         string `json:"fingerprint"`
	Hydrated            bool   `json:"hydrated"`
	Entries             int    `json:"entries"`
	Dimensions          int    `json:"dimensions"`
	Metric              string `json:"metric,omitempty"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	RefinerEnabled      bool   `json:"refiner_enabled"`
	DefaultK            int    `json:"default_k"`
	MaxK                int    `json:"max_k"`
}

// Status reports the cached index without triggering hydration.
func (e *Engine) Status() Status {
	s := Status{
		Fingerprint:         e.source.Fingerprint.String(),
		EmbeddingDimensions: e.embedder.Dimensions(),
		RefinerEnabled:      e.refiner.Enabled(),
		DefaultK:            e.defaultK,
		MaxK:                e.maxK,
	}
	if idx, ok := e.hydrator.Cached(e.source.Fingerprint); ok {
		s.Hydrated = true
		s.Entries = idx.Len()
		s.Dimensions = idx.Dimensions()
		s.Metric = idx.Metric().String()
	}
	return s
}
