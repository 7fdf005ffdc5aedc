package corpus

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/storyfind/internal/embedding"
	"github.com/hyperjump/storyfind/internal/models"
	"github.com/hyperjump/storyfind/internal/store"
	"github.com/hyperjump/storyfind/internal/vector"
)

// DefaultBatchSize is the number of summaries sent per embedding request.
const DefaultBatchSize = 64

// Builder embeds story summaries and writes the index artifacts.
type Builder struct {
	embedder    embedding.Embedder
	metric      vector.Metric
	compression store.Compression
	batchSize   int
	parallelism int
	logger      *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger for build progress.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetric sets the metric recorded in the index.
func WithMetric(m vector.Metric) BuilderOption {
	return func(b *Builder) { b.metric = m }
}

// WithCompression sets the codec for the metadata artifact.
func WithCompression(c store.Compression) BuilderOption {
	return func(b *Builder) { b.compression = c }
}

// WithBatchSize sets how many summaries go into one embedding request.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithParallelism bounds concurrent embedding requests.
func WithParallelism(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

// NewBuilder creates a builder around embedder.
func NewBuilder(embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{
		embedder:    embedder,
		metric:      vector.MetricL2,
		compression: store.CompressionNone,
		batchSize:   DefaultBatchSize,
		parallelism: 2,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build embeds every document's text and returns the index, with entry i holding docs[i].
func (b *Builder) Build(ctx context.Context, docs []*models.Document) (*vector.FlatIndex, error) {
	dims := b.embedder.Dimensions()
	vecs := make([][]float32, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for start := 0; start < len(docs); start += b.batchSize {
		end := min(start+b.batchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, d := range docs[start:end] {
				texts[i] = d.Text()
			}
			out, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed records %d-%d: %w", start+1, end, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embed records %d-%d: got %d vectors for %d texts", start+1, end, len(out), len(texts))
			}
			copy(vecs[start:end], out)
			b.logger.Debug("Embedded batch", zap.Int("from", start+1), zap.Int("to", end), zap.Int("total", len(docs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vector.NewFlatIndex(dims, b.metric, vecs, docs)
}

// Write builds the index for docs and saves the artifacts into dir.
func (b *Builder) Write(ctx context.Context, docs []*models.Document, dir string) (*vector.FlatIndex, error) {
	start := time.Now()
	idx, err := b.Build(ctx, docs)
	if err != nil {
		return nil, err
	}
	if err := store.Save(dir, idx, store.SaveOptions{Compression: b.compression}); err != nil {
		return nil, err
	}
	b.logger.Info("Index built",
		zap.String("dir", dir),
		zap.Int("entries", idx.Len()),
		zap.Int("dimensions", idx.Dimensions()),
		zap.String("metric", idx.Metric().String()),
		zap.String("compression", string(b.compression)),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// BuildFile loads the catalogue at input and writes its index into dir.
func (b *Builder) BuildFile(ctx context.Context, input, dir string, opts Options) (*vector.FlatIndex, error) {
	docs, err := Load(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		b.logger.Warn("Corpus has no records", zap.String("input", input))
	}
	return b.Write(ctx, docs, dir)
}
