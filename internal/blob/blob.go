// Package blob fetches index artifacts from where they are published (a local directory,
// AWS S3, or an S3-compatible MinIO server) into a local staging directory.
package blob

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/storyfind/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when an artifact does not exist at the source.
var ErrNotFound = errors.New("blob not found")

// Fingerprint identifies one published index: its source kind, its location within that
// source, and the access scope (region, credentials) used to read it.
type Fingerprint struct {
	Source   string
	Location string
	Scope    string
}

// String is the canonical cache key.
func (f Fingerprint) String() string {
	parts := []string{f.Source, f.Location}
	if f.Scope != "" {
		parts = append(parts, f.Scope)
	}
	return strings.Join(parts, "|")
}

// Resolver places every artifact of the index identified by fp into stagingDir.
type Resolver interface {
	Resolve(ctx context.Context, fp Fingerprint, stagingDir string) error
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, fp Fingerprint, stagingDir string) error

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, fp Fingerprint, stagingDir string) error {
	return f(ctx, fp, stagingDir)
}

// fetchAll runs fetch for every artifact name concurrently and returns the first error.
func fetchAll(ctx context.Context, fetch func(ctx context.Context, name string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range store.Artifacts {
		g.Go(func() error {
			return fetch(gctx, name)
		})
	}
	return g.Wait()
}

// objectKey joins a key prefix and an artifact name with a single slash.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
