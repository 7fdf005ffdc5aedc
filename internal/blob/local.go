package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalResolver copies artifacts from a directory on the local filesystem.
type LocalResolver struct {
	Dir string
}

// NewLocalResolver returns a resolver reading from dir.
func NewLocalResolver(dir string) *LocalResolver {
	return &LocalResolver{Dir: dir}
}

// Fingerprint identifies the directory.
func (r *LocalResolver) Fingerprint() Fingerprint {
	return Fingerprint{Source: "local", Location: filepath.Clean(r.Dir)}
}

// Resolve copies each artifact into stagingDir.
func (r *LocalResolver) Resolve(ctx context.Context, _ Fingerprint, stagingDir string) error {
	return fetchAll(ctx, func(ctx context.Context, name string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return copyFile(filepath.Join(r.Dir, name), filepath.Join(stagingDir, name))
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
