package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Downloader is the subset of *manager.Downloader used by S3Resolver.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// S3Resolver downloads artifacts stored under bucket/prefix in S3.
type S3Resolver struct {
	downloader Downloader
	bucket     string
	prefix     string
}

// NewS3Resolver returns a resolver reading bucket/prefix through downloader.
func NewS3Resolver(downloader Downloader, bucket, prefix string) *S3Resolver {
	return &S3Resolver{downloader: downloader, bucket: bucket, prefix: prefix}
}

// NewS3ResolverFromClient wraps client in a multipart manager.Downloader.
func NewS3ResolverFromClient(client *s3.Client, bucket, prefix string) *S3Resolver {
	return NewS3Resolver(manager.NewDownloader(client), bucket, prefix)
}

// Resolve downloads both artifacts concurrently into stagingDir.
func (r *S3Resolver) Resolve(ctx context.Context, _ Fingerprint, stagingDir string) error {
	return fetchAll(ctx, func(ctx context.Context, name string) error {
		key := objectKey(r.prefix, name)
		f, err := os.Create(filepath.Join(stagingDir, name))
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		_, err = r.downloader.Download(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		closeErr := f.Close()
		if err != nil {
			if isS3NotFound(err) {
				return fmt.Errorf("%w: s3://%s/%s", ErrNotFound, r.bucket, key)
			}
			return fmt.Errorf("download s3://%s/%s: %w", r.bucket, key, err)
		}
		return closeErr
	})
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
