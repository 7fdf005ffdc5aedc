package blob

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
)

// ObjectGetter is the subset of *minio.Client used by MinioResolver.
type ObjectGetter interface {
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
}

// MinioResolver downloads artifacts from a MinIO or other S3-compatible server.
type MinioResolver struct {
	client ObjectGetter
	bucket string
	prefix string
}

// NewMinioResolver returns a resolver reading bucket/prefix through client.
func NewMinioResolver(client ObjectGetter, bucket, prefix string) *MinioResolver {
	return &MinioResolver{client: client, bucket: bucket, prefix: prefix}
}

// Resolve downloads both artifacts concurrently into stagingDir.
func (r *MinioResolver) Resolve(ctx context.Context, _ Fingerprint, stagingDir string) error {
	return fetchAll(ctx, func(ctx context.Context, name string) error {
		key := objectKey(r.prefix, name)
		err := r.client.FGetObject(ctx, r.bucket, key, filepath.Join(stagingDir, name), minio.GetObjectOptions{})
		if err != nil {
			code := minio.ToErrorResponse(err).Code
			if code == "NoSuchKey" || code == "NotFound" {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, r.bucket, key)
			}
			return fmt.Errorf("download %s/%s: %w", r.bucket, key, err)
		}
		return nil
	})
}
