package blob

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperjump/storyfind/internal/config"
)

// FingerprintFor derives the cache key of the index described by cfg. Secrets never enter
// the fingerprint; the access key id does, so different principals get separate entries.
func FingerprintFor(cfg config.IndexConfig) Fingerprint {
	switch cfg.Source {
	case "local":
		return Fingerprint{Source: "local", Location: filepath.Clean(cfg.Path)}
	default:
		scope := []string{}
		for _, kv := range [][2]string{
			{"endpoint", cfg.Endpoint},
			{"region", cfg.Region},
			{"key", cfg.AccessKeyID},
		} {
			if kv[1] != "" {
				scope = append(scope, kv[0]+"="+kv[1])
			}
		}
		return Fingerprint{
			Source:   cfg.Source,
			Location: objectKey(cfg.Bucket, strings.Trim(cfg.Prefix, "/")),
			Scope:    strings.Join(scope, ";"),
		}
	}
}

// NewFromConfig builds the resolver for cfg.Source together with its fingerprint.
func NewFromConfig(ctx context.Context, cfg config.IndexConfig) (Resolver, Fingerprint, error) {
	fp := FingerprintFor(cfg)
	switch cfg.Source {
	case "local":
		return NewLocalResolver(cfg.Path), fp, nil
	case "s3":
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, fp, err
		}
		return NewS3ResolverFromClient(client, cfg.Bucket, cfg.Prefix), fp, nil
	case "minio":
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSLOrDefault(),
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fp, fmt.Errorf("minio client: %w", err)
		}
		return NewMinioResolver(client, cfg.Bucket, cfg.Prefix), fp, nil
	default:
		return nil, fp, fmt.Errorf("unknown index source: %s (supported: local, s3, minio)", cfg.Source)
	}
}

func newS3Client(ctx context.Context, cfg config.IndexConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
