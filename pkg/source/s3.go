package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/baremetal-kit/nodeprep/pkg/errors"
)

// S3Fetcher downloads images addressed as s3://bucket/key.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3 creates an S3 fetcher using the default credential chain. Pass
// anonymous=true for public image mirrors.
func NewS3(ctx context.Context, region string, anonymous bool) (*S3Fetcher, error) {
	slog.Info("s3_fetcher_init", "region", region, "anonymous", anonymous)

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if anonymous {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &S3Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

// Fetch downloads the object named by an s3:// URL to destPath, streaming
// through the SHA-256 hash like the HTTP fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL, destPath string, progress *Progress) (*Result, error) {
	bucket, key, err := splitS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	slog.Info("s3_fetch_start", "bucket", bucket, "key", key, "dest", destPath)

	obj, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrTransfer, err)
	}
	defer obj.Body.Close()

	result, err := writeStream(obj.Body, destPath, progress, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("s3_fetch_complete",
		"bucket", bucket,
		"key", key,
		"size_mb", result.Size/1024/1024,
		"sha256", result.SHA256[:16]+"...",
	)
	return result, nil
}

func splitS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to parse S3 URL")
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3://bucket/key URL: %s", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("S3 URL %s has no object key", rawURL)
	}
	return u.Host, key, nil
}
