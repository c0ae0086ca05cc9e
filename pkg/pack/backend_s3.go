package pack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cloudpack/packstore/internal"
)

// S3Config carries the object-store endpoint for an S3 backend.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	StageDir  string // local staging area for packages being written
}

// S3Backend keeps sealed packages in an S3 bucket. Since objects cannot
// be appended to, a package is staged as a local file while open and
// uploaded whole on Seal. Reads prefer the staging copy and fall back to
// a ranged GET against the bucket.
type S3Backend struct {
	client   *s3.Client
	bucket   string
	stageDir string
}

func NewS3Backend(ctx context.Context, conf S3Config) (*S3Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.Region),
	}
	if conf.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})

	if err := os.MkdirAll(conf.StageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create stage dir %s: %w", conf.StageDir, err)
	}
	return &S3Backend{client: client, bucket: conf.Bucket, stageDir: conf.StageDir}, nil
}

func (b *S3Backend) stagePath(key string) string {
	return filepath.Join(b.stageDir, key)
}

func (b *S3Backend) Create(key string) (io.WriteCloser, error) {
	return os.OpenFile(b.stagePath(key), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

func (b *S3Backend) Seal(ctx context.Context, key string) error {
	path := b.stagePath(key)
	err := internal.Retry(ctx, func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload package %s: %w", key, err)
	}
	if err := os.Remove(path); err != nil {
		logger.Warnf("Seal: failed to remove staged package %s: %v", path, err)
	}
	return nil
}

func (b *S3Backend) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if internal.Exists(b.stagePath(key)) {
		f, err := os.Open(b.stagePath(key))
		if err == nil {
			defer f.Close()
			buf := make([]byte, end-start)
			if _, err := f.ReadAt(buf, start); err == nil {
				return buf, nil
			}
		}
		// fall through to the bucket: the stage copy may have raced Seal
	}

	var buf []byte
	err := internal.Retry(ctx, func() error {
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		buf, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read package %s [%d,%d): %w", key, start, end, err)
	}
	return buf, nil
}

func (b *S3Backend) Remove(ctx context.Context, key string) error {
	if internal.Exists(b.stagePath(key)) {
		if err := os.Remove(b.stagePath(key)); err != nil {
			return err
		}
	}
	return internal.Retry(ctx, func() error {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}
