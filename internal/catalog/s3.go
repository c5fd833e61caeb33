package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of the S3 client used to read catalogs.
type ObjectGetter interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds connection settings for an S3-compatible object store.
type S3Config struct {
	Endpoint        string // Optional; empty uses the AWS default for Region
	Region          string // Default: "auto"
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client creates an S3 client for catalog reads.
func NewS3Client(cfg S3Config) (*s3.Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("s3 access key ID and secret access key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return s3.New(opts), nil
}

// NewS3Source creates a source streaming the catalog object bucket/key.
// The format and compression are inferred from the key.
func NewS3Source(client ObjectGetter, bucket, key string) (*StreamSource, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: bucket and key are required", ErrUnsupportedURL)
	}

	format, compression, err := FormatFromName(key)
	if err != nil {
		return nil, err
	}

	return NewStreamSource("s3://"+bucket+"/"+key, format, func(ctx context.Context) (io.ReadCloser, error) {
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get catalog object: %w", err)
		}
		rc, err := decompress(out.Body, compression)
		if err != nil {
			out.Body.Close()
			return nil, err
		}
		return rc, nil
	})
}
