package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "chanlun/internal/config"
)

// S3Uploader uploads exported files to a bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader builds an S3 client from export settings. Static credentials
// are used when both keys are set, otherwise the default AWS chain applies.
func NewS3Uploader(ctx context.Context, cfg appconfig.S3Config, creds appconfig.S3Credentials) (*S3Uploader, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("s3 export disabled")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key for a relative file key.
func (u *S3Uploader) Key(key string) string {
	if u.prefix == "" {
		return key
	}
	return path.Join(u.prefix, key)
}

// Upload puts one file.
func (u *S3Uploader) Upload(ctx context.Context, key, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	contentType := "text/csv"
	if filepath.Ext(filePath) == "."+FormatParquet {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.Key(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", u.Key(key), err)
	}
	return nil
}
