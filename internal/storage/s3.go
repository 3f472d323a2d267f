// Package storage uploads produced tiles to an S3 compatible object store
// such as MinIO.
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"

	"github.com/kiesman99/tiler/pkg/tile"
)

// Config locates the bucket tiles are uploaded to. Endpoint is only set for
// non-AWS stores and switches the client to path style addressing.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// Client is the subset of the S3 API the uploader needs
type Client interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies tile files into a bucket under a key prefix
type Uploader struct {
	Client Client
	Bucket string
	Prefix string
	Logger *log.Logger
}

// New builds an uploader with an S3 client configured from cfg
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// Key returns the object key a file is stored under
func (u *Uploader) Key(file string) string {
	return path.Join(u.Prefix, filepath.Base(file))
}

// Upload creates the bucket if needed and puts every file into it. Files
// that fail are reported together; the others are still uploaded. The keys
// of the uploaded objects are returned in input order.
func (u *Uploader) Upload(ctx context.Context, files []string) ([]string, error) {
	logger := u.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if _, err := u.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.Bucket)}); err != nil {
		if _, err := u.Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(u.Bucket)}); err != nil {
			return nil, fmt.Errorf("%w: failed to create bucket %s: %w", tile.ErrIOWrite, u.Bucket, err)
		}
		logger.Printf("Created bucket: %s", u.Bucket)
	}

	var keys []string
	var errs error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return keys, multierr.Append(errs, err)
		}

		key := u.Key(file)
		if err := u.put(ctx, file, key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		keys = append(keys, key)
		logger.Printf("uploaded: s3://%s/%s", u.Bucket, key)
	}

	if errs != nil {
		return keys, fmt.Errorf("%w: upload to %s: %w", tile.ErrIOWrite, u.Bucket, errs)
	}
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(u.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		in.ContentType = aws.String(ct)
	}

	_, err = u.Client.PutObject(ctx, in)
	return err
}
