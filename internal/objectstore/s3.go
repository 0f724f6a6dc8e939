package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/errors"
	"github.com/NINAnor/tabmon-species-api/internal/logging"
)

// S3Client implements Client against an S3-compatible endpoint with
// path-style addressing.
type S3Client struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Client builds an S3 client from settings. The endpoint is a bare host;
// the scheme follows s3.usessl.
func NewS3Client(ctx context.Context, settings *conf.S3Settings) (*S3Client, error) {
	scheme := "https"
	if !settings.UseSSL {
		scheme = "http"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(settings.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			settings.AccessKeyID, settings.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, settings.Endpoint))
		o.UsePathStyle = true
	})

	return &S3Client{
		client: client,
		bucket: settings.Bucket,
		logger: logging.ForService("objectstore"),
	}, nil
}

// List returns the keys of all objects under prefix, following pagination.
func (c *S3Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.wrap(err, "list", prefix)
		}
		for i := range page.Contents {
			keys = append(keys, aws.ToString(page.Contents[i].Key))
		}
	}
	return keys, nil
}

// ListPrefixes returns the common prefixes directly under prefix.
func (c *S3Client) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.wrap(err, "list-prefixes", prefix)
		}
		for i := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(page.CommonPrefixes[i].Prefix))
		}
	}
	return prefixes, nil
}

// Download fetches an object into memory.
func (c *S3Client) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, c.wrap(err, "download", key)
	}
	defer func() {
		if cerr := out.Body.Close(); cerr != nil {
			c.logger.Warn("closing object body failed", "key", key, "error", cerr)
		}
	}()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, c.wrap(err, "download", key)
	}
	return body, nil
}

// Upload writes an object, replacing any existing content.
func (c *S3Client) Upload(ctx context.Context, key string, body []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return c.wrap(err, "upload", key)
	}
	return nil
}

// Exists probes for an object with HeadObject. A NotFound response is not an
// error, it is a negative answer.
func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, c.wrap(err, "head", key)
	}
	return true, nil
}

func (c *S3Client) wrap(err error, op, key string) error {
	return errors.New(err).
		Component("objectstore").
		Category(errors.CategoryObjectStore).
		Context("operation", op).
		Context("bucket", c.bucket).
		Context("key", key).
		Build()
}
