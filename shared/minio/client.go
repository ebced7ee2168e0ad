package minio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when the requested object does not exist in
// the backing store.
var ErrObjectNotFound = errors.New("object not found in storage")

// Config holds MinIO connection configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Client represents an object-store client backed by MinIO
type Client struct {
	api    *minio.Client
	config *Config
	logger *slog.Logger
}

// NewClient creates a new MinIO client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to MinIO",
		slog.String("endpoint", config.Endpoint),
		slog.Bool("secure", config.Secure),
	)

	api, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.Secure,
	})
	if err != nil {
		logger.Error("Failed to create MinIO client",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{
		api:    api,
		config: config,
		logger: logger,
	}, nil
}

// StatObject checks that an object exists in the given bucket.
// Returns ErrObjectNotFound when the bucket or key is absent.
func (c *Client) StatObject(ctx context.Context, bucket, object string) error {
	_, err := c.api.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to stat object %s/%s: %w", bucket, object, err)
	}
	return nil
}

// Download fetches an object into a local file
func (c *Client) Download(ctx context.Context, bucket, object, filePath string) error {
	if err := c.api.FGetObject(ctx, bucket, object, filePath, minio.GetObjectOptions{}); err != nil {
		c.logger.Error("Failed to download object",
			slog.String("bucket", bucket),
			slog.String("object", object),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to download object %s/%s: %w", bucket, object, err)
	}

	c.logger.Debug("Object downloaded",
		slog.String("bucket", bucket),
		slog.String("object", object),
		slog.String("path", filePath),
	)
	return nil
}

// HealthCheck verifies the store is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.api.ListBuckets(ctx); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
