package dockerengine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
)

// Config holds Docker engine and target registry configuration
type Config struct {
	Host             string // engine socket/host, empty = environment default
	RegistryAddress  string // target registry, empty = local daemon only
	RegistryUsername string
	RegistryPassword string
}

// Client wraps the Docker engine API for streaming image builds and pushes
type Client struct {
	api    *client.Client
	config *Config
	auth   string // base64 X-Registry-Auth header
	logger *slog.Logger
}

// NewClient creates a new Docker engine client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if config.Host != "" {
		opts = append(opts, client.WithHost(config.Host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		logger.Error("Failed to create Docker client",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	auth, err := encodeAuth(config)
	if err != nil {
		return nil, err
	}

	logger.Info("Docker engine client initialized",
		slog.String("registry", config.RegistryAddress),
	)

	return &Client{
		api:    api,
		config: config,
		auth:   auth,
		logger: logger,
	}, nil
}

// encodeAuth builds the base64 X-Registry-Auth payload the engine expects
func encodeAuth(config *Config) (string, error) {
	authConfig := registry.AuthConfig{
		Username:      config.RegistryUsername,
		Password:      config.RegistryPassword,
		ServerAddress: config.RegistryAddress,
	}
	buf, err := json.Marshal(authConfig)
	if err != nil {
		return "", fmt.Errorf("failed to encode registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// ImageRef returns the fully qualified reference for a name:tag pair,
// prefixed with the configured registry when one is set.
func (c *Client) ImageRef(name, tag string) string {
	ref := fmt.Sprintf("%s:%s", strings.ToLower(name), tag)
	if c.config.RegistryAddress != "" {
		ref = c.config.RegistryAddress + "/" + ref
	}
	return ref
}

// Build tars the context directory and starts a streaming image build.
// The returned reader yields the engine's JSON progress lines; the caller
// owns closing it.
func (c *Client) Build(ctx context.Context, contextDir, imageRef string) (io.ReadCloser, error) {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to tar build context: %w", err)
	}

	resp, err := c.api.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{imageRef},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		buildCtx.Close()
		return nil, fmt.Errorf("failed to start image build: %w", err)
	}

	c.logger.Info("Image build started",
		slog.String("image", imageRef),
		slog.String("context", contextDir),
	)
	return resp.Body, nil
}

// Push starts a streaming push of the given reference to the registry
func (c *Client) Push(ctx context.Context, imageRef string) (io.ReadCloser, error) {
	rc, err := c.api.ImagePush(ctx, imageRef, types.ImagePushOptions{
		RegistryAuth: c.auth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start image push: %w", err)
	}

	c.logger.Info("Image push started",
		slog.String("image", imageRef),
	)
	return rc, nil
}

// HealthCheck verifies the engine is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("docker engine health check failed: %w", err)
	}
	return nil
}

// Close releases the underlying engine connection
func (c *Client) Close() error {
	return c.api.Close()
}
