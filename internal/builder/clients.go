package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
)

// ObjectStore supplies uploaded archives from addressable blob storage.
// StatObject reports a missing object with an error matching
// minio.ErrObjectNotFound; any other error means the store itself failed.
type ObjectStore interface {
	StatObject(ctx context.Context, bucket, object string) error
	Download(ctx context.Context, bucket, object, filePath string) error
}

// BuildEngine turns a build-context directory into an image and pushes it.
// Build and Push return the engine's raw line stream.
type BuildEngine interface {
	ImageRef(name, tag string) string
	Build(ctx context.Context, contextDir, imageRef string) (io.ReadCloser, error)
	Push(ctx context.Context, imageRef string) (io.ReadCloser, error)
}

// StoreConfig describes a per-request object-store override
type StoreConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Secure    bool   `json:"secure"`
}

// EngineConfig describes a per-request build-engine/registry override
type EngineConfig struct {
	Host     string `json:"host"`
	Registry string `json:"default_registry"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// StoreFactory builds a private object-store client for one job
type StoreFactory func(cfg StoreConfig) (ObjectStore, error)

// EngineFactory builds a private build-engine client for one job
type EngineFactory func(cfg EngineConfig) (BuildEngine, error)

// resolveStore picks the job's object-store client: a private one when the
// request carries a well-formed minio override, the shared default otherwise.
func resolveStore(req Request, def ObjectStore, factory StoreFactory, logger *slog.Logger) ObjectStore {
	if req.StoreType != "minio" || factory == nil {
		return def
	}

	override := req.StoreOverride
	if override == nil {
		return def
	}

	cfg := StoreConfig{
		Endpoint:  stringAt(override, "endpoint"),
		AccessKey: stringAt(override, "access_key"),
		SecretKey: stringAt(override, "secret_key"),
		Secure:    true,
	}
	if secure, ok := override["secure"].(bool); ok {
		cfg.Secure = secure
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return def
	}

	store, err := factory(cfg)
	if err != nil {
		logger.Warn("Storage override rejected, using default client",
			slog.String("build_id", req.BuildID),
			slog.String("error", err.Error()),
		)
		return def
	}

	logger.Info("Using request-scoped storage client",
		slog.String("build_id", req.BuildID),
		slog.String("endpoint", cfg.Endpoint),
	)
	return store
}

// resolveEngine picks the job's build-engine client. The override config is
// decoded strictly; any unknown key or construction error falls back to the
// shared default.
func resolveEngine(req Request, def BuildEngine, factory EngineFactory, logger *slog.Logger) BuildEngine {
	if req.RegistryOverride == nil || factory == nil {
		return def
	}

	raw, err := json.Marshal(req.RegistryOverride)
	if err != nil {
		return def
	}

	var cfg EngineConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		logger.Warn("Registry override rejected, using default engine",
			slog.String("build_id", req.BuildID),
			slog.String("error", err.Error()),
		)
		return def
	}

	engine, err := factory(cfg)
	if err != nil {
		logger.Warn("Failed to build engine from override, using default",
			slog.String("build_id", req.BuildID),
			slog.String("error", err.Error()),
		)
		return def
	}

	logger.Info("Using request-scoped build engine",
		slog.String("build_id", req.BuildID),
		slog.String("registry", cfg.Registry),
	)
	return engine
}
