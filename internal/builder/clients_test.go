package builder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// markerStore is a stand-in used only to tell clients apart
type markerStore struct {
	name string
}

func (markerStore) StatObject(context.Context, string, string) error      { return nil }
func (markerStore) Download(context.Context, string, string, string) error { return nil }

type markerEngine struct {
	name string
}

func (markerEngine) ImageRef(name, tag string) string { return name + ":" + tag }
func (markerEngine) Build(context.Context, string, string) (io.ReadCloser, error) {
	return nil, nil
}
func (markerEngine) Push(context.Context, string) (io.ReadCloser, error) {
	return nil, nil
}

func TestResolveStore(t *testing.T) {
	def := markerStore{name: "default"}

	tests := []struct {
		name        string
		req         Request
		factoryErr  error
		wantPrivate bool
		wantCfg     StoreConfig
	}{
		{
			name: "well-formed override builds a private client",
			req: Request{
				StoreType: "minio",
				StoreOverride: map[string]any{
					"endpoint":   "minio.example:9000",
					"access_key": "ak",
					"secret_key": "sk",
					"secure":     false,
				},
			},
			wantPrivate: true,
			wantCfg: StoreConfig{
				Endpoint:  "minio.example:9000",
				AccessKey: "ak",
				SecretKey: "sk",
				Secure:    false,
			},
		},
		{
			name: "secure defaults to true",
			req: Request{
				StoreType: "minio",
				StoreOverride: map[string]any{
					"endpoint":   "minio.example:9000",
					"access_key": "ak",
					"secret_key": "sk",
				},
			},
			wantPrivate: true,
			wantCfg: StoreConfig{
				Endpoint:  "minio.example:9000",
				AccessKey: "ak",
				SecretKey: "sk",
				Secure:    true,
			},
		},
		{
			name: "no override uses default",
			req:  Request{StoreType: "minio"},
		},
		{
			name: "unsupported store type uses default",
			req: Request{
				StoreType: "s3",
				StoreOverride: map[string]any{
					"endpoint":   "minio.example:9000",
					"access_key": "ak",
					"secret_key": "sk",
				},
			},
		},
		{
			name: "incomplete override uses default",
			req: Request{
				StoreType: "minio",
				StoreOverride: map[string]any{
					"endpoint": "minio.example:9000",
				},
			},
		},
		{
			name: "factory failure falls back to default",
			req: Request{
				StoreType: "minio",
				StoreOverride: map[string]any{
					"endpoint":   "minio.example:9000",
					"access_key": "ak",
					"secret_key": "sk",
				},
			},
			factoryErr: errors.New("bad credentials"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCfg StoreConfig
			factory := func(cfg StoreConfig) (ObjectStore, error) {
				gotCfg = cfg
				if tt.factoryErr != nil {
					return nil, tt.factoryErr
				}
				return markerStore{name: "private"}, nil
			}

			got := resolveStore(tt.req, def, factory, discardLogger())

			if tt.wantPrivate {
				require.Equal(t, markerStore{name: "private"}, got)
				assert.Equal(t, tt.wantCfg, gotCfg)
			} else {
				assert.Equal(t, def, got)
			}
		})
	}

	t.Run("nil factory uses default", func(t *testing.T) {
		req := Request{
			StoreType: "minio",
			StoreOverride: map[string]any{
				"endpoint":   "minio.example:9000",
				"access_key": "ak",
				"secret_key": "sk",
			},
		}
		got := resolveStore(req, def, nil, discardLogger())
		assert.Equal(t, def, got)
	})
}

func TestResolveEngine(t *testing.T) {
	def := markerEngine{name: "default"}

	tests := []struct {
		name        string
		req         Request
		factoryErr  error
		wantPrivate bool
		wantCfg     EngineConfig
	}{
		{
			name: "well-formed override builds a private engine",
			req: Request{
				RegistryOverride: map[string]any{
					"host":             "tcp://docker.example:2375",
					"default_registry": "registry.example",
					"username":         "user",
					"password":         "pass",
				},
			},
			wantPrivate: true,
			wantCfg: EngineConfig{
				Host:     "tcp://docker.example:2375",
				Registry: "registry.example",
				Username: "user",
				Password: "pass",
			},
		},
		{
			name: "no override uses default",
			req:  Request{},
		},
		{
			name: "unknown key rejects the override",
			req: Request{
				RegistryOverride: map[string]any{
					"default_registry": "registry.example",
					"insecure":         true,
				},
			},
		},
		{
			name: "factory failure falls back to default",
			req: Request{
				RegistryOverride: map[string]any{
					"default_registry": "registry.example",
				},
			},
			factoryErr: errors.New("cannot reach daemon"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCfg EngineConfig
			factory := func(cfg EngineConfig) (BuildEngine, error) {
				gotCfg = cfg
				if tt.factoryErr != nil {
					return nil, tt.factoryErr
				}
				return markerEngine{name: "private"}, nil
			}

			got := resolveEngine(tt.req, def, factory, discardLogger())

			if tt.wantPrivate {
				require.Equal(t, markerEngine{name: "private"}, got)
				assert.Equal(t, tt.wantCfg, gotCfg)
			} else {
				assert.Equal(t, def, got)
			}
		})
	}

	t.Run("nil factory uses default", func(t *testing.T) {
		req := Request{
			RegistryOverride: map[string]any{
				"default_registry": "registry.example",
			},
		}
		got := resolveEngine(req, def, nil, discardLogger())
		assert.Equal(t, def, got)
	})
}
