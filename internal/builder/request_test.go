package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequest(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		data := map[string]any{
			"build_id":   "b-1",
			"team_name":  "alpha",
			"image_name": "alpha-image",
			"image_tag":  "v2",
			"file": map[string]any{
				"_type":   "minio",
				"bucket":  "teams",
				"file_id": "alpha-upload",
				"config": map[string]any{
					"endpoint": "minio.example:9000",
				},
			},
			"registry": map[string]any{
				"_config": map[string]any{
					"default_registry": "registry.example",
				},
			},
			"team_dockerfile": map[string]any{
				"bucket":  "recipes",
				"file_id": "alpha.Dockerfile",
			},
		}

		req := ParseRequest(data)

		assert.Equal(t, "b-1", req.BuildID)
		assert.Equal(t, "alpha", req.TeamName)
		assert.Equal(t, "alpha-image", req.ImageName)
		assert.Equal(t, "v2", req.ImageTag)
		assert.Equal(t, "alpha-upload", req.FileID)
		assert.Equal(t, "teams", req.Bucket)
		assert.Equal(t, "minio", req.StoreType)
		assert.Equal(t, "minio.example:9000", req.StoreOverride["endpoint"])
		assert.Equal(t, "registry.example", req.RegistryOverride["default_registry"])
		assert.Equal(t, "recipes", req.RecipeBucket)
		assert.Equal(t, "alpha.Dockerfile", req.RecipeFileID)
	})

	t.Run("defaults", func(t *testing.T) {
		req := ParseRequest(map[string]any{
			"build_id":  "b-1",
			"team_name": "alpha",
			"file": map[string]any{
				"bucket":  "teams",
				"file_id": "alpha-upload",
			},
		})

		assert.Equal(t, "minio", req.StoreType)
		assert.Equal(t, "latest", req.ImageTag)
		assert.Nil(t, req.StoreOverride)
		assert.Nil(t, req.RegistryOverride)
		assert.Empty(t, req.RecipeBucket)
	})

	t.Run("numeric ids are stringified", func(t *testing.T) {
		req := ParseRequest(map[string]any{
			"build_id": float64(42),
			"file": map[string]any{
				"file_id": float64(7),
			},
		})

		assert.Equal(t, "42", req.BuildID)
		assert.Equal(t, "7", req.FileID)
	})
}

func TestRequest_ArchiveObject(t *testing.T) {
	req := Request{FileID: "alpha-upload"}
	assert.Equal(t, "alpha-upload.tar.gz", req.ArchiveObject())
}
