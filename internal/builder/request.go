package builder

import (
	"fmt"
	"strings"
)

// Request is the typed form of a build command payload. It is constructed
// once, after the required-field check, and passed by reference through the
// pipeline stages.
type Request struct {
	BuildID   string
	TeamName  string
	ImageName string
	ImageTag  string

	FileID    string
	Bucket    string
	StoreType string

	StoreOverride    map[string]any // file.config
	RegistryOverride map[string]any // registry._config

	RecipeBucket string // team_dockerfile.bucket
	RecipeFileID string // team_dockerfile.file_id

	Raw map[string]any
}

// ParseRequest extracts the build request fields from a raw payload.
// Presence of the required fields is guaranteed by the dispatcher wrapper;
// values are stringified here because callers send ids as numbers too.
func ParseRequest(data map[string]any) Request {
	req := Request{
		BuildID:          stringAt(data, "build_id"),
		TeamName:         stringAt(data, "team_name"),
		ImageName:        stringAt(data, "image_name"),
		ImageTag:         stringAt(data, "image_tag"),
		FileID:           stringAt(data, "file.file_id"),
		Bucket:           stringAt(data, "file.bucket"),
		StoreType:        stringAt(data, "file._type"),
		StoreOverride:    mapAt(data, "file.config"),
		RegistryOverride: mapAt(data, "registry._config"),
		RecipeBucket:     stringAt(data, "team_dockerfile.bucket"),
		RecipeFileID:     stringAt(data, "team_dockerfile.file_id"),
		Raw:              data,
	}
	if req.StoreType == "" {
		req.StoreType = "minio"
	}
	if req.ImageTag == "" {
		req.ImageTag = "latest"
	}
	return req
}

// ArchiveObject is the object key of the submitted archive
func (r Request) ArchiveObject() string {
	return r.FileID + ".tar.gz"
}

func lookupAt(data map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var value any = data
	for _, segment := range segments {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

func stringAt(data map[string]any, path string) string {
	value, ok := lookupAt(data, path)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func mapAt(data map[string]any, path string) map[string]any {
	value, ok := lookupAt(data, path)
	if !ok {
		return nil
	}
	m, _ := value.(map[string]any)
	return m
}
