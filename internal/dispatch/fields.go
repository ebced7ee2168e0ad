package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// RequireFields wraps a handler with a presence check for a list of
// dot-separated payload paths (e.g. "file.bucket"). On the first missing
// segment the caller gets "Missing field: <path-so-far>" and the handler
// body never runs.
func RequireFields(fields []string, next Handler) Handler {
	return func(ctx context.Context, data map[string]any, reply ReplyFunc) {
		for _, field := range fields {
			ok, missing := checkPath(data, field)
			if !ok {
				_ = reply(ctx, fmt.Sprintf("Missing field: %s", missing))
				return
			}
		}
		next(ctx, data, reply)
	}
}

// checkPath walks data along a dotted path. It returns false and the path up
// to and including the first missing segment.
func checkPath(data map[string]any, path string) (bool, string) {
	segments := strings.Split(path, ".")
	found := make([]string, 0, len(segments))

	current := data
	for i, segment := range segments {
		value, ok := current[segment]
		if !ok {
			return false, strings.Join(append(found, segment), ".")
		}
		found = append(found, segment)

		if i == len(segments)-1 {
			break
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return false, strings.Join(append(found, segments[i+1]), ".")
		}
		current = nested
	}
	return true, ""
}
