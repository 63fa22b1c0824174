// Package blob stores uploaded sources and produced artifacts. Keys are
// slash-separated relative paths such as "uploads/<id>.png" or
// "results/<jobID>/thumbnail.png".
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

type Store interface {
	// Save streams r under key.
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Put uploads a local file under key and returns its public URL.
	// Writing the same key twice replaces the object.
	Put(ctx context.Context, key, localPath, contentType string) (string, error)
	// Fetch downloads key into localPath.
	Fetch(ctx context.Context, key, localPath string) error
	URL(key string) string
}

func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("%w: blob key %q", domain.ErrInvalidArgument, key)
	}
	return k, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
