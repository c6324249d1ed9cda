package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/stitchkb/stitchkb/pkg/errors"
)

// FSBucket is a Bucket rooted at a local directory. Paths are resolved
// relative to the root; escaping the root is rejected.
type FSBucket struct {
	root string
}

var _ Bucket = (*FSBucket)(nil)

// NewFSBucket creates a filesystem bucket rooted at dir.
func NewFSBucket(dir string) (*FSBucket, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New(errors.ErrCodeStorage, "bucket directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "resolving bucket directory")
	}
	return &FSBucket{root: abs}, nil
}

// Get implements Bucket.
func (b *FSBucket) Get(_ context.Context, path string) ([]byte, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "object %q", path)
		}
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "reading %q", path)
	}
	return data, nil
}

// Put implements Bucket.
func (b *FSBucket) Put(_ context.Context, path string, content []byte) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "creating directories for %q", path)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "writing %q", path)
	}
	return nil
}

func (b *FSBucket) resolve(path string) (string, error) {
	key := objectKey(path)
	if key == "" {
		return "", errors.New(errors.ErrCodeStorage, "object path is required")
	}
	full := filepath.Join(b.root, filepath.FromSlash(key))
	if full != b.root && !strings.HasPrefix(full, b.root+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeStorage, "object path %q escapes the bucket", path)
	}
	return full, nil
}
