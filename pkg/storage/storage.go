// Package storage provides object access for artifact documents and
// stitched outputs.
//
// Worker messages may reference a document by path instead of carrying it
// inline; a Bucket resolves such references and archives rendered compact
// graphs. Two implementations exist: an S3-compatible object store for
// deployments and a filesystem bucket for local runs and tests.
package storage

import "context"

// Bucket reads and writes objects by path.
type Bucket interface {
	// Get returns the object's content. Missing objects yield a NOT_FOUND
	// taxonomy error.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put writes the object's content, overwriting any prior version.
	Put(ctx context.Context, path string, content []byte) error
}
