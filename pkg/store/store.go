// Package store defines the DAO contract for the metadata store and its
// Postgres implementation.
//
// The relational store is the only shared mutable resource in the pipeline.
// It is accessed exclusively through a transaction: a Store hands a DAO
// scoped to one transaction attempt to the callback, and the DAO is
// discarded on commit or rollback. Package, package-version and file rows
// use insert-or-get semantics so that a transaction attempt is safely
// repeatable; callable rows receive fresh store-assigned global IDs on every
// attempt.
package store

import (
	"context"
	"time"

	"github.com/stitchkb/stitchkb/pkg/resolve"
)

// NoModule is the module reference recorded for callables with no owning
// module (external callables).
const NoModule int64 = -1

// CallableRecord is one method/function row staged for persistence.
type CallableRecord struct {
	LocalID  int64  // artifact-local ID, never persisted
	ModuleID int64  // owning module row, NoModule for externals
	URI      string // canonical identifier text
	Internal bool

	// FirstLine and LastLine are projected out of the free-form metadata
	// when present and well-typed; nil otherwise.
	FirstLine *int
	LastLine  *int

	Metadata map[string]any
}

// Receiver describes the runtime target of one call site on an edge.
type Receiver struct {
	Line     int              `json:"line" bson:"line"`
	Dispatch resolve.Dispatch `json:"type" bson:"type"`
	URI      string           `json:"receiver" bson:"receiver"`
}

// EdgeRecord is one call edge staged for persistence. Source and Target are
// store-assigned global IDs.
type EdgeRecord struct {
	Source    int64
	Target    int64
	Receivers []Receiver
	Metadata  map[string]any
}

// DAO is the persistence contract consumed by the stitcher. All methods are
// scoped to one transaction attempt.
type DAO interface {
	// InsertPackage inserts or returns the package row for (forge, product).
	InsertPackage(ctx context.Context, forge, product string) (int64, error)

	// InsertPackageVersion inserts or returns the package-version row.
	// createdAt is nil when the artifact timestamp is unknown.
	InsertPackageVersion(ctx context.Context, packageID int64, generator, version, architecture string, createdAt *time.Time) (int64, error)

	// InsertModule inserts a module/type row with its metadata blob.
	InsertModule(ctx context.Context, packageVersionID int64, namespace string, metadata map[string]any) (int64, error)

	// InsertFile inserts or returns the file row for the source path.
	InsertFile(ctx context.Context, packageVersionID int64, path string) (int64, error)

	// LinkModuleFile links a module row to a file row.
	LinkModuleFile(ctx context.Context, moduleID, fileID int64) error

	// InsertCallables persists callable rows in one pass and returns their
	// store-assigned global IDs in input order. Rows already known by
	// canonical identifier reuse their existing global ID.
	InsertCallables(ctx context.Context, records []CallableRecord) ([]int64, error)

	// BatchInsertEdges persists one batch of staged edge records.
	BatchInsertEdges(ctx context.Context, records []EdgeRecord) error
}

// Store opens transactions against the metadata store.
type Store interface {
	// InTx runs fn inside a single transaction and commits on success. Any
	// error rolls the transaction back and is returned classified by the
	// error taxonomy (transient store errors are safe to retry in a fresh
	// transaction).
	InTx(ctx context.Context, fn func(DAO) error) error
}
