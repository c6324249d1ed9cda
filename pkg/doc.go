// Package pkg provides the core libraries for the stitchkb knowledge base.
//
// # Overview
//
// stitchkb ingests per-artifact call graphs produced by ecosystem-specific
// analyzers and stitches them into one shared, cross-ecosystem knowledge
// base. The pkg directory is organized into five main areas:
//
//  1. [ident] - Canonical identifiers naming callables across ecosystems
//  2. [callgraph] - The in-memory artifact call-graph model and its
//     structured document form
//  3. [resolve] - Building graphs from raw call observations against a type
//     hierarchy
//  4. [stitch] and [store] - Transactional persistence into the metadata
//     store and the compact global-ID projection
//  5. [queue], [storage], [emit] - The messaging boundary: consuming
//     documents and delivering stitched graphs
//
// # Architecture
//
// The typical data flow through stitchkb:
//
//	Analyzer output (call-graph document)
//	         ↓
//	    [callgraph] package (decode into the graph model)
//	         ↓
//	    [stitch] package (persist via [store], assign global IDs)
//	         ↓
//	    compact graph → broker topic / object bucket / archive
//
// Analyzers that emit raw observations instead of finished documents use the
// [resolve] package to build a graph first.
//
// # Quick Start
//
// Stitch a document into the store:
//
//	st, _ := store.NewPostgres(ctx, dsn)
//	runner := pipeline.NewRunner(st, nil, logger)
//	result, _ := runner.Execute(ctx, pipeline.Options{Document: data})
//	line, _ := result.Compact.Marshal()
//
// # Main Packages
//
// [ident] - The canonical identifier scheme. Parsing and rendering round-trip
// byte-identically, so identifiers are safe to use as database keys.
//
// [callgraph] - Two graph flavors (C-like scopes, object-oriented types)
// behind one uniform stitching view. Converts to and from the document form.
//
// [resolve] - Call-site resolution: classify dispatch instructions, resolve
// callee containers against a type hierarchy, and intern methods into
// resolved/unresolved dictionaries.
//
// [stitch] - The persistence engine. Runs inside one store transaction and
// produces the compact graph keyed by store-assigned global IDs.
//
// [store] - The DAO contract with a Postgres implementation and an in-memory
// implementation for tests. Store errors are classified transient or fatal.
//
// [pipeline] - The parse → stitch pipeline shared by CLI and worker,
// including the bounded retry loop for transient store failures.
//
// [queue] - Broker topics for incoming documents and outgoing graphs.
//
// [storage] - Object buckets (S3-compatible and filesystem) for documents
// referenced by path and for archived graphs.
//
// [emit] - Sinks delivering stitched graphs downstream (broker, bucket,
// MongoDB archive).
//
// [errors] - The error taxonomy shared by all packages; retryability is
// decided from error codes, never from cause chains.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...          # All tests
//	go test ./pkg/stitch/...   # Specific package
//
// [ident]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/ident
// [callgraph]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/callgraph
// [resolve]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/resolve
// [stitch]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/stitch
// [store]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/store
// [pipeline]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/pipeline
// [queue]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/queue
// [storage]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/storage
// [emit]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/emit
// [errors]: https://pkg.go.dev/github.com/stitchkb/stitchkb/pkg/errors
package pkg
