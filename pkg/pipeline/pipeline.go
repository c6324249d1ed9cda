// Package pipeline provides the core ingestion pipeline for stitchkb.
//
// This package implements the complete parse → stitch pipeline that can be
// used by CLI and worker components. By centralizing this logic, we ensure
// consistent behavior across all entry points and avoid code duplication.
//
// # Architecture
//
// The pipeline consists of two stages:
//
//  1. Parse: Decode the artifact's call-graph document into the in-memory
//     graph model.
//  2. Stitch: Persist the graph into the metadata store inside a
//     transaction, retrying transient store failures in a fresh transaction,
//     and project it onto store-assigned global IDs.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(st, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{Document: data})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	line, _ := result.Compact.Marshal()
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/stitchkb/stitchkb/pkg/callgraph"
	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/stitch"
)

// DefaultRetryLimit is the number of transaction attempts made before a
// transient store failure is reported to the caller.
const DefaultRetryLimit = 3

// Options contains all configuration for one pipeline run.
type Options struct {
	// Document is the raw call-graph document. Exactly one of Document and
	// Graph must be set.
	Document []byte

	// Graph short-circuits the parse stage when the caller already holds a
	// decoded graph.
	Graph *callgraph.Graph

	// RetryLimit overrides the transaction attempt budget. Zero means
	// DefaultRetryLimit.
	RetryLimit int

	// Logger overrides the runner's logger for this run.
	Logger *log.Logger
}

// validate checks required fields and applies defaults.
func (o *Options) validate() error {
	if o.Document == nil && o.Graph == nil {
		return errors.New(errors.ErrCodeInvalidDocument, "document or graph is required")
	}
	if o.RetryLimit <= 0 {
		o.RetryLimit = DefaultRetryLimit
	}
	return nil
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Graph is the decoded call graph.
	Graph *callgraph.Graph

	// Compact is the stitched projection onto global IDs.
	Compact *stitch.CompactGraph

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	CallableCount int
	EdgeCount     int
	ParseTime     time.Duration
	StitchTime    time.Duration

	// Attempts is the number of transactions opened, including the one that
	// succeeded.
	Attempts int
}
