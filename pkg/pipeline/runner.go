package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stitchkb/stitchkb/pkg/callgraph"
	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/stitch"
	"github.com/stitchkb/stitchkb/pkg/store"
)

// Runner encapsulates pipeline execution against one metadata store.
//
// The Runner is stateless except for the store handle and logger - it
// doesn't retain results between runs. Multiple goroutines can safely use
// the same Runner with different options.
type Runner struct {
	Store    store.Store
	Stitcher *stitch.Stitcher
	Logger   *log.Logger
}

// NewRunner creates a runner for the given store.
// If stitcher is nil, a default one is used.
// If logger is nil, the package default logger is used.
func NewRunner(st store.Store, stitcher *stitch.Stitcher, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if stitcher == nil {
		stitcher = stitch.New(logger)
	}
	return &Runner{
		Store:    st,
		Stitcher: stitcher,
		Logger:   logger,
	}
}

// Execute runs the complete parse → stitch pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = r.Logger
	}

	result := &Result{}

	// Stage 1: Parse
	parseStart := time.Now()
	g := opts.Graph
	if g == nil {
		var err error
		if g, err = callgraph.ParseDocument(opts.Document); err != nil {
			return nil, err
		}
	}
	result.Graph = g
	result.Stats.ParseTime = time.Since(parseStart)
	result.Stats.CallableCount = len(g.AllMethods())
	result.Stats.EdgeCount = len(g.Calls.Internal) + len(g.Calls.External)

	logger.Info("parsed document",
		"artifact", g.String(),
		"callables", result.Stats.CallableCount,
		"edges", result.Stats.EdgeCount,
		"duration", result.Stats.ParseTime)

	// Stage 2: Stitch, retrying transient store failures in a fresh
	// transaction. Malformed documents and fatal store errors fail
	// immediately.
	stitchStart := time.Now()
	compact, attempts, err := r.stitchWithRetry(ctx, g, opts.RetryLimit, logger)
	result.Stats.Attempts = attempts
	if err != nil {
		return nil, err
	}
	result.Compact = compact
	result.Stats.StitchTime = time.Since(stitchStart)

	logger.Info("stitched artifact",
		"artifact", g.String(),
		"package_version_id", compact.PackageVersionID,
		"nodes", len(compact.NodeIDs),
		"attempts", attempts,
		"duration", result.Stats.StitchTime)

	return result, nil
}

func (r *Runner) stitchWithRetry(ctx context.Context, g *callgraph.Graph, limit int, logger *log.Logger) (*stitch.CompactGraph, int, error) {
	var compact *stitch.CompactGraph
	var lastErr error

	for attempt := 1; attempt <= limit; attempt++ {
		lastErr = r.Store.InTx(ctx, func(dao store.DAO) error {
			var err error
			compact, err = r.Stitcher.Stitch(ctx, dao, g)
			return err
		})
		if lastErr == nil {
			return compact, attempt, nil
		}
		if !errors.IsTransient(lastErr) {
			return nil, attempt, lastErr
		}
		logger.Warn("transient store failure, restarting transaction",
			"artifact", g.String(),
			"attempt", attempt,
			"err", lastErr)
	}
	return nil, limit, errors.Wrap(errors.ErrCodeStoreTransient, lastErr,
		"stitching %s failed after %d attempts", g.String(), limit)
}
