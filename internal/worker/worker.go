// Package worker runs the broker-driven ingestion loop: consume one artifact
// document, stitch it into the metadata store, and emit the compact graph.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/stitchkb/stitchkb/pkg/emit"
	"github.com/stitchkb/stitchkb/pkg/pipeline"
	"github.com/stitchkb/stitchkb/pkg/queue"
	"github.com/stitchkb/stitchkb/pkg/storage"
)

// consumeBackoff is the pause after a broker failure before consuming again.
const consumeBackoff = time.Second

// Worker consumes artifact documents from one topic and stitches them. A
// document that fails is counted and logged, never re-published; the loop
// always moves on to the next message.
type Worker struct {
	Consumer queue.Consumer
	Runner   *pipeline.Runner
	Sink     emit.Sink

	// Bucket resolves messages that reference their document by object
	// path. Optional; reference messages fail without it.
	Bucket storage.Bucket

	Logger *log.Logger

	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a worker. If logger is nil, the package default logger is used.
func New(consumer queue.Consumer, runner *pipeline.Runner, sink emit.Sink, bucket storage.Bucket, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		Consumer: consumer,
		Runner:   runner,
		Sink:     sink,
		Bucket:   bucket,
		Logger:   logger,
	}
}

// Run consumes until ctx is done. Only context cancellation stops the loop;
// per-message failures are recorded and skipped.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("worker started")
	for {
		body, err := w.Consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.Logger.Info("worker stopping",
					"processed", w.processed.Load(),
					"failed", w.failed.Load())
				return nil
			}
			w.Logger.Error("consuming message", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeBackoff):
			}
			continue
		}

		runID := uuid.NewString()
		logger := w.Logger.With("run_id", runID)
		if err := w.handle(ctx, body, logger); err != nil {
			w.failed.Add(1)
			logger.Error("processing document", "err", err)
			continue
		}
		w.processed.Add(1)
	}
}

func (w *Worker) handle(ctx context.Context, body []byte, logger *log.Logger) error {
	document, err := queue.Resolve(ctx, body, w.Bucket)
	if err != nil {
		return err
	}

	result, err := w.Runner.Execute(ctx, pipeline.Options{
		Document: document,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if w.Sink != nil {
		if err := w.Sink.Emit(ctx, result.Compact); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the processed and failed message counts.
func (w *Worker) Stats() (processed, failed uint64) {
	return w.processed.Load(), w.failed.Load()
}
