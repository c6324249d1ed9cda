// Package emit delivers stitched compact graphs downstream.
//
// A Sink receives the compact projection after a successful stitch. Sinks
// exist for the broker (other workers consume the graph), an object bucket
// (long-term archive at the derived output path) and MongoDB (queryable
// archive keyed by package-version ID). MultiSink fans a graph out to
// several of them.
package emit

import (
	"context"

	"github.com/stitchkb/stitchkb/pkg/queue"
	"github.com/stitchkb/stitchkb/pkg/stitch"
	"github.com/stitchkb/stitchkb/pkg/storage"
)

// Sink consumes stitched compact graphs.
type Sink interface {
	Emit(ctx context.Context, g *stitch.CompactGraph) error
}

// QueueSink publishes each graph to a broker topic as one JSON line.
type QueueSink struct {
	Producer queue.Producer
}

var _ Sink = (*QueueSink)(nil)

// Emit implements Sink.
func (s *QueueSink) Emit(ctx context.Context, g *stitch.CompactGraph) error {
	line, err := g.Marshal()
	if err != nil {
		return err
	}
	return s.Producer.Publish(ctx, line)
}

// BucketSink archives each graph in an object bucket at its derived output
// path.
type BucketSink struct {
	Bucket storage.Bucket
}

var _ Sink = (*BucketSink)(nil)

// Emit implements Sink.
func (s *BucketSink) Emit(ctx context.Context, g *stitch.CompactGraph) error {
	line, err := g.Marshal()
	if err != nil {
		return err
	}
	return s.Bucket.Put(ctx, g.OutputPath(), line)
}

// MultiSink fans each graph out to every sink in order, stopping at the
// first failure.
type MultiSink []Sink

var _ Sink = (MultiSink)(nil)

// Emit implements Sink.
func (s MultiSink) Emit(ctx context.Context, g *stitch.CompactGraph) error {
	for _, sink := range s {
		if err := sink.Emit(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
