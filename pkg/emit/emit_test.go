package emit

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stitchkb/stitchkb/pkg/stitch"
	"github.com/stitchkb/stitchkb/pkg/storage"
)

type fakeProducer struct {
	published [][]byte
	err       error
}

func (p *fakeProducer) Publish(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, body)
	return nil
}

func testGraph() *stitch.CompactGraph {
	return &stitch.CompactGraph{
		PackageVersionID: 7,
		Forge:            "mvn",
		Product:          "demo",
		Version:          "1.0",
		NodeIDs:          []int64{10, 11},
		InternalCount:    2,
		Edges:            []stitch.CompactEdge{{Source: 10, Target: 11}},
	}
}

func TestQueueSinkPublishesOneLine(t *testing.T) {
	producer := &fakeProducer{}
	sink := &QueueSink{Producer: producer}

	if err := sink.Emit(context.Background(), testGraph()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(producer.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(producer.published))
	}
	line := string(producer.published[0])
	if strings.Contains(line, "\n") {
		t.Errorf("published message spans lines: %q", line)
	}
	back, err := stitch.ParseCompactGraph(producer.published[0])
	if err != nil {
		t.Fatalf("ParseCompactGraph() error = %v", err)
	}
	if back.PackageVersionID != 7 {
		t.Errorf("round trip PackageVersionID = %d, want 7", back.PackageVersionID)
	}
}

func TestBucketSinkWritesDerivedPath(t *testing.T) {
	bucket, err := storage.NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBucket() error = %v", err)
	}
	sink := &BucketSink{Bucket: bucket}

	if err := sink.Emit(context.Background(), testGraph()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	data, err := bucket.Get(context.Background(), "mvn/d/demo/demo_1.0.json")
	if err != nil {
		t.Fatalf("archived object missing: %v", err)
	}
	if len(data) == 0 {
		t.Error("archived object is empty")
	}
}

func TestMultiSinkStopsAtFirstFailure(t *testing.T) {
	failing := &fakeProducer{err: fmt.Errorf("broker gone")}
	healthy := &fakeProducer{}
	sink := MultiSink{
		&QueueSink{Producer: failing},
		&QueueSink{Producer: healthy},
	}

	if err := sink.Emit(context.Background(), testGraph()); err == nil {
		t.Fatal("Emit() swallowed sink failure")
	}
	if len(healthy.published) != 0 {
		t.Errorf("later sink ran after failure: %d messages", len(healthy.published))
	}
}
