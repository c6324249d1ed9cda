package storage

import (
	"context"
	"testing"

	"github.com/stitchkb/stitchkb/pkg/errors"
)

func TestFSBucketRoundTrip(t *testing.T) {
	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBucket() error = %v", err)
	}
	ctx := context.Background()

	content := []byte(`{"nodes":[1,2]}`)
	if err := b.Put(ctx, "mvn/d/demo/demo_1.0.json", content); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := b.Get(ctx, "mvn/d/demo/demo_1.0.json")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Get() = %q, want %q", got, content)
	}
}

func TestFSBucketMissingObject(t *testing.T) {
	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBucket() error = %v", err)
	}

	_, err = b.Get(context.Background(), "no/such/object.json")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Get() error = %v, want NOT_FOUND", err)
	}
}

func TestFSBucketRejectsEscape(t *testing.T) {
	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBucket() error = %v", err)
	}

	if _, err := b.Get(context.Background(), "../outside.json"); err == nil {
		t.Error("Get() followed a path outside the bucket")
	}
	if err := b.Put(context.Background(), "..", []byte("x")); err == nil {
		t.Error("Put() accepted the bucket root's parent")
	}
}
