package emit

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/stitch"
)

// MongoConfig configures the archive collection.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoSink upserts each compact graph into a MongoDB collection, keyed by
// package-version ID so restitching an artifact replaces its archived graph.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ Sink = (*MongoSink)(nil)

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrCodeStorage, "mongo uri is required")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New(errors.ErrCodeStorage, "mongo database and collection are required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "pinging mongo")
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Emit implements Sink.
func (s *MongoSink) Emit(ctx context.Context, g *stitch.CompactGraph) error {
	filter := bson.D{{Key: "index", Value: g.PackageVersionID}}
	_, err := s.collection.ReplaceOne(ctx, filter, g, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "archiving graph %d", g.PackageVersionID)
	}
	return nil
}

// Close releases the mongo connection.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
