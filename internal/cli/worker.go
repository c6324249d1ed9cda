package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stitchkb/stitchkb/internal/config"
	"github.com/stitchkb/stitchkb/internal/worker"
	"github.com/stitchkb/stitchkb/pkg/emit"
	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/pipeline"
	"github.com/stitchkb/stitchkb/pkg/queue"
	"github.com/stitchkb/stitchkb/pkg/stitch"
	"github.com/stitchkb/stitchkb/pkg/storage"
	"github.com/stitchkb/stitchkb/pkg/store"
)

// newWorkerCmd creates the worker command for broker-driven ingestion.
func newWorkerCmd() *cobra.Command {
	var (
		configPath string
		noArchive  bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume call-graph documents from the broker until interrupted",
		Long: `Worker consumes call-graph documents from the input topic, stitches
each one into the metadata store, and publishes the resulting compact graphs
to the output topic. Stitched graphs are additionally archived in the object
bucket and, when configured, in MongoDB. A health and status endpoint is
served while the worker runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Store.DSN == "" {
				return errors.New(errors.ErrCodeInternal,
					"no store configured: set STITCHKB_DB_DSN or store.dsn")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.NewPostgres(ctx, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			client, err := queue.NewRedisClient(ctx, queue.RedisConfig{
				Addr:     cfg.Queue.Addr,
				Password: cfg.Queue.Password,
				DB:       cfg.Queue.DB,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			bucket, err := newBucket(cfg.Storage)
			if err != nil {
				return err
			}

			sink, closeSink, err := newSink(ctx, cfg, client, bucket, noArchive)
			if err != nil {
				return err
			}
			defer closeSink()

			runner := pipeline.NewRunner(st,
				stitch.New(logger, stitch.WithBatchSize(cfg.Store.BatchSize)), logger)
			w := worker.New(queue.NewRedisTopic(client, cfg.Queue.InputTopic),
				runner, sink, bucket, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return w.Run(gctx) })
			g.Go(func() error { return w.ServeStatus(gctx, cfg.Worker.StatusAddr) })
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip the bucket and MongoDB archives")

	return cmd
}

// newBucket builds the object bucket from configuration: S3 when an endpoint
// is set, the local filesystem when a directory is set, none otherwise.
func newBucket(cfg config.StorageConfig) (storage.Bucket, error) {
	switch {
	case cfg.Endpoint != "":
		return storage.NewS3Bucket(storage.S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
	case cfg.LocalDir != "":
		return storage.NewFSBucket(cfg.LocalDir)
	default:
		return nil, nil
	}
}

// newSink assembles the emit fan-out: always the output topic, plus the
// bucket and MongoDB archives unless disabled.
func newSink(ctx context.Context, cfg *config.Config, client *redis.Client, bucket storage.Bucket, noArchive bool) (emit.Sink, func(), error) {
	sinks := emit.MultiSink{
		&emit.QueueSink{Producer: queue.NewRedisTopic(client, cfg.Queue.OutputTopic)},
	}
	closeSink := func() {}
	if noArchive {
		return sinks, closeSink, nil
	}

	if bucket != nil {
		sinks = append(sinks, &emit.BucketSink{Bucket: bucket})
	}
	if cfg.Archive.URI != "" {
		mongoSink, err := emit.NewMongoSink(ctx, emit.MongoConfig{
			URI:        cfg.Archive.URI,
			Database:   cfg.Archive.Database,
			Collection: cfg.Archive.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, mongoSink)
		closeSink = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoSink.Close(ctx)
		}
	}
	return sinks, closeSink, nil
}
