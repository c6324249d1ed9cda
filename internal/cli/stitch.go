package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stitchkb/stitchkb/internal/config"
	"github.com/stitchkb/stitchkb/pkg/errors"
	"github.com/stitchkb/stitchkb/pkg/pipeline"
	"github.com/stitchkb/stitchkb/pkg/stitch"
	"github.com/stitchkb/stitchkb/pkg/store"
)

// newStitchCmd creates the stitch command for one-shot document ingestion.
func newStitchCmd() *cobra.Command {
	var (
		configPath string
		dsn        string
		retryLimit int
		batchSize  int
		output     string
	)

	cmd := &cobra.Command{
		Use:   "stitch <document>",
		Short: "Stitch one call-graph document into the metadata store",
		Long: `Stitch reads a call-graph document from a file (or stdin when the
argument is "-"), persists it into the metadata store inside a transaction,
and prints the resulting compact graph as a single JSON line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.Store.DSN = dsn
			}
			if retryLimit > 0 {
				cfg.Store.RetryLimit = retryLimit
			}
			if batchSize > 0 {
				cfg.Store.BatchSize = batchSize
			}
			if cfg.Store.DSN == "" {
				return errors.New(errors.ErrCodeInternal,
					"no store configured: set --dsn, STITCHKB_DB_DSN or store.dsn")
			}

			document, err := readDocument(args[0])
			if err != nil {
				return err
			}

			st, err := store.NewPostgres(ctx, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			prog := newProgress(logger)
			runner := pipeline.NewRunner(st,
				stitch.New(logger, stitch.WithBatchSize(cfg.Store.BatchSize)), logger)
			result, err := runner.Execute(ctx, pipeline.Options{
				Document:   document,
				RetryLimit: cfg.Store.RetryLimit,
			})
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Stitched %s as package version %d",
				result.Graph.String(), result.Compact.PackageVersionID))

			line, err := result.Compact.Marshal()
			if err != nil {
				return err
			}
			return writeOutput(output, append(line, '\n'))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&dsn, "dsn", "", "metadata store connection string")
	cmd.Flags().IntVar(&retryLimit, "retry-limit", 0, "transaction attempts before giving up")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "edge rows per batch insert")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the compact graph to a file instead of stdout")

	return cmd
}

func readDocument(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "reading stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "document %q", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "reading %q", path)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "writing %q", path)
	}
	return nil
}
